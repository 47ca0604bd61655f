package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/sakif/forklens/internal/apperror"
	"github.com/sakif/forklens/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository. A hand-written fake
// keeps these tests dependency-free and makes every behavior visible: the
// conditional increment in ConsumeSearchQuota mirrors the SQL CAS exactly.
type fakeUserRepo struct {
	users  map[string]*model.User // keyed by internal ID
	nextID int

	// set to a non-nil error to simulate a database failure
	getByIDErr error
	resetErr   error
	consumeErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User), nextID: 1}
}

func (f *fakeUserRepo) addUser(u *model.User) *model.User {
	if u.ID == "" {
		u.ID = "user-" + string(rune('0'+f.nextID))
		f.nextID++
	}
	f.users[u.ID] = u
	return u
}

func (f *fakeUserRepo) Upsert(ctx context.Context, user *model.User) error {
	for _, u := range f.users {
		if u.GitHubID == user.GitHubID {
			u.Login = user.Login
			u.Email = user.Email
			u.AvatarURL = user.AvatarURL
			*user = *u
			return nil
		}
	}
	user.LastSearchReset = time.Now()
	f.addUser(user)
	return nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if f.getByIDErr != nil {
		return nil, f.getByIDErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) ResetDailySearches(ctx context.Context, id string, now time.Time) error {
	if f.resetErr != nil {
		return f.resetErr
	}
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.DailySearches = 0
	u.LastSearchReset = now
	return nil
}

func (f *fakeUserRepo) ConsumeSearchQuota(ctx context.Context, id string, limit int) (bool, int, error) {
	if f.consumeErr != nil {
		return false, 0, f.consumeErr
	}
	u, ok := f.users[id]
	if !ok {
		return false, 0, apperror.NotFound("user", id)
	}
	if u.DailySearches >= limit {
		return false, u.DailySearches, nil
	}
	u.DailySearches++
	return true, u.DailySearches, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// =========================================================================
// CheckAndConsume TESTS
// =========================================================================

func TestCheckAndConsume_UnderLimit(t *testing.T) {
	repo := newFakeUserRepo()
	user := repo.addUser(&model.User{
		DailySearches:   3,
		LastSearchReset: time.Now(),
	})

	svc := NewQuotaService(repo, 50, testLogger())

	count, err := svc.CheckAndConsume(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("CheckAndConsume() error = %v", err)
	}
	if count != 4 {
		t.Errorf("count after consume = %d, want 4", count)
	}
}

func TestCheckAndConsume_AtLimit(t *testing.T) {
	repo := newFakeUserRepo()
	user := repo.addUser(&model.User{
		DailySearches:   50,
		LastSearchReset: time.Now(),
	})

	svc := NewQuotaService(repo, 50, testLogger())

	count, err := svc.CheckAndConsume(context.Background(), user.ID)
	if !errors.Is(err, apperror.ErrQuotaExceeded) {
		t.Fatalf("CheckAndConsume() error = %v, want ErrQuotaExceeded", err)
	}
	if count != 50 {
		t.Errorf("count = %d, want 50 (unchanged)", count)
	}
	if repo.users[user.ID].DailySearches != 50 {
		t.Errorf("stored count = %d, want 50 — a rejected request must not mutate the counter",
			repo.users[user.ID].DailySearches)
	}
}

// The last allowed unit succeeds; the one after it fails. limit-1 → limit is
// the exact boundary.
func TestCheckAndConsume_LastUnit(t *testing.T) {
	repo := newFakeUserRepo()
	user := repo.addUser(&model.User{
		DailySearches:   49,
		LastSearchReset: time.Now(),
	})

	svc := NewQuotaService(repo, 50, testLogger())

	count, err := svc.CheckAndConsume(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("consuming the 50th unit: error = %v", err)
	}
	if count != 50 {
		t.Errorf("count = %d, want 50", count)
	}

	if _, err := svc.CheckAndConsume(context.Background(), user.ID); !errors.Is(err, apperror.ErrQuotaExceeded) {
		t.Fatalf("consuming the 51st unit: error = %v, want ErrQuotaExceeded", err)
	}
}

// A user who exhausted yesterday's quota gets a fresh allowance on the first
// request of a new calendar day.
func TestCheckAndConsume_DayRollover(t *testing.T) {
	yesterday := time.Date(2026, 3, 1, 23, 50, 0, 0, time.Local)
	today := time.Date(2026, 3, 2, 0, 10, 0, 0, time.Local)

	repo := newFakeUserRepo()
	user := repo.addUser(&model.User{
		DailySearches:   50,
		LastSearchReset: yesterday,
	})

	svc := NewQuotaService(repo, 50, testLogger())
	svc.now = func() time.Time { return today }

	count, err := svc.CheckAndConsume(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("CheckAndConsume() after rollover: error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 (reset then consumed)", count)
	}
	if !repo.users[user.ID].LastSearchReset.Equal(today) {
		t.Errorf("LastSearchReset = %v, want %v", repo.users[user.ID].LastSearchReset, today)
	}
}

// Within the same calendar day the counter must never reset, no matter how
// many hours have passed.
func TestCheckAndConsume_SameDayNoReset(t *testing.T) {
	morning := time.Date(2026, 3, 2, 0, 5, 0, 0, time.Local)
	evening := time.Date(2026, 3, 2, 23, 55, 0, 0, time.Local)

	repo := newFakeUserRepo()
	user := repo.addUser(&model.User{
		DailySearches:   7,
		LastSearchReset: morning,
	})

	svc := NewQuotaService(repo, 50, testLogger())
	svc.now = func() time.Time { return evening }

	count, err := svc.CheckAndConsume(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("CheckAndConsume() error = %v", err)
	}
	if count != 8 {
		t.Errorf("count = %d, want 8 — same-day requests must accumulate", count)
	}
}

func TestCheckAndConsume_UnknownUser(t *testing.T) {
	svc := NewQuotaService(newFakeUserRepo(), 50, testLogger())

	if _, err := svc.CheckAndConsume(context.Background(), "nope"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("CheckAndConsume() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// sameCalendarDay TESTS
// =========================================================================

func TestSameCalendarDay(t *testing.T) {
	tests := []struct {
		name string
		a, b time.Time
		want bool
	}{
		{
			name: "same day, hours apart",
			a:    time.Date(2026, 3, 2, 0, 1, 0, 0, time.Local),
			b:    time.Date(2026, 3, 2, 23, 59, 0, 0, time.Local),
			want: true,
		},
		{
			name: "minutes apart across midnight",
			a:    time.Date(2026, 3, 2, 23, 59, 0, 0, time.Local),
			b:    time.Date(2026, 3, 3, 0, 1, 0, 0, time.Local),
			want: false,
		},
		{
			name: "same day-of-month, different month",
			a:    time.Date(2026, 2, 2, 12, 0, 0, 0, time.Local),
			b:    time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local),
			want: false,
		},
		{
			name: "same instant",
			a:    time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local),
			b:    time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sameCalendarDay(tt.a, tt.b); got != tt.want {
				t.Errorf("sameCalendarDay(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
