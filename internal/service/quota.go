// Package service contains the business logic layer: the quota tracker, the
// fork-graph orchestrator, and the auth flows. Handlers parse HTTP and call
// in here; repositories and the GitHub client are injected as interfaces so
// every rule in this package is testable with plain Go function calls.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/forklens/internal/apperror"
	"github.com/sakif/forklens/internal/repository"
)

// QuotaService enforces the per-user daily search allowance.
//
// STATE MACHINE (per user, on every check):
//  1. Day rollover — if last_search_reset falls on a different calendar day
//     than now, zero the counter and stamp the reset time. Lazy: this only
//     happens when a request arrives, never on a schedule.
//  2. Limit check + consume — one conditional UPDATE in the repository. At
//     or over the limit → QuotaExceeded, no mutation. Under → increment.
//
// The rollover (step 1) is not atomic with the consume (step 2), and doesn't
// need to be: two concurrent first-requests-of-the-day both reset to zero and
// then race the conditional increment, which stays correct.
type QuotaService struct {
	users  repository.UserRepository
	limit  int
	logger *slog.Logger

	// now is swappable so tests can cross day boundaries.
	now func() time.Time
}

// NewQuotaService creates a QuotaService with the given daily limit.
func NewQuotaService(users repository.UserRepository, limit int, logger *slog.Logger) *QuotaService {
	return &QuotaService{
		users:  users,
		limit:  limit,
		logger: logger,
		now:    time.Now,
	}
}

// Limit returns the configured daily allowance, for display.
func (s *QuotaService) Limit() int {
	return s.limit
}

// CheckAndConsume spends one quota unit for the user, returning the count
// after consumption. Fails with apperror.ErrQuotaExceeded (carrying
// limit and current) when the allowance is exhausted; the counter is not
// touched in that case.
//
// A consumed unit is never refunded — if the upstream fetch that follows
// fails, the unit stays spent (refunding would need a compensating write for
// a one-unit user-facing cost; not worth it).
func (s *QuotaService) CheckAndConsume(ctx context.Context, userID string) (int, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service/quota: loading user %s: %w", userID, err)
	}

	now := s.now()
	if !sameCalendarDay(user.LastSearchReset, now) {
		if err := s.users.ResetDailySearches(ctx, userID, now); err != nil {
			return 0, fmt.Errorf("service/quota: resetting daily searches for user %s: %w", userID, err)
		}
		s.logger.Info("daily search quota reset",
			slog.String("userID", userID),
			slog.Time("previousReset", user.LastSearchReset),
		)
	}

	consumed, count, err := s.users.ConsumeSearchQuota(ctx, userID, s.limit)
	if err != nil {
		return 0, fmt.Errorf("service/quota: consuming quota for user %s: %w", userID, err)
	}
	if !consumed {
		return count, apperror.QuotaExceeded(s.limit, count)
	}

	return count, nil
}

// sameCalendarDay reports whether a and b fall on the same calendar day in
// the server's local zone. The zone is the deployment's reference time zone —
// a user's "day" resets at the server's midnight, not theirs.
func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}
