package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/forklens/internal/apperror"
	"github.com/sakif/forklens/internal/model"
	"github.com/sakif/forklens/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, github_id, login, email, avatar_url,
	daily_searches, last_search_reset, created_at, updated_at`

// Upsert inserts or updates a user based on their GitHub ID.
//
// First sign-in → INSERT with a fresh xid and a zeroed quota counter.
// Subsequent sign-ins → UPDATE login/email/avatar in case they changed on
// GitHub, keeping the existing internal ID and, importantly, the existing
// quota state — logging out and back in must not reset daily_searches.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	var existingID string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID)

	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	if existingID != "" {
		user.ID = existingID
		user.UpdatedAt = time.Now()
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET login = ?, email = ?, avatar_url = ?, updated_at = ?
			 WHERE id = ?`,
			user.Login,
			user.Email,
			user.AvatarURL,
			user.UpdatedAt,
			user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		return nil
	}

	now := time.Now()
	user.ID = xid.New().String()
	user.DailySearches = 0
	user.LastSearchReset = now
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, github_id, login, email, avatar_url,
		                    daily_searches, last_search_reset, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.GitHubID,
		user.Login,
		user.Email,
		user.AvatarURL,
		user.DailySearches,
		user.LastSearchReset,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user (githubID=%d): %w", user.GitHubID, err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email address.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, `WHERE email = ?`, email)
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users `+where, arg,
	).Scan(
		&u.ID,
		&u.GitHubID,
		&u.Login,
		&u.Email,
		&u.AvatarURL,
		&u.DailySearches,
		&u.LastSearchReset,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user %v: %w", arg, err)
	}

	return &u, nil
}

// ResetDailySearches zeroes the daily counter and stamps the reset time.
// The quota tracker calls this once per user per calendar day, lazily.
func (db *DB) ResetDailySearches(ctx context.Context, id string, now time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET daily_searches = 0, last_search_reset = ?, updated_at = ?
		 WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: resetting daily searches for user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

// ConsumeSearchQuota atomically spends one quota unit if the user is under
// the limit.
//
// The check and the increment are one conditional UPDATE — the WHERE clause
// on the current count is the compare-and-set. Two concurrent requests both
// at limit-1 serialize inside SQLite: one UPDATE matches, the other matches
// zero rows. That is the whole concurrency story for the quota; no
// application-level lock is needed.
//
// Returns (consumed, countAfter). countAfter is re-read after the UPDATE so
// the caller can report "current/limit" either way.
func (db *DB) ConsumeSearchQuota(ctx context.Context, id string, limit int) (bool, int, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET daily_searches = daily_searches + 1, updated_at = ?
		 WHERE id = ? AND daily_searches < ?`,
		time.Now(), id, limit,
	)
	if err != nil {
		return false, 0, fmt.Errorf("sqlite: consuming search quota for user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}

	var count int
	err = db.conn.QueryRowContext(ctx,
		`SELECT daily_searches FROM users WHERE id = ?`, id,
	).Scan(&count)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, 0, apperror.NotFound("user", id)
		}
		return false, 0, fmt.Errorf("sqlite: reading search count for user %s: %w", id, err)
	}

	return rowsAffected > 0, count, nil
}
