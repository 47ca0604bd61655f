// Package repository declares the storage interfaces consumed by the service
// layer. The concrete SQLite implementation lives in repository/sqlite;
// services only ever see these interfaces, which is what lets the tests
// substitute in-memory mocks.
package repository

import (
	"context"
	"time"

	"github.com/sakif/forklens/internal/model"
)

type UserRepository interface {
	// Upsert creates the user on first sign-in (keyed by GitHub ID) or
	// refreshes login/email/avatar on subsequent sign-ins. Fills in ID and
	// timestamps on the passed model.
	Upsert(ctx context.Context, user *model.User) error

	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// ResetDailySearches zeroes the user's daily counter and stamps the
	// reset time. Called by the quota tracker on day rollover.
	ResetDailySearches(ctx context.Context, id string, now time.Time) error

	// ConsumeSearchQuota atomically increments daily_searches if and only if
	// it is currently below limit. Returns (consumed, countAfter). The
	// increment and the limit check are a single conditional UPDATE, so two
	// concurrent requests can never both push the count past the limit.
	ConsumeSearchQuota(ctx context.Context, id string, limit int) (bool, int, error)
}

type GraphRepository interface {
	// GetByRepo looks up the snapshot for the natural key
	// (userID, repoOwner, repoName). Returns apperror.ErrNotFound if absent.
	GetByRepo(ctx context.Context, userID, repoOwner, repoName string) (*model.SavedGraph, error)

	GetByID(ctx context.Context, id string) (*model.SavedGraph, error)

	// ListByUser returns the user's saved graphs, most recently updated
	// first.
	ListByUser(ctx context.Context, userID string) ([]model.SavedGraph, error)

	// CountByUser counts distinct saved graphs, used to enforce the slot cap.
	CountByUser(ctx context.Context, userID string) (int, error)

	Insert(ctx context.Context, graph *model.SavedGraph) error
	Update(ctx context.Context, graph *model.SavedGraph) error
	Delete(ctx context.Context, id string) error
}
