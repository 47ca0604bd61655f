package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/forklens/internal/apperror"
	"github.com/sakif/forklens/internal/model"
	"github.com/sakif/forklens/internal/repository"
)

// ForkFetcher is the upstream boundary: one query, one normalized report or
// an upstream error. Satisfied by github.Client; mocked in tests.
type ForkFetcher interface {
	FetchForks(ctx context.Context, owner, name string) (*model.ForkReport, error)
}

// GraphConfig carries the orchestrator's policy knobs.
type GraphConfig struct {
	FreshnessWindow     time.Duration // snapshot age below which reads are served from storage
	ActiveThresholdDays int           // "active fork" = pushed within this many days
	SavedGraphCap       int           // distinct saved graphs per user
	DemoRepo            string        // "owner/name" cached for anonymous landing traffic
	DemoCacheTTL        time.Duration
}

// GraphService is the snapshot cache / orchestrator. For each request it
// decides between serving a stored snapshot, refreshing it, or fetching
// fresh data, while enforcing the daily quota and the saved-graph cap.
//
// TWO WRITE PATHS, ON PURPOSE:
// The read path silently upserts the snapshot it fetched (casual browsing
// keeps the cache warm). The save path is create-only and rejects duplicates
// (explicit pinning). They share the snapshot-write primitive but are not
// unified — they express different user intents.
type GraphService struct {
	users   repository.UserRepository
	graphs  repository.GraphRepository
	fetcher ForkFetcher
	quota   *QuotaService
	cfg     GraphConfig
	logger  *slog.Logger

	// Per-(user,repo) locks serialize concurrent refreshes of the same
	// snapshot. After acquiring the lock the snapshot is re-read, so a
	// duplicate request (double click, retried tab) finds the fresh row and
	// is served free instead of spending a second quota unit. Entries are
	// deleted when released — the map stays as small as the in-flight set.
	mu        sync.Mutex
	inflight  map[string]*refreshLock
	demoCache demoCache
	now       func() time.Time
}

type refreshLock struct {
	sync.Mutex
	refs int
}

// demoCache is the long-lived anonymous cache for the single demo repository
// shown on the landing page. Everything else anonymous goes straight
// upstream.
type demoCache struct {
	mu        sync.Mutex
	report    *model.ForkReport
	fetchedAt time.Time
}

// NewGraphService creates the orchestrator.
func NewGraphService(
	users repository.UserRepository,
	graphs repository.GraphRepository,
	fetcher ForkFetcher,
	quota *QuotaService,
	cfg GraphConfig,
	logger *slog.Logger,
) *GraphService {
	return &GraphService{
		users:    users,
		graphs:   graphs,
		fetcher:  fetcher,
		quota:    quota,
		cfg:      cfg,
		logger:   logger,
		inflight: make(map[string]*refreshLock),
		now:      time.Now,
	}
}

// GetForkData is the read path. userID may be empty for anonymous requests.
//
// Decision procedure, in order:
//  1. Anonymous → fetch directly (demo repo via the long-lived cache).
//     No persistence, no quota.
//  2. Unknown userID → same as anonymous. Defensive: a valid session for a
//     deleted user shouldn't 500.
//  3. Fresh snapshot for (user, owner, name) → return its payload.
//     Zero quota, zero upstream calls. This is the load-bearing
//     optimization: repeat views within the window are free and instant.
//  4. Stale or absent → consume one quota unit (terminal on failure),
//     then fetch, then upsert the snapshot with updatedAt = now.
func (s *GraphService) GetForkData(ctx context.Context, userID, owner, name string) (*model.ForkReport, error) {
	owner = strings.TrimSpace(owner)
	name = strings.TrimSpace(name)
	if owner == "" || name == "" {
		return nil, apperror.ValidationFailed("repo", "owner and repository name are required")
	}

	if userID == "" {
		return s.anonymousFetch(ctx, owner, name)
	}

	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Warn("fork request for unknown user, serving anonymously",
				slog.String("userID", userID),
			)
			return s.anonymousFetch(ctx, owner, name)
		}
		return nil, fmt.Errorf("service/graph: loading user %s: %w", userID, err)
	}

	unlock := s.lockRepo(userID, owner, name)
	defer unlock()

	existing, err := s.graphs.GetByRepo(ctx, userID, owner, name)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/graph: loading snapshot: %w", err)
	}

	now := s.now()
	if existing != nil && now.Sub(existing.UpdatedAt) < s.cfg.FreshnessWindow {
		s.logger.Debug("serving fresh snapshot",
			slog.String("userID", userID),
			slog.String("repo", owner+"/"+name),
			slog.Time("updatedAt", existing.UpdatedAt),
		)
		return existing.Payload, nil
	}

	// Quota before fetch. If this fails the request ends here — and if the
	// fetch after it fails, the unit stays spent (no refund).
	if _, err := s.quota.CheckAndConsume(ctx, userID); err != nil {
		return nil, err
	}

	report, err := s.fetcher.FetchForks(ctx, owner, name)
	if err != nil {
		return nil, err
	}

	if err := s.writeSnapshot(ctx, userID, owner, name, report, existing); err != nil {
		// The fetch succeeded; losing the cache write shouldn't fail the
		// request the user is looking at.
		s.logger.Error("failed to persist snapshot",
			slog.String("userID", userID),
			slog.String("repo", owner+"/"+name),
			slog.String("error", err.Error()),
		)
	}

	return report, nil
}

// SaveGraph is the explicit pinning path: create-only.
//
// Failure order matters: a duplicate of an already-saved repository is
// AlreadySaved (conflict) even when the user is also at the slot cap.
func (s *GraphService) SaveGraph(ctx context.Context, userID, owner, name string, report *model.ForkReport) (*model.SavedGraph, error) {
	if userID == "" {
		return nil, apperror.Unauthenticated("sign in to save graphs")
	}

	owner = strings.TrimSpace(owner)
	name = strings.TrimSpace(name)
	if owner == "" || name == "" {
		return nil, apperror.ValidationFailed("repo", "owner and repository name are required")
	}
	if report == nil {
		return nil, apperror.ValidationFailed("report", "fork report is required")
	}

	if _, err := s.graphs.GetByRepo(ctx, userID, owner, name); err == nil {
		return nil, &apperror.AppError{
			Err:     apperror.ErrConflict,
			Message: fmt.Sprintf("%s/%s is already saved", owner, name),
		}
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/graph: checking existing snapshot: %w", err)
	}

	count, err := s.graphs.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/graph: counting graphs for user %s: %w", userID, err)
	}
	if count >= s.cfg.SavedGraphCap {
		return nil, apperror.SlotLimitReached(s.cfg.SavedGraphCap)
	}

	graph := &model.SavedGraph{
		UserID:      userID,
		RepoOwner:   owner,
		RepoName:    name,
		ForkCount:   report.ForkCount,
		ActiveCount: report.ActiveCount(s.now(), s.cfg.ActiveThresholdDays),
		Payload:     report,
	}
	if err := s.graphs.Insert(ctx, graph); err != nil {
		return nil, fmt.Errorf("service/graph: saving graph %s/%s: %w", owner, name, err)
	}

	s.logger.Info("graph saved",
		slog.String("userID", userID),
		slog.String("repo", owner+"/"+name),
		slog.Int("slotsUsed", count+1),
	)

	return graph, nil
}

// DeleteGraph removes a saved graph after verifying ownership. Deleting a
// graph that belongs to someone else is forbidden, not not-found — the row
// exists, the caller just may not touch it.
func (s *GraphService) DeleteGraph(ctx context.Context, userID, graphID string) error {
	if userID == "" {
		return apperror.Unauthenticated("sign in to delete graphs")
	}
	graphID = strings.TrimSpace(graphID)
	if graphID == "" {
		return apperror.ValidationFailed("id", "graph ID is required")
	}

	graph, err := s.graphs.GetByID(ctx, graphID)
	if err != nil {
		return err
	}
	if graph.UserID != userID {
		return apperror.Forbidden("graph belongs to another user")
	}

	if err := s.graphs.Delete(ctx, graphID); err != nil {
		return err
	}

	s.logger.Info("graph deleted",
		slog.String("userID", userID),
		slog.String("graphID", graphID),
	)
	return nil
}

// ListGraphs returns the user's saved graphs, most recently updated first.
func (s *GraphService) ListGraphs(ctx context.Context, userID string) ([]model.SavedGraph, error) {
	if userID == "" {
		return nil, apperror.Unauthenticated("sign in to list graphs")
	}
	graphs, err := s.graphs.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/graph: listing graphs for user %s: %w", userID, err)
	}
	return graphs, nil
}

// anonymousFetch serves unauthenticated traffic: always upstream, except the
// demo repository which is cached in process for the configured TTL.
func (s *GraphService) anonymousFetch(ctx context.Context, owner, name string) (*model.ForkReport, error) {
	if owner+"/"+name != s.cfg.DemoRepo {
		return s.fetcher.FetchForks(ctx, owner, name)
	}

	s.demoCache.mu.Lock()
	defer s.demoCache.mu.Unlock()

	if s.demoCache.report != nil && s.now().Sub(s.demoCache.fetchedAt) < s.cfg.DemoCacheTTL {
		return s.demoCache.report, nil
	}

	report, err := s.fetcher.FetchForks(ctx, owner, name)
	if err != nil {
		// A stale demo graph beats an error on the landing page.
		if s.demoCache.report != nil {
			return s.demoCache.report, nil
		}
		return nil, err
	}

	s.demoCache.report = report
	s.demoCache.fetchedAt = s.now()
	return report, nil
}

// writeSnapshot upserts the snapshot for the natural key, computing the
// active count at write time. Shared by the read path (upsert) — the save
// path inserts through SaveGraph with its own cap rules.
//
// The slot cap holds here too: a user at the cap browsing a fifth repository
// still gets the fresh report, it just isn't cached. Refreshes of existing
// snapshots always go through.
func (s *GraphService) writeSnapshot(ctx context.Context, userID, owner, name string, report *model.ForkReport, existing *model.SavedGraph) error {
	active := report.ActiveCount(s.now(), s.cfg.ActiveThresholdDays)

	if existing != nil {
		existing.ForkCount = report.ForkCount
		existing.ActiveCount = active
		existing.Payload = report
		return s.graphs.Update(ctx, existing)
	}

	count, err := s.graphs.CountByUser(ctx, userID)
	if err != nil {
		return err
	}
	if count >= s.cfg.SavedGraphCap {
		s.logger.Debug("snapshot not cached, user at slot cap",
			slog.String("userID", userID),
			slog.String("repo", owner+"/"+name),
		)
		return nil
	}

	return s.graphs.Insert(ctx, &model.SavedGraph{
		UserID:      userID,
		RepoOwner:   owner,
		RepoName:    name,
		ForkCount:   report.ForkCount,
		ActiveCount: active,
		Payload:     report,
	})
}

// lockRepo acquires the per-(user,repo) refresh lock and returns its release
// function. Reference counting keeps the map from growing with every repo
// ever requested.
func (s *GraphService) lockRepo(userID, owner, name string) func() {
	key := userID + "\x00" + owner + "/" + name

	s.mu.Lock()
	l, ok := s.inflight[key]
	if !ok {
		l = &refreshLock{}
		s.inflight[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()

	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.inflight, key)
		}
		s.mu.Unlock()
	}
}
