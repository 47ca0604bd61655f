package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/forklens/internal/apperror"
	"github.com/sakif/forklens/internal/model"
	"github.com/sakif/forklens/internal/repository"
)

// compile-time check that *DB implements repository.GraphRepository
var _ repository.GraphRepository = (*DB)(nil)

const graphColumns = `id, user_id, repo_owner, repo_name,
	fork_count, active_count, payload, created_at, updated_at`

// The ForkReport payload is stored as a JSON TEXT column rather than
// normalized into a forks table. The report is only ever read and written
// whole (replay without re-fetching), never queried by fork, so a blob is
// the honest representation.

// GetByRepo looks up the snapshot for (userID, repoOwner, repoName).
func (db *DB) GetByRepo(ctx context.Context, userID, repoOwner, repoName string) (*model.SavedGraph, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+graphColumns+` FROM saved_graphs
		 WHERE user_id = ? AND repo_owner = ? AND repo_name = ?`,
		userID, repoOwner, repoName,
	)
	g, err := scanGraph(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("graph", repoOwner+"/"+repoName)
		}
		return nil, fmt.Errorf("sqlite: getting graph %s/%s for user %s: %w",
			repoOwner, repoName, userID, err)
	}
	return g, nil
}

// GetByID retrieves a saved graph by its ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.SavedGraph, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+graphColumns+` FROM saved_graphs WHERE id = ?`, id,
	)
	g, err := scanGraph(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("graph", id)
		}
		return nil, fmt.Errorf("sqlite: getting graph %s: %w", id, err)
	}
	return g, nil
}

// ListByUser returns the user's saved graphs, most recently updated first.
func (db *DB) ListByUser(ctx context.Context, userID string) ([]model.SavedGraph, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+graphColumns+` FROM saved_graphs
		 WHERE user_id = ?
		 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing graphs for user %s: %w", userID, err)
	}
	defer rows.Close()

	var graphs []model.SavedGraph
	for rows.Next() {
		g, err := scanGraph(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning graph row: %w", err)
		}
		graphs = append(graphs, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating graphs: %w", err)
	}

	if graphs == nil {
		graphs = []model.SavedGraph{}
	}
	return graphs, nil
}

// CountByUser counts the user's saved graphs for the slot-cap check.
func (db *DB) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM saved_graphs WHERE user_id = ?`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting graphs for user %s: %w", userID, err)
	}
	return count, nil
}

// Insert stores a new snapshot. The natural-key UNIQUE constraint turns a
// concurrent duplicate insert into an error rather than a second row.
func (db *DB) Insert(ctx context.Context, graph *model.SavedGraph) error {
	graph.ID = xid.New().String()

	now := time.Now()
	graph.CreatedAt = now
	graph.UpdatedAt = now

	payload, err := json.Marshal(graph.Payload)
	if err != nil {
		return fmt.Errorf("sqlite: encoding graph payload: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO saved_graphs (id, user_id, repo_owner, repo_name,
		                           fork_count, active_count, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		graph.ID,
		graph.UserID,
		graph.RepoOwner,
		graph.RepoName,
		graph.ForkCount,
		graph.ActiveCount,
		string(payload),
		graph.CreatedAt,
		graph.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting graph %s/%s for user %s: %w",
			graph.RepoOwner, graph.RepoName, graph.UserID, err)
	}

	return nil
}

// Update refreshes an existing snapshot in place, advancing updated_at.
// Last write wins — concurrent refreshes of the same graph overwrite each
// other, which is acceptable because both wrote equally fresh data.
func (db *DB) Update(ctx context.Context, graph *model.SavedGraph) error {
	graph.UpdatedAt = time.Now()

	payload, err := json.Marshal(graph.Payload)
	if err != nil {
		return fmt.Errorf("sqlite: encoding graph payload: %w", err)
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE saved_graphs
		 SET fork_count = ?, active_count = ?, payload = ?, updated_at = ?
		 WHERE id = ?`,
		graph.ForkCount,
		graph.ActiveCount,
		string(payload),
		graph.UpdatedAt,
		graph.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating graph %s: %w", graph.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("graph", graph.ID)
	}

	return nil
}

// Delete removes a saved graph by its ID.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM saved_graphs WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting graph %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("graph", id)
	}

	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanGraph(s scanner) (*model.SavedGraph, error) {
	var (
		g       model.SavedGraph
		payload string
	)
	err := s.Scan(
		&g.ID,
		&g.UserID,
		&g.RepoOwner,
		&g.RepoName,
		&g.ForkCount,
		&g.ActiveCount,
		&payload,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	var report model.ForkReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("decoding payload for graph %s: %w", g.ID, err)
	}
	g.Payload = &report

	return &g, nil
}
