package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
)

// StartRun inserts a fetch run in running state.
func (s *Store) StartRun(ctx context.Context, run feeds.FetchRun) error {
	status := run.Status
	if status == "" {
		status = feeds.RunRunning
	}
	if _, err := s.pool.Exec(ctx, `
INSERT INTO fetch_runs (id, issn, reason, started_at, status, fetched)
VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.ISSN, run.Reason, run.StartedAt.UTC(), string(status), run.Fetched,
	); err != nil {
		return fmt.Errorf("insert fetch run: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with a status, count and optional error.
func (s *Store) CompleteRun(
	ctx context.Context,
	id string,
	finishedAt time.Time,
	status feeds.FetchRunStatus,
	fetched int,
	errMsg *string,
) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE fetch_runs
SET finished_at = $2, status = $3, fetched = $4, error_message = $5
WHERE id = $1`,
		id, finishedAt.UTC(), string(status), fetched, errMsg,
	)
	if err != nil {
		return fmt.Errorf("complete fetch run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return feeds.ErrNotFound
	}
	return nil
}

// ListRuns returns runs newest first, filtered by ISSN when given.
func (s *Store) ListRuns(ctx context.Context, issn string, limit, offset int) ([]feeds.FetchRun, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id::text, issn, reason, started_at, finished_at, status, fetched, error_message
FROM fetch_runs
WHERE $1 = '' OR issn = $1
ORDER BY started_at DESC
LIMIT $2 OFFSET $3`, issn, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list fetch runs: %w", err)
	}
	defer rows.Close()
	runs := make([]feeds.FetchRun, 0)
	for rows.Next() {
		var (
			run    feeds.FetchRun
			status string
		)
		if err := rows.Scan(
			&run.ID, &run.ISSN, &run.Reason, &run.StartedAt, &run.FinishedAt,
			&status, &run.Fetched, &run.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("scan fetch run: %w", err)
		}
		run.Status = feeds.FetchRunStatus(status)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fetch runs: %w", err)
	}
	return runs, nil
}
