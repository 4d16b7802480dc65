package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateBatchJob inserts a running batch job record.
func (s *Store) CreateBatchJob(ctx context.Context, job *BatchJob) error {
	if job == nil {
		return errors.New("nil batch job")
	}
	if job.ProjectID == "" {
		return errors.New("batch project id required")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.State == "" {
		job.State = BatchRunning
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now().UTC()
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO batch_jobs (
            id, project_id, forced, state,
            ok_count, speed_adjusted_count, text_adjusted_count,
            failed_count, skipped_count,
            started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.ProjectID,
		boolToInt(job.Forced),
		string(job.State),
		job.Stats.OK,
		job.Stats.SpeedAdjusted,
		job.Stats.TextAdjusted,
		job.Stats.Failed,
		job.Stats.Skipped,
		job.StartedAt.Format(time.RFC3339Nano),
		nil,
	)
	if err != nil {
		return fmt.Errorf("insert batch job: %w", err)
	}
	return nil
}

// UpdateBatchJob persists state and statistics for a batch job.
func (s *Store) UpdateBatchJob(ctx context.Context, job *BatchJob) error {
	if job == nil || job.ID == "" {
		return errors.New("batch job id required")
	}
	var finished any
	if job.FinishedAt != nil {
		finished = job.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE batch_jobs SET
            state = ?,
            ok_count = ?,
            speed_adjusted_count = ?,
            text_adjusted_count = ?,
            failed_count = ?,
            skipped_count = ?,
            finished_at = ?
        WHERE id = ?`,
		string(job.State),
		job.Stats.OK,
		job.Stats.SpeedAdjusted,
		job.Stats.TextAdjusted,
		job.Stats.Failed,
		job.Stats.Skipped,
		finished,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update batch job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update batch job rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// LatestBatchJob returns the most recent batch job for a project, or nil.
func (s *Store) LatestBatchJob(ctx context.Context, projectID string) (*BatchJob, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+batchColumns+` FROM batch_jobs WHERE project_id = ? ORDER BY started_at DESC, id DESC LIMIT 1`,
		projectID,
	)
	job, err := scanBatchJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest batch job: %w", err)
	}
	return job, nil
}

// RunningBatchJob returns the running batch job for a project, or nil.
func (s *Store) RunningBatchJob(ctx context.Context, projectID string) (*BatchJob, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+batchColumns+` FROM batch_jobs WHERE project_id = ? AND state = ? ORDER BY started_at DESC LIMIT 1`,
		projectID,
		string(BatchRunning),
	)
	job, err := scanBatchJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("running batch job: %w", err)
	}
	return job, nil
}
