package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ListSegments returns the segments of a project ordered by cue index.
func (s *Store) ListSegments(ctx context.Context, projectID string) ([]*Segment, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE project_id = ? ORDER BY seq`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var segments []*Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// GetSegment fetches one segment by id. Returns nil when absent.
func (s *Store) GetSegment(ctx context.Context, id string) (*Segment, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id = ?`, id)
	seg, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return seg, nil
}

// UpdateSegment persists the mutable synthesis fields of a segment.
func (s *Store) UpdateSegment(ctx context.Context, seg *Segment) error {
	if seg == nil {
		return errors.New("nil segment")
	}
	if seg.ID == "" {
		return errors.New("segment id required")
	}
	seg.UpdatedAt = time.Now().UTC()

	res, err := s.execWithRetry(
		ctx,
		`UPDATE segments SET
            speaker = ?,
            text = ?,
            translated_text = ?,
            emotion = ?,
            speed = ?,
            status = ?,
            audio_path = ?,
            audio_duration_ms = ?,
            speed_rounds = ?,
            text_rounds = ?,
            error_message = ?,
            updated_at = ?
        WHERE id = ?`,
		seg.Speaker,
		seg.Text,
		nullableString(seg.TranslatedText),
		seg.Emotion,
		seg.Speed,
		string(seg.Status),
		nullableString(seg.AudioPath),
		seg.AudioDurationMS,
		seg.SpeedRounds,
		seg.TextRounds,
		nullableString(seg.ErrorMessage),
		seg.UpdatedAt.Format(time.RFC3339Nano),
		seg.ID,
	)
	if err != nil {
		return fmt.Errorf("update segment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update segment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SegmentStatusCounts aggregates segment counts per status for a project.
func (s *Store) SegmentStatusCounts(ctx context.Context, projectID string) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status, COUNT(1) FROM segments WHERE project_id = ? GROUP BY status`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("segment status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			statusStr string
			count     int
		)
		if err := rows.Scan(&statusStr, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[Status(statusStr)] = count
	}
	return counts, rows.Err()
}

// ResetProcessingSegments rolls segments stuck in a processing status back
// to pending. Used on startup after an unclean shutdown.
func (s *Store) ResetProcessingSegments(ctx context.Context, projectID string) (int, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE segments SET status = ?, updated_at = ?
         WHERE project_id = ? AND status IN (?, ?, ?, ?)`,
		string(StatusPending),
		time.Now().UTC().Format(time.RFC3339Nano),
		projectID,
		string(StatusTranslating),
		string(StatusSynthesizing),
		string(StatusChecking),
		string(StatusCorrecting),
	)
	if err != nil {
		return 0, fmt.Errorf("reset processing segments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset processing rows: %w", err)
	}
	return int(affected), nil
}
