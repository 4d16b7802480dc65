package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateProject inserts a project together with its segments in one
// transaction. Missing ids and timestamps are filled in.
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	if p == nil {
		return errors.New("nil project")
	}
	if strings.TrimSpace(p.ClientID) == "" {
		return errors.New("project client id required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("project name required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	timestamp := now.Format(time.RFC3339Nano)

	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO projects (id, client_id, name, source_language, target_language, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.ClientID,
		p.Name,
		p.SourceLanguage,
		p.TargetLanguage,
		timestamp,
		timestamp,
	); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}

	for i, seg := range p.Segments {
		if seg.ID == "" {
			seg.ID = uuid.NewString()
		}
		seg.ProjectID = p.ID
		if seg.Index == 0 {
			seg.Index = i + 1
		}
		if seg.Status == "" {
			seg.Status = StatusPending
		}
		if seg.Speed == 0 {
			seg.Speed = 1.0
		}
		if seg.Emotion == "" {
			seg.Emotion = EmotionAuto
		}
		seg.CreatedAt = now
		seg.UpdatedAt = now
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO segments (
                id, project_id, seq, start_ms, end_ms, speaker, text, translated_text,
                emotion, speed, status, audio_path, audio_duration_ms,
                speed_rounds, text_rounds, error_message, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			seg.ID,
			seg.ProjectID,
			seg.Index,
			seg.StartMS,
			seg.EndMS,
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
			timestamp,
			timestamp,
		); err != nil {
			return fmt.Errorf("insert segment %d: %w", seg.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit project: %w", err)
	}
	return nil
}

// GetProject fetches a project with its segments ordered by cue index.
// Returns nil when the project does not exist.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	segments, err := s.ListSegments(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Segments = segments
	return p, nil
}

// ListProjects returns projects without their segments, newest first.
// An empty clientID lists all projects.
func (s *Store) ListProjects(ctx context.Context, clientID string) ([]*Project, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + projectColumns + ` FROM projects`
	args := []any{}
	if strings.TrimSpace(clientID) != "" {
		query += ` WHERE client_id = ?`
		args = append(args, clientID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project and, via cascade, its segments and jobs.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteProjectsByClient removes every project owned by the client and
// returns how many were deleted.
func (s *Store) DeleteProjectsByClient(ctx context.Context, clientID string) (int, error) {
	if strings.TrimSpace(clientID) == "" {
		return 0, errors.New("client id required")
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM projects WHERE client_id = ?`, clientID)
	if err != nil {
		return 0, fmt.Errorf("delete projects by client: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete projects rows: %w", err)
	}
	return int(affected), nil
}

// TouchProject bumps the project updated_at timestamp.
func (s *Store) TouchProject(ctx context.Context, id string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("touch project: %w", err)
	}
	return nil
}
