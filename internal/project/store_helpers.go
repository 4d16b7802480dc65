package project

import (
	"database/sql"
	"time"
)

const projectColumns = "id, client_id, name, source_language, target_language, created_at, updated_at"

const segmentColumns = "id, project_id, seq, start_ms, end_ms, speaker, text, translated_text, emotion, speed, status, audio_path, audio_duration_ms, speed_rounds, text_rounds, error_message, created_at, updated_at"

const batchColumns = "id, project_id, forced, state, ok_count, speed_adjusted_count, text_adjusted_count, failed_count, skipped_count, started_at, finished_at"

type rowScanner interface{ Scan(dest ...any) error }

func scanProject(scanner rowScanner) (*Project, error) {
	var (
		p          Project
		sourceLang sql.NullString
		targetLang sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&p.ID,
		&p.ClientID,
		&p.Name,
		&sourceLang,
		&targetLang,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	p.SourceLanguage = sourceLang.String
	p.TargetLanguage = targetLang.String
	p.CreatedAt = parseTimestampRaw(createdRaw)
	p.UpdatedAt = parseTimestampRaw(updatedRaw)
	return &p, nil
}

func scanSegment(scanner rowScanner) (*Segment, error) {
	var (
		seg        Segment
		statusStr  string
		translated sql.NullString
		audioPath  sql.NullString
		errMsg     sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&seg.ID,
		&seg.ProjectID,
		&seg.Index,
		&seg.StartMS,
		&seg.EndMS,
		&seg.Speaker,
		&seg.Text,
		&translated,
		&seg.Emotion,
		&seg.Speed,
		&statusStr,
		&audioPath,
		&seg.AudioDurationMS,
		&seg.SpeedRounds,
		&seg.TextRounds,
		&errMsg,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	seg.Status = Status(statusStr)
	seg.TranslatedText = translated.String
	seg.AudioPath = audioPath.String
	seg.ErrorMessage = errMsg.String
	seg.CreatedAt = parseTimestampRaw(createdRaw)
	seg.UpdatedAt = parseTimestampRaw(updatedRaw)
	return &seg, nil
}

func scanBatchJob(scanner rowScanner) (*BatchJob, error) {
	var (
		job         BatchJob
		forced      int64
		stateStr    string
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.ProjectID,
		&forced,
		&stateStr,
		&job.Stats.OK,
		&job.Stats.SpeedAdjusted,
		&job.Stats.TextAdjusted,
		&job.Stats.Failed,
		&job.Stats.Skipped,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	job.Forced = forced != 0
	job.State = BatchState(stateStr)
	job.StartedAt = parseTimestampRaw(startedRaw)
	if finishedRaw.Valid {
		finished := parseTimestampRaw(finishedRaw.String)
		job.FinishedAt = &finished
	}
	return &job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimestampRaw(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts
	}
	return time.Time{}
}
