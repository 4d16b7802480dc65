package project

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the synthesis lifecycle of a segment.
type Status string

const (
	StatusPending      Status = "pending"
	StatusTranslating  Status = "translating"
	StatusSynthesizing Status = "synthesizing"
	StatusChecking     Status = "checking"
	StatusCorrecting   Status = "correcting"
	StatusOK           Status = "ok"
	StatusFailed       Status = "failed"
	StatusSkipped      Status = "skipped"
)

var allStatuses = []Status{
	StatusPending,
	StatusTranslating,
	StatusSynthesizing,
	StatusChecking,
	StatusCorrecting,
	StatusOK,
	StatusFailed,
	StatusSkipped,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusTranslating:  {},
	StatusSynthesizing: {},
	StatusChecking:     {},
	StatusCorrecting:   {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	if _, ok := statusSet[normalized]; ok {
		return normalized, true
	}
	return "", false
}

// IsProcessing reports whether the status marks in-flight synthesis work.
func (s Status) IsProcessing() bool {
	_, ok := processingStatuses[s]
	return ok
}

// IsTerminal reports whether synthesis has finished with the segment. Only
// terminal segments can be placed on the merged timeline.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusOK, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// Segment is one subtitle cue with its synthesis state.
type Segment struct {
	ID              string
	ProjectID       string
	Index           int
	StartMS         int64
	EndMS           int64
	Speaker         string
	Text            string
	TranslatedText  string
	Emotion         string
	Speed           float64
	Status          Status
	AudioPath       string
	AudioDurationMS int64
	SpeedRounds     int
	TextRounds      int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TargetDurationMS returns the cue window the synthesized audio must fit.
func (s *Segment) TargetDurationMS() int64 {
	return s.EndMS - s.StartMS
}

// SetFailed marks the segment failed with the supplied reason.
func (s *Segment) SetFailed(reason string) {
	s.Status = StatusFailed
	s.ErrorMessage = strings.TrimSpace(reason)
}

// SetSkipped marks the segment skipped; the merged track substitutes
// silence for its cue window.
func (s *Segment) SetSkipped(reason string) {
	s.Status = StatusSkipped
	s.ErrorMessage = strings.TrimSpace(reason)
}

// ResetForSynthesis returns the segment to pending and clears the results of
// a previous run. Translated text is kept; a forced batch may still decide to
// retranslate.
func (s *Segment) ResetForSynthesis() {
	s.Status = StatusPending
	s.Speed = 1.0
	s.AudioPath = ""
	s.AudioDurationMS = 0
	s.SpeedRounds = 0
	s.TextRounds = 0
	s.ErrorMessage = ""
}

// FormatTimestamp renders milliseconds as an SRT timestamp (HH:MM:SS,mmm).
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3600000
	ms -= hours * 3600000
	minutes := ms / 60000
	ms -= minutes * 60000
	seconds := ms / 1000
	millis := ms - seconds*1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}

// Project groups the segments of one subtitle file for one client.
type Project struct {
	ID             string
	ClientID       string
	Name           string
	SourceLanguage string
	TargetLanguage string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Segments []*Segment
}

// SegmentByID returns the attached segment with the given id, or nil.
func (p *Project) SegmentByID(id string) *Segment {
	for _, seg := range p.Segments {
		if seg.ID == id {
			return seg
		}
	}
	return nil
}

// BatchState represents the lifecycle of a batch job.
type BatchState string

const (
	BatchRunning   BatchState = "running"
	BatchCompleted BatchState = "completed"
	BatchCancelled BatchState = "cancelled"
	BatchFailed    BatchState = "failed"
)

// BatchJob records one orchestrated synthesis run over a project.
type BatchJob struct {
	ID         string
	ProjectID  string
	Forced     bool
	State      BatchState
	Stats      BatchStats
	StartedAt  time.Time
	FinishedAt *time.Time
}

// BatchStats aggregates per-segment outcomes for one batch run. Skipped
// covers both segments bypassed because they were already ok and segments
// abandoned by a cancellation before they produced audio.
type BatchStats struct {
	OK            int
	SpeedAdjusted int
	TextAdjusted  int
	Failed        int
	Skipped       int
}

// Total returns the number of segments the batch accounted for.
func (b BatchStats) Total() int {
	return b.OK + b.Failed + b.Skipped
}
