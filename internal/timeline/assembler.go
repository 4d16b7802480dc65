package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/media"
	"dubber/internal/project"
	"dubber/internal/services"
)

// SpanKind distinguishes real audio from generated silence.
type SpanKind string

const (
	SpanAudio   SpanKind = "audio"
	SpanSilence SpanKind = "silence"
)

// assembleDriftWarnMS is how far the probed output duration may stray from
// the planned span sum before a warning is logged.
const assembleDriftWarnMS = 500

// Span is one contiguous stretch of the merged track.
type Span struct {
	Kind       SpanKind
	SegmentID  string
	Source     string
	StartMS    int64
	DurationMS int64
}

// MergedTrack describes the assembled output. MeasuredDurationMS is probed
// from the written file, TotalDurationMS is the planned span sum.
type MergedTrack struct {
	Spans              []Span
	TotalDurationMS    int64
	MeasuredDurationMS int64
	OutputPath         string
}

// Assembler merges synthesized segment audio into one continuous track.
type Assembler struct {
	encoder  media.Encoder
	audioDir string
	format   string
	logger   *slog.Logger
}

// New builds an Assembler backed by the given encoder.
func New(cfg *config.Config, encoder media.Encoder, logger *slog.Logger) *Assembler {
	return &Assembler{
		encoder:  encoder,
		audioDir: cfg.Paths.AudioDir,
		format:   cfg.TTS.Format,
		logger:   logging.NewComponentLogger(logger, "timeline"),
	}
}

// Plan computes the span layout for the project without touching the
// filesystem. The same inputs always yield the same plan.
func (a *Assembler) Plan(proj *project.Project) ([]Span, error) {
	if proj == nil {
		return nil, services.Wrap(services.ErrValidation, "timeline", "plan", "nil project", nil)
	}
	for _, seg := range proj.Segments {
		if !seg.Status.IsTerminal() {
			detail := fmt.Sprintf("segment %d is %s", seg.Index, seg.Status)
			return nil, services.Wrap(services.ErrNotReady, "timeline", "plan", detail, nil)
		}
	}

	segments := make([]*project.Segment, len(proj.Segments))
	copy(segments, proj.Segments)
	sort.SliceStable(segments, func(i, j int) bool {
		if segments[i].StartMS != segments[j].StartMS {
			return segments[i].StartMS < segments[j].StartMS
		}
		return segments[i].Index < segments[j].Index
	})

	spans := make([]Span, 0, len(segments)*2)
	var cursor int64
	for _, seg := range segments {
		if gap := seg.StartMS - cursor; gap > 0 {
			spans = append(spans, Span{
				Kind:       SpanSilence,
				StartMS:    cursor,
				DurationMS: gap,
			})
			cursor += gap
		}
		span, err := segmentSpan(seg, cursor)
		if err != nil {
			return nil, err
		}
		spans = append(spans, span)
		cursor += span.DurationMS
	}
	return spans, nil
}

// segmentSpan maps one terminal segment onto the timeline starting at the
// cursor. Audio longer than the cue window is kept whole; the overrun pushes
// later spans back rather than being cut.
func segmentSpan(seg *project.Segment, cursor int64) (Span, error) {
	if seg.Status == project.StatusOK {
		if seg.AudioPath == "" || seg.AudioDurationMS <= 0 {
			detail := fmt.Sprintf("segment %d has no synthesized audio", seg.Index)
			return Span{}, services.Wrap(services.ErrValidation, "timeline", "plan", detail, nil)
		}
		return Span{
			Kind:       SpanAudio,
			SegmentID:  seg.ID,
			Source:     seg.AudioPath,
			StartMS:    cursor,
			DurationMS: seg.AudioDurationMS,
		}, nil
	}
	// failed and skipped segments hold their cue window open as silence
	return Span{
		Kind:       SpanSilence,
		SegmentID:  seg.ID,
		StartMS:    cursor,
		DurationMS: seg.TargetDurationMS(),
	}, nil
}

// Assemble renders the project's span plan into a single audio file and
// returns the merged track description.
func (a *Assembler) Assemble(ctx context.Context, proj *project.Project) (*MergedTrack, error) {
	spans, err := a.Plan(proj)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, services.Wrap(services.ErrValidation, "timeline", "assemble", "project has no segments", nil)
	}

	workDir := filepath.Join(a.audioDir, proj.ID, "timeline")
	if err := os.RemoveAll(workDir); err != nil {
		return nil, fmt.Errorf("reset timeline workspace: %w", err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create timeline workspace: %w", err)
	}

	inputs := make([]string, 0, len(spans))
	var total int64
	for i, span := range spans {
		total += span.DurationMS
		if span.Kind == SpanAudio {
			inputs = append(inputs, span.Source)
			continue
		}
		silencePath := filepath.Join(workDir, fmt.Sprintf("silence_%03d.%s", i, a.format))
		if err := a.encoder.Silence(ctx, span.DurationMS, silencePath); err != nil {
			return nil, fmt.Errorf("generate silence span %d: %w", i, err)
		}
		inputs = append(inputs, silencePath)
	}

	outputPath := filepath.Join(a.audioDir, proj.ID, "merged."+a.format)
	if err := a.encoder.Concat(ctx, inputs, outputPath); err != nil {
		return nil, fmt.Errorf("merge timeline: %w", err)
	}

	measured, err := a.encoder.Probe(ctx, outputPath)
	if err != nil {
		return nil, fmt.Errorf("probe merged track: %w", err)
	}

	logger := logging.WithContext(services.WithProjectID(ctx, proj.ID), a.logger)
	if drift := measured - total; drift > assembleDriftWarnMS || drift < -assembleDriftWarnMS {
		logger.Warn("merged track drifts from planned duration",
			logging.Int64("planned_ms", total),
			logging.Int64("measured_ms", measured),
		)
	}
	logger.Info("timeline assembled",
		logging.String(logging.FieldEventType, "timeline_assembled"),
		logging.Int("spans", len(spans)),
		logging.Int64("duration_ms", total),
		logging.Int64("measured_ms", measured),
		logging.String("output", outputPath),
	)
	return &MergedTrack{
		Spans:              spans,
		TotalDurationMS:    total,
		MeasuredDurationMS: measured,
		OutputPath:         outputPath,
	}, nil
}
