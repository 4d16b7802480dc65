package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"dubber/internal/config"
	"dubber/internal/language"
	"dubber/internal/logging"
	"dubber/internal/match"
	"dubber/internal/project"
	"dubber/internal/registry"
	"dubber/internal/services"
	"dubber/internal/services/minimax"
	"dubber/internal/services/translate"
)

// ErrCancelled is returned when a cancellation request stops a segment that
// has not produced any audio. The segment is persisted as skipped so the
// merged track can substitute silence for its cue window.
var ErrCancelled = errors.New("segment cancelled")

// Translator is the slice of the translation client the synthesizer needs.
type Translator interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
	AdjustLength(ctx context.Context, originalText, currentText, targetLanguage string, targetChars int, direction translate.Direction) (string, error)
}

// SpeechProvider is the slice of the speech client the synthesizer needs.
type SpeechProvider interface {
	Synthesize(ctx context.Context, req minimax.SpeechRequest) (minimax.SpeechResult, error)
}

// Synthesizer runs the per-segment pipeline: translate, synthesize, and
// reconcile the audio duration with the cue window.
type Synthesizer struct {
	store    *project.Store
	trans    Translator
	speech   SpeechProvider
	voices   VoiceResolver
	matcher  *match.Matcher
	registry *registry.Registry
	logger   *slog.Logger
	audioDir string
	format   string
}

// New builds a Synthesizer.
func New(
	cfg *config.Config,
	store *project.Store,
	trans Translator,
	speech SpeechProvider,
	voices VoiceResolver,
	matcher *match.Matcher,
	reg *registry.Registry,
	logger *slog.Logger,
) *Synthesizer {
	if voices == nil {
		voices = NewMappingResolver(cfg.TTS)
	}
	if matcher == nil {
		matcher = match.New(cfg.Matcher)
	}
	return &Synthesizer{
		store:    store,
		trans:    trans,
		speech:   speech,
		voices:   voices,
		matcher:  matcher,
		registry: reg,
		logger:   logging.NewComponentLogger(logger, "synth"),
		audioDir: cfg.Paths.AudioDir,
		format:   cfg.TTS.Format,
	}
}

// Process drives one segment to a terminal status. Provider failures are
// persisted on the segment and returned. Cancellation marks the segment
// skipped and returns ErrCancelled when no take was produced; otherwise the
// closest take so far is kept as ok. The returned error is nil when the
// segment ended ok.
func (s *Synthesizer) Process(ctx context.Context, key registry.Key, proj *project.Project, seg *project.Segment, force bool) error {
	ctx = services.WithProjectID(ctx, proj.ID)
	ctx = services.WithSegmentID(ctx, seg.ID)
	logger := logging.WithContext(ctx, s.logger)

	if err := s.checkCancelled(ctx, key); err != nil {
		return s.skip(ctx, key, logger, seg, err)
	}

	if force {
		seg.ResetForSynthesis()
	}

	targetLanguage := language.DisplayName(proj.TargetLanguage)

	if strings.TrimSpace(seg.TranslatedText) == "" {
		if err := s.translateSegment(ctx, key, logger, targetLanguage, seg); err != nil {
			return err
		}
		if err := s.checkCancelled(ctx, key); err != nil {
			return s.skip(ctx, key, logger, seg, err)
		}
	}

	return s.synthesizeLoop(ctx, key, logger, targetLanguage, seg)
}

func (s *Synthesizer) translateSegment(ctx context.Context, key registry.Key, logger *slog.Logger, targetLanguage string, seg *project.Segment) error {
	s.transition(ctx, key, seg, project.StatusTranslating, 10, "translating")

	translated, err := s.trans.Translate(ctx, seg.Text, targetLanguage)
	if err != nil {
		if ctx.Err() != nil {
			return s.skip(ctx, key, logger, seg, ctx.Err())
		}
		return s.fail(ctx, key, logger, seg, fmt.Errorf("translate segment: %w", err))
	}
	seg.TranslatedText = translated
	if seg.Emotion == "" || seg.Emotion == project.EmotionAuto {
		if detected := project.DetectEmotion(seg.Text); detected != project.EmotionAuto {
			seg.Emotion = detected
		}
	}
	s.persist(ctx, logger, seg)
	logger.Debug("segment translated",
		logging.String(logging.FieldEventType, "segment_translated"),
		logging.Int("chars", utf8.RuneCountInString(translated)),
	)
	return nil
}

// take records one synthesis attempt: where its audio landed and how far
// its duration strays from the cue window.
type take struct {
	path        string
	durationMS  int64
	speed       float64
	text        string
	deviationMS int64
}

func (s *Synthesizer) synthesizeLoop(ctx context.Context, key registry.Key, logger *slog.Logger, targetLanguage string, seg *project.Segment) error {
	state := match.State{
		Speed:       seg.Speed,
		SpeedRounds: seg.SpeedRounds,
		TextRounds:  seg.TextRounds,
	}

	var best *take
	attempt := 0

	for {
		if err := s.checkCancelled(ctx, key); err != nil {
			return s.abandon(ctx, key, logger, seg, best, state, err)
		}

		s.transition(ctx, key, seg, project.StatusSynthesizing, 40, "synthesizing")

		voice, err := s.voices.Resolve(seg.Speaker)
		if err != nil {
			return s.fail(ctx, key, logger, seg, err)
		}

		result, err := s.speech.Synthesize(ctx, minimax.SpeechRequest{
			Text:          seg.TranslatedText,
			VoiceID:       voice,
			Speed:         seg.Speed,
			Emotion:       seg.Emotion,
			LanguageBoost: targetLanguage,
		})
		if err != nil {
			if ctx.Err() != nil {
				return s.abandon(ctx, key, logger, seg, best, state, ctx.Err())
			}
			return s.fail(ctx, key, logger, seg, fmt.Errorf("synthesize segment: %w", err))
		}

		attempt++
		audioPath, err := s.writeAudio(seg, result.Audio, attempt)
		if err != nil {
			return s.fail(ctx, key, logger, seg, err)
		}
		current := take{
			path:        audioPath,
			durationMS:  result.DurationMS,
			speed:       seg.Speed,
			text:        seg.TranslatedText,
			deviationMS: deviation(result.DurationMS, seg.TargetDurationMS()),
		}
		if current.durationMS > 0 && (best == nil || current.deviationMS < best.deviationMS) {
			if best != nil && best.path != current.path {
				_ = os.Remove(best.path)
			}
			kept := current
			best = &kept
		}
		seg.AudioPath = current.path
		seg.AudioDurationMS = current.durationMS

		s.transition(ctx, key, seg, project.StatusChecking, 70, "checking duration")

		decision := s.matcher.Evaluate(seg.TargetDurationMS(), seg.AudioDurationMS, state)
		logger.Debug("duration evaluated",
			logging.String(logging.FieldEventType, "duration_decision"),
			logging.String("decision", decision.Action.String()),
			logging.Int64("target_ms", seg.TargetDurationMS()),
			logging.Int64("actual_ms", seg.AudioDurationMS),
			logging.Int("round", state.Rounds()),
		)

		switch decision.Action {
		case match.ActionAccept:
			if best != nil && best.path != current.path {
				_ = os.Remove(best.path)
			}
			s.accept(ctx, key, logger, seg, current, state.Rounds(), "segment complete")
			return nil

		case match.ActionAdjustSpeed:
			state.SpeedRounds++
			state.Speed = decision.Speed
			seg.Speed = decision.Speed
			seg.SpeedRounds = state.SpeedRounds
			s.dropTake(current, best)
			s.transition(ctx, key, seg, project.StatusCorrecting, 70, fmt.Sprintf("retry at speed %.2f", decision.Speed))

		case match.ActionAdjustText:
			s.dropTake(current, best)
			if err := s.adjustText(ctx, key, targetLanguage, seg, &state, decision.Direction); err != nil {
				if ctx.Err() != nil {
					return s.abandon(ctx, key, logger, seg, best, state, ctx.Err())
				}
				return s.fail(ctx, key, logger, seg, err)
			}

		case match.ActionReject:
			if best != nil {
				// The round budget is spent; the closest take wins.
				if best.path != current.path {
					_ = os.Remove(current.path)
				}
				s.accept(ctx, key, logger, seg, *best, state.Rounds(), "correction rounds exhausted, keeping closest take")
				return nil
			}
			return s.fail(ctx, key, logger, seg, services.Wrap(
				services.ErrPermanent,
				"synth",
				"duration check",
				decision.Reason,
				nil,
			))
		}
	}
}

// accept finalizes the chosen take: its audio moves to the segment's
// canonical path and the segment is persisted as ok.
func (s *Synthesizer) accept(ctx context.Context, key registry.Key, logger *slog.Logger, seg *project.Segment, chosen take, rounds int, message string) {
	canonical := s.audioPath(seg, 0)
	if chosen.path != canonical {
		if err := os.Rename(chosen.path, canonical); err == nil {
			chosen.path = canonical
		} else {
			logger.Warn("failed to move accepted take", logging.Error(err))
		}
	}
	seg.AudioPath = chosen.path
	seg.AudioDurationMS = chosen.durationMS
	seg.Speed = chosen.speed
	seg.TranslatedText = chosen.text
	seg.Status = project.StatusOK
	seg.ErrorMessage = ""
	ctx = context.WithoutCancel(ctx)
	s.persist(ctx, logger, seg)
	s.publish(ctx, key, seg, 100, message)
	logger.Info("segment synthesized",
		logging.String(logging.FieldEventType, "segment_ok"),
		logging.Int64("duration_ms", seg.AudioDurationMS),
		logging.Int64("deviation_ms", chosen.deviationMS),
		logging.Float64("speed", seg.Speed),
		logging.Int("rounds", rounds),
	)
}

// abandon resolves a cancelled segment: the closest take so far becomes its
// final audio, or the segment is skipped when nothing was produced.
func (s *Synthesizer) abandon(ctx context.Context, key registry.Key, logger *slog.Logger, seg *project.Segment, best *take, state match.State, cause error) error {
	if best != nil {
		s.accept(ctx, key, logger, seg, *best, state.Rounds(), "cancelled, keeping closest take")
		return nil
	}
	return s.skip(ctx, key, logger, seg, cause)
}

// skip persists a cancelled segment as skipped unless it is already
// terminal, then surfaces the cancellation cause.
func (s *Synthesizer) skip(ctx context.Context, key registry.Key, logger *slog.Logger, seg *project.Segment, cause error) error {
	if !seg.Status.IsTerminal() {
		seg.SetSkipped("cancelled before any audio was produced")
		ctx = context.WithoutCancel(ctx)
		s.persist(ctx, logger, seg)
		s.publish(ctx, key, seg, 100, "segment skipped")
		logger.Info("segment skipped",
			logging.String(logging.FieldEventType, "segment_skipped"),
		)
	}
	return cause
}

func (s *Synthesizer) dropTake(current take, best *take) {
	if best == nil || best.path != current.path {
		_ = os.Remove(current.path)
	}
}

func deviation(actualMS, targetMS int64) int64 {
	d := actualMS - targetMS
	if d < 0 {
		return -d
	}
	return d
}

func (s *Synthesizer) adjustText(ctx context.Context, key registry.Key, targetLanguage string, seg *project.Segment, state *match.State, direction match.Direction) error {
	currentChars := utf8.RuneCountInString(seg.TranslatedText)
	targetChars := match.TextTarget(currentChars, seg.TargetDurationMS(), seg.AudioDurationMS, direction)

	transDirection := translate.Shorten
	if direction == match.Lengthen {
		transDirection = translate.Lengthen
	}

	s.transition(ctx, key, seg, project.StatusCorrecting, 70, fmt.Sprintf("rewriting text toward %d chars", targetChars))

	adjusted, err := s.trans.AdjustLength(ctx, seg.Text, seg.TranslatedText, targetLanguage, targetChars, transDirection)
	if err != nil {
		return fmt.Errorf("adjust text: %w", err)
	}
	seg.TranslatedText = adjusted
	state.TextRounds++
	seg.TextRounds = state.TextRounds
	// A rewritten line starts over at base speed.
	state.Speed = 1.0
	seg.Speed = 1.0
	s.persist(ctx, logging.WithContext(ctx, s.logger), seg)
	return nil
}

func (s *Synthesizer) writeAudio(seg *project.Segment, audio []byte, attempt int) (string, error) {
	if len(audio) == 0 {
		return "", services.Wrap(services.ErrPermanent, "synth", "write audio", "provider returned empty audio", nil)
	}
	if err := os.MkdirAll(filepath.Join(s.audioDir, seg.ProjectID), 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	path := s.audioPath(seg, attempt)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("write audio file: %w", err)
	}
	return path, nil
}

// audioPath returns the canonical audio path for attempt 0 and a scratch
// path for numbered attempts. The accepted take is renamed to the canonical
// path.
func (s *Synthesizer) audioPath(seg *project.Segment, attempt int) string {
	format := s.format
	if format == "" {
		format = "mp3"
	}
	name := seg.ID
	if attempt > 0 {
		name = fmt.Sprintf("%s_take%d", seg.ID, attempt)
	}
	return filepath.Join(s.audioDir, seg.ProjectID, name+"."+format)
}

func (s *Synthesizer) checkCancelled(ctx context.Context, key registry.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.registry != nil && s.registry.Cancelled(key) {
		return ErrCancelled
	}
	return nil
}

// transition persists a status change and publishes it as a progress event.
func (s *Synthesizer) transition(ctx context.Context, key registry.Key, seg *project.Segment, status project.Status, percent float64, message string) {
	seg.Status = status
	s.persist(ctx, logging.WithContext(ctx, s.logger), seg)
	s.publish(ctx, key, seg, percent, message)
}

func (s *Synthesizer) publish(ctx context.Context, key registry.Key, seg *project.Segment, percent float64, message string) {
	if s.registry == nil {
		return
	}
	s.registry.Publish(ctx, key, registry.Event{
		ProjectID: seg.ProjectID,
		SegmentID: seg.ID,
		Status:    seg.Status,
		Round:     seg.SpeedRounds + seg.TextRounds,
		Percent:   percent,
		Message:   message,
	})
}

func (s *Synthesizer) persist(ctx context.Context, logger *slog.Logger, seg *project.Segment) {
	if err := s.store.UpdateSegment(ctx, seg); err != nil {
		logger.Error("failed to persist segment",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database permissions"),
		)
	}
}

func (s *Synthesizer) fail(ctx context.Context, key registry.Key, logger *slog.Logger, seg *project.Segment, cause error) error {
	seg.SetFailed(cause.Error())
	s.persist(ctx, logger, seg)
	s.publish(ctx, key, seg, 100, "segment failed")
	logger.Warn("segment failed",
		logging.String(logging.FieldEventType, "segment_failed"),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "failed segments become silence in the merged track"),
	)
	return cause
}
