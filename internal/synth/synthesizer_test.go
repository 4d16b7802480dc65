package synth_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dubber/internal/config"
	"dubber/internal/project"
	"dubber/internal/registry"
	"dubber/internal/services"
	"dubber/internal/services/minimax"
	"dubber/internal/services/translate"
	"dubber/internal/synth"
	"dubber/internal/testsupport"

	"dubber/internal/logging"
)

type fakeTranslator struct {
	translated  string
	adjusted    []string
	translates  int
	adjustCalls []int
	err         error
}

func (f *fakeTranslator) Translate(_ context.Context, text, _ string) (string, error) {
	f.translates++
	if f.err != nil {
		return "", f.err
	}
	if f.translated != "" {
		return f.translated, nil
	}
	return "translated: " + text, nil
}

func (f *fakeTranslator) AdjustLength(_ context.Context, _, _, _ string, targetChars int, _ translate.Direction) (string, error) {
	f.adjustCalls = append(f.adjustCalls, targetChars)
	if f.err != nil {
		return "", f.err
	}
	if len(f.adjusted) == 0 {
		return "rewritten", nil
	}
	next := f.adjusted[0]
	if len(f.adjusted) > 1 {
		f.adjusted = f.adjusted[1:]
	}
	return next, nil
}

type fakeSpeech struct {
	durations []int64
	requests  []minimax.SpeechRequest
	err       error
	onCall    func(call int)
}

func (f *fakeSpeech) Synthesize(_ context.Context, req minimax.SpeechRequest) (minimax.SpeechResult, error) {
	f.requests = append(f.requests, req)
	if f.onCall != nil {
		f.onCall(len(f.requests))
	}
	if f.err != nil {
		return minimax.SpeechResult{}, f.err
	}
	duration := int64(1000)
	if len(f.durations) > 0 {
		duration = f.durations[0]
		if len(f.durations) > 1 {
			f.durations = f.durations[1:]
		}
	}
	return minimax.SpeechResult{Audio: []byte{0x01, 0x02}, DurationMS: duration}, nil
}

type synthFixture struct {
	cfg         *config.Config
	store       *project.Store
	registry    *registry.Registry
	synthesizer *synth.Synthesizer
	translator  *fakeTranslator
	speech      *fakeSpeech
	project     *project.Project
	key         registry.Key
}

func newSynthFixture(t *testing.T, segments ...*project.Segment) *synthFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	proj := testsupport.NewProject(t, store, &project.Project{Segments: segments})

	translator := &fakeTranslator{}
	speech := &fakeSpeech{}
	reg := registry.New(nil)
	key := registry.Key{ClientID: proj.ClientID, ProjectID: proj.ID}
	reg.Register(key)
	t.Cleanup(func() { reg.Release(key) })

	return &synthFixture{
		cfg:         cfg,
		store:       store,
		registry:    reg,
		synthesizer: synth.New(cfg, store, translator, speech, nil, nil, reg, logging.NewNop()),
		translator:  translator,
		speech:      speech,
		project:     proj,
		key:         key,
	}
}

func TestProcessHappyPath(t *testing.T) {
	fx := newSynthFixture(t, testsupport.Segment(1, 0, 2000, "我今天特别开心"))
	fx.speech.durations = []int64{2000}

	seg := fx.project.Segments[0]
	if err := fx.synthesizer.Process(context.Background(), fx.key, fx.project, seg, false); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if seg.Status != project.StatusOK {
		t.Fatalf("expected ok status, got %s", seg.Status)
	}
	if seg.TranslatedText == "" {
		t.Fatalf("expected translation persisted, got %#v", seg)
	}
	if seg.Emotion != "happy" {
		t.Fatalf("expected detected emotion, got %q", seg.Emotion)
	}
	if seg.AudioDurationMS != 2000 {
		t.Fatalf("expected provider duration, got %d", seg.AudioDurationMS)
	}
	if _, err := os.Stat(seg.AudioPath); err != nil {
		t.Fatalf("expected audio file on disk: %v", err)
	}

	if len(fx.speech.requests) != 1 {
		t.Fatalf("expected single synthesis, got %d", len(fx.speech.requests))
	}
	req := fx.speech.requests[0]
	if req.VoiceID == "" || req.Emotion != "happy" {
		t.Fatalf("unexpected speech request: %#v", req)
	}

	stored, err := fx.store.GetSegment(context.Background(), seg.ID)
	if err != nil {
		t.Fatalf("GetSegment failed: %v", err)
	}
	if stored.Status != project.StatusOK {
		t.Fatalf("expected ok persisted, got %s", stored.Status)
	}
}

func TestProcessSpeedCorrection(t *testing.T) {
	fx := newSynthFixture(t, testsupport.Segment(1, 0, 2000, "文本"))
	fx.speech.durations = []int64{3000, 2000}

	seg := fx.project.Segments[0]
	if err := fx.synthesizer.Process(context.Background(), fx.key, fx.project, seg, false); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if seg.Status != project.StatusOK || seg.SpeedRounds != 1 {
		t.Fatalf("expected ok after one speed round, got %#v", seg)
	}
	if len(fx.speech.requests) != 2 {
		t.Fatalf("expected 2 synthesis calls, got %d", len(fx.speech.requests))
	}
	if fx.speech.requests[0].Speed != 1.0 {
		t.Fatalf("expected first attempt at base speed, got %.2f", fx.speech.requests[0].Speed)
	}
	if fx.speech.requests[1].Speed != 1.5 {
		t.Fatalf("expected retry at speed 1.5, got %.2f", fx.speech.requests[1].Speed)
	}
}

func TestProcessTextCorrectionResetsSpeed(t *testing.T) {
	fx := newSynthFixture(t, testsupport.Segment(1, 0, 2000, "文本"))
	seg := fx.project.Segments[0]
	seg.Speed = 2.0
	seg.SpeedRounds = 1
	seg.TranslatedText = "a very long translated sentence"
	if err := fx.store.UpdateSegment(context.Background(), seg); err != nil {
		t.Fatalf("UpdateSegment failed: %v", err)
	}
	fx.speech.durations = []int64{3000, 2000}
	fx.translator.adjusted = []string{"shorter line"}

	if err := fx.synthesizer.Process(context.Background(), fx.key, fx.project, seg, false); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if seg.Status != project.StatusOK || seg.TextRounds != 1 {
		t.Fatalf("expected ok after text rewrite, got %#v", seg)
	}
	if seg.TranslatedText != "shorter line" {
		t.Fatalf("expected rewritten text, got %q", seg.TranslatedText)
	}
	if len(fx.translator.adjustCalls) != 1 {
		t.Fatalf("expected one rewrite call, got %v", fx.translator.adjustCalls)
	}
	// Text rewrites start over at base speed.
	if fx.speech.requests[1].Speed != 1.0 {
		t.Fatalf("expected retry at base speed, got %.2f", fx.speech.requests[1].Speed)
	}
	if fx.translator.translates != 0 {
		t.Fatalf("expected existing translation reused, got %d translate calls", fx.translator.translates)
	}
}

func TestProcessKeepsClosestTakeAfterRoundBudget(t *testing.T) {
	fx := newSynthFixture(t, testsupport.Segment(1, 0, 1000, "文本"))
	fx.speech.durations = []int64{5000}

	seg := fx.project.Segments[0]
	if err := fx.synthesizer.Process(context.Background(), fx.key, fx.project, seg, false); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// Every attempt overran; the round budget ends with the closest take
	// kept as the result, not a failure.
	if seg.Status != project.StatusOK || seg.ErrorMessage != "" {
		t.Fatalf("expected ok with closest take, got %#v", seg)
	}
	if seg.AudioDurationMS != 5000 {
		t.Fatalf("expected real audio duration kept, got %d", seg.AudioDurationMS)
	}
	if _, err := os.Stat(seg.AudioPath); err != nil {
		t.Fatalf("expected audio file on disk: %v", err)
	}
	if len(fx.speech.requests) != 4 {
		t.Fatalf("expected 4 attempts before the budget ran out, got %d", len(fx.speech.requests))
	}

	// Losing takes are cleaned up.
	entries, err := os.ReadDir(filepath.Dir(seg.AudioPath))
	if err != nil {
		t.Fatalf("read audio dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the accepted take on disk, got %d files", len(entries))
	}

	stored, err := fx.store.GetSegment(context.Background(), seg.ID)
	if err != nil {
		t.Fatalf("GetSegment failed: %v", err)
	}
	if stored.Status != project.StatusOK {
		t.Fatalf("expected ok persisted, got %s", stored.Status)
	}
}

func TestProcessProviderFailurePersists(t *testing.T) {
	fx := newSynthFixture(t, testsupport.Segment(1, 0, 2000, "文本"))
	fx.speech.err = services.Wrap(services.ErrTransient, "tts", "synthesize", "exhausted retries", nil)

	seg := fx.project.Segments[0]
	err := fx.synthesizer.Process(context.Background(), fx.key, fx.project, seg, false)
	if err == nil {
		t.Fatal("expected provider failure surfaced")
	}
	if len(fx.speech.requests) != 1 {
		t.Fatalf("client retries belong inside the provider, got %d calls", len(fx.speech.requests))
	}

	stored, storeErr := fx.store.GetSegment(context.Background(), seg.ID)
	if storeErr != nil {
		t.Fatalf("GetSegment failed: %v", storeErr)
	}
	if stored.Status != project.StatusFailed {
		t.Fatalf("expected failed status persisted, got %s", stored.Status)
	}
}

func TestProcessUnmappedSpeakerFails(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithVoiceMapping(map[string]string{}))
	cfg.TTS.DefaultVoice = ""
	store := testsupport.MustOpenStore(t, cfg)
	proj := testsupport.NewProject(t, store, &project.Project{
		Segments: []*project.Segment{testsupport.Segment(1, 0, 2000, "文本")},
	})
	reg := registry.New(nil)
	key := registry.Key{ClientID: proj.ClientID, ProjectID: proj.ID}
	reg.Register(key)

	synthesizer := synth.New(cfg, store, &fakeTranslator{}, &fakeSpeech{}, nil, nil, reg, logging.NewNop())
	err := synthesizer.Process(context.Background(), key, proj, proj.Segments[0], false)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if proj.Segments[0].Status != project.StatusFailed {
		t.Fatalf("expected failed status, got %s", proj.Segments[0].Status)
	}
}

func TestProcessCancelledBeforeWorkSkips(t *testing.T) {
	fx := newSynthFixture(t, testsupport.Segment(1, 0, 2000, "文本"))
	fx.registry.Cancel(fx.key)

	seg := fx.project.Segments[0]
	err := fx.synthesizer.Process(context.Background(), fx.key, fx.project, seg, false)
	if !errors.Is(err, synth.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if seg.Status != project.StatusSkipped {
		t.Fatalf("expected skipped segment, got %s", seg.Status)
	}
	if fx.translator.translates != 0 || len(fx.speech.requests) != 0 {
		t.Fatal("expected no provider calls after cancellation")
	}

	stored, storeErr := fx.store.GetSegment(context.Background(), seg.ID)
	if storeErr != nil {
		t.Fatalf("GetSegment failed: %v", storeErr)
	}
	if stored.Status != project.StatusSkipped {
		t.Fatalf("expected skipped persisted, got %s", stored.Status)
	}
}

func TestProcessCancelledMidCorrectionKeepsClosestTake(t *testing.T) {
	fx := newSynthFixture(t, testsupport.Segment(1, 0, 2000, "文本"))
	fx.speech.durations = []int64{3000}
	fx.speech.onCall = func(int) { fx.registry.Cancel(fx.key) }

	seg := fx.project.Segments[0]
	if err := fx.synthesizer.Process(context.Background(), fx.key, fx.project, seg, false); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if seg.Status != project.StatusOK || seg.AudioDurationMS != 3000 {
		t.Fatalf("expected closest take kept after cancellation, got %#v", seg)
	}
	if len(fx.speech.requests) != 1 {
		t.Fatalf("expected no further attempts after cancellation, got %d", len(fx.speech.requests))
	}
}

func TestProcessContextCancelledPersistsSkipped(t *testing.T) {
	fx := newSynthFixture(t, testsupport.Segment(1, 0, 2000, "文本"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	seg := fx.project.Segments[0]
	err := fx.synthesizer.Process(ctx, fx.key, fx.project, seg, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	stored, storeErr := fx.store.GetSegment(context.Background(), seg.ID)
	if storeErr != nil {
		t.Fatalf("GetSegment failed: %v", storeErr)
	}
	if stored.Status != project.StatusSkipped {
		t.Fatalf("expected skipped persisted, got %s", stored.Status)
	}
}

func TestProcessSkipsDoneSegmentUnlessForced(t *testing.T) {
	fx := newSynthFixture(t, testsupport.Segment(1, 0, 2000, "文本"))
	seg := fx.project.Segments[0]
	seg.TranslatedText = "done"
	seg.Status = project.StatusOK
	seg.Speed = 1.5
	seg.SpeedRounds = 2
	if err := fx.store.UpdateSegment(context.Background(), seg); err != nil {
		t.Fatalf("UpdateSegment failed: %v", err)
	}
	fx.speech.durations = []int64{2000}

	if err := fx.synthesizer.Process(context.Background(), fx.key, fx.project, seg, true); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if seg.Status != project.StatusOK {
		t.Fatalf("expected resynthesis to finish ok, got %s", seg.Status)
	}
	// Force resets the correction history but keeps the translation.
	if seg.SpeedRounds != 0 || seg.Speed != 1.0 {
		t.Fatalf("expected reset state, got %#v", seg)
	}
	if seg.TranslatedText != "done" {
		t.Fatalf("expected translation kept, got %q", seg.TranslatedText)
	}
	if fx.translator.translates != 0 {
		t.Fatalf("expected no retranslation, got %d calls", fx.translator.translates)
	}
}
