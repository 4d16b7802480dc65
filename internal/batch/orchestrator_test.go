package batch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dubber/internal/batch"
	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/project"
	"dubber/internal/registry"
	"dubber/internal/services"
	"dubber/internal/services/minimax"
	"dubber/internal/services/translate"
	"dubber/internal/synth"
	"dubber/internal/testsupport"
	"dubber/internal/timeline"
)

type stubTranslator struct{}

func (stubTranslator) Translate(_ context.Context, text, _ string) (string, error) {
	return "translated: " + text, nil
}

func (stubTranslator) AdjustLength(_ context.Context, _, current, _ string, _ int, _ translate.Direction) (string, error) {
	return current, nil
}

type scriptedSpeech struct {
	mu       sync.Mutex
	calls    int
	err      error
	onFirst  func()
	blockOn  chan struct{}
	duration func(call int) int64
}

func (s *scriptedSpeech) Synthesize(ctx context.Context, req minimax.SpeechRequest) (minimax.SpeechResult, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	first := call == 1
	s.mu.Unlock()

	if first && s.onFirst != nil {
		s.onFirst()
	}
	if s.blockOn != nil {
		select {
		case <-s.blockOn:
		case <-ctx.Done():
			return minimax.SpeechResult{}, ctx.Err()
		}
	}
	if s.err != nil {
		return minimax.SpeechResult{}, s.err
	}
	duration := int64(1000)
	if s.duration != nil {
		duration = s.duration(call)
	}
	return minimax.SpeechResult{Audio: []byte{0x01}, DurationMS: duration}, nil
}

func (s *scriptedSpeech) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type batchFixture struct {
	cfg          *config.Config
	store        *project.Store
	registry     *registry.Registry
	orchestrator *batch.Orchestrator
	speech       *scriptedSpeech
	project      *project.Project
}

func newBatchFixture(t *testing.T, speech *scriptedSpeech, segments ...*project.Segment) *batchFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	proj := testsupport.NewProject(t, store, &project.Project{Segments: segments})

	reg := registry.New(nil)
	synthesizer := synth.New(cfg, store, stubTranslator{}, speech, nil, nil, reg, logging.NewNop())
	return &batchFixture{
		cfg:          cfg,
		store:        store,
		registry:     reg,
		orchestrator: batch.New(cfg, store, synthesizer, reg, logging.NewNop()),
		speech:       speech,
		project:      proj,
	}
}

func evenCues(count int) []*project.Segment {
	segments := make([]*project.Segment, 0, count)
	for i := 0; i < count; i++ {
		start := int64(i) * 2000
		segments = append(segments, testsupport.Segment(i+1, start, start+1000, "文本"))
	}
	return segments
}

func TestRunCompletesAllSegments(t *testing.T) {
	fx := newBatchFixture(t, &scriptedSpeech{}, evenCues(3)...)

	job, err := fx.orchestrator.Run(context.Background(), fx.project.ID, batch.Options{ClientID: "client"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.State != project.BatchCompleted {
		t.Fatalf("expected completed batch, got %s", job.State)
	}
	if job.Stats.OK != 3 || job.Stats.Failed != 0 {
		t.Fatalf("unexpected stats: %#v", job.Stats)
	}
	if job.FinishedAt == nil {
		t.Fatal("expected finish timestamp")
	}

	counts, err := fx.store.SegmentStatusCounts(context.Background(), fx.project.ID)
	if err != nil {
		t.Fatalf("SegmentStatusCounts failed: %v", err)
	}
	if counts[project.StatusOK] != 3 {
		t.Fatalf("expected all segments ok, got %#v", counts)
	}

	latest, err := fx.store.LatestBatchJob(context.Background(), fx.project.ID)
	if err != nil {
		t.Fatalf("LatestBatchJob failed: %v", err)
	}
	if latest == nil || latest.ID != job.ID || latest.State != project.BatchCompleted {
		t.Fatalf("expected persisted job, got %#v", latest)
	}
}

func TestRunSkipsFinishedSegmentsUnlessForced(t *testing.T) {
	fx := newBatchFixture(t, &scriptedSpeech{}, evenCues(2)...)
	done := fx.project.Segments[0]
	done.Status = project.StatusOK
	done.TranslatedText = "done"
	if err := fx.store.UpdateSegment(context.Background(), done); err != nil {
		t.Fatalf("UpdateSegment failed: %v", err)
	}

	job, err := fx.orchestrator.Run(context.Background(), fx.project.ID, batch.Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.Stats.OK != 1 || job.Stats.Skipped != 1 {
		t.Fatalf("unexpected stats: %#v", job.Stats)
	}
	if fx.speech.callCount() != 1 {
		t.Fatalf("expected one synthesis, got %d", fx.speech.callCount())
	}

	forced, err := fx.orchestrator.Run(context.Background(), fx.project.ID, batch.Options{Force: true})
	if err != nil {
		t.Fatalf("forced Run failed: %v", err)
	}
	if forced.Stats.OK != 2 || forced.Stats.Skipped != 0 {
		t.Fatalf("unexpected forced stats: %#v", forced.Stats)
	}
}

func TestRunCountsFailuresWithoutAborting(t *testing.T) {
	speech := &scriptedSpeech{err: services.Wrap(services.ErrTransient, "tts", "synthesize", "exhausted retries", nil)}
	fx := newBatchFixture(t, speech, evenCues(3)...)

	job, err := fx.orchestrator.Run(context.Background(), fx.project.ID, batch.Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.State != project.BatchCompleted {
		t.Fatalf("segment failures must not fail the batch, got %s", job.State)
	}
	if job.Stats.Failed != 3 || job.Stats.OK != 0 {
		t.Fatalf("unexpected stats: %#v", job.Stats)
	}
	if fx.speech.callCount() != 3 {
		t.Fatalf("expected every segment attempted, got %d", fx.speech.callCount())
	}
}

func TestRunRejectsConcurrentBatch(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	speech := &scriptedSpeech{
		blockOn: release,
		onFirst: func() { close(started) },
	}
	fx := newBatchFixture(t, speech, evenCues(1)...)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := fx.orchestrator.Run(context.Background(), fx.project.ID, batch.Options{}); err != nil {
			t.Errorf("background Run failed: %v", err)
		}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first synthesis")
	}

	_, err := fx.orchestrator.Run(context.Background(), fx.project.ID, batch.Options{})
	if !errors.Is(err, services.ErrBatchActive) {
		t.Fatalf("expected ErrBatchActive, got %v", err)
	}

	close(release)
	wg.Wait()
}

func TestRunUnknownProject(t *testing.T) {
	fx := newBatchFixture(t, &scriptedSpeech{}, evenCues(1)...)

	_, err := fx.orchestrator.Run(context.Background(), "missing", batch.Options{})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunCancellationStopsDispatch(t *testing.T) {
	fx := newBatchFixture(t, &scriptedSpeech{}, evenCues(3)...)
	key := registry.Key{ClientID: "client", ProjectID: fx.project.ID}
	fx.speech.onFirst = func() { fx.orchestrator.Cancel(key) }

	job, err := fx.orchestrator.Run(context.Background(), fx.project.ID, batch.Options{ClientID: "client"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.State != project.BatchCancelled {
		t.Fatalf("expected cancelled batch, got %s", job.State)
	}
	if job.Stats.OK != 1 {
		t.Fatalf("expected in-flight segment to finish, got %#v", job.Stats)
	}
	if job.Stats.Skipped != 2 {
		t.Fatalf("expected remaining segments skipped, got %#v", job.Stats)
	}

	// Undispatched segments must reach a terminal status so the merged
	// track can be assembled with silence in their place.
	counts, err := fx.store.SegmentStatusCounts(context.Background(), fx.project.ID)
	if err != nil {
		t.Fatalf("SegmentStatusCounts failed: %v", err)
	}
	if counts[project.StatusOK] != 1 || counts[project.StatusSkipped] != 2 {
		t.Fatalf("expected 1 ok / 2 skipped, got %#v", counts)
	}

	proj, err := fx.store.GetProject(context.Background(), fx.project.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if _, err := timeline.New(fx.cfg, nil, logging.NewNop()).Plan(proj); err != nil {
		t.Fatalf("expected cancelled project to be assemblable, got %v", err)
	}
}

func TestRunCancelledContextFinalizesJob(t *testing.T) {
	fx := newBatchFixture(t, &scriptedSpeech{}, evenCues(3)...)
	ctx, cancel := context.WithCancel(context.Background())
	fx.speech.onFirst = cancel

	job, err := fx.orchestrator.Run(ctx, fx.project.ID, batch.Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.State != project.BatchCancelled {
		t.Fatalf("expected cancelled batch, got %s", job.State)
	}

	// The job record must leave the running state even though the run
	// context is already cancelled when it is finalized.
	running, err := fx.store.RunningBatchJob(context.Background(), fx.project.ID)
	if err != nil {
		t.Fatalf("RunningBatchJob failed: %v", err)
	}
	if running != nil {
		t.Fatalf("expected no running job after cancellation, got %#v", running)
	}
	latest, err := fx.store.LatestBatchJob(context.Background(), fx.project.ID)
	if err != nil {
		t.Fatalf("LatestBatchJob failed: %v", err)
	}
	if latest == nil || latest.State != project.BatchCancelled || latest.FinishedAt == nil {
		t.Fatalf("expected finalized cancelled job, got %#v", latest)
	}
}

func TestRunResetsStaleProcessingSegments(t *testing.T) {
	fx := newBatchFixture(t, &scriptedSpeech{}, evenCues(2)...)
	stuck := fx.project.Segments[0]
	stuck.Status = project.StatusSynthesizing
	if err := fx.store.UpdateSegment(context.Background(), stuck); err != nil {
		t.Fatalf("UpdateSegment failed: %v", err)
	}

	job, err := fx.orchestrator.Run(context.Background(), fx.project.ID, batch.Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.Stats.OK != 2 {
		t.Fatalf("expected stuck segment recovered, got %#v", job.Stats)
	}

	counts, err := fx.store.SegmentStatusCounts(context.Background(), fx.project.ID)
	if err != nil {
		t.Fatalf("SegmentStatusCounts failed: %v", err)
	}
	if counts[project.StatusOK] != 2 {
		t.Fatalf("expected all segments ok, got %#v", counts)
	}
}

func TestRunWithWorkerPool(t *testing.T) {
	fx := newBatchFixture(t, &scriptedSpeech{}, evenCues(6)...)

	job, err := fx.orchestrator.Run(context.Background(), fx.project.ID, batch.Options{Workers: 4})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.Stats.OK != 6 {
		t.Fatalf("expected all segments ok, got %#v", job.Stats)
	}
}
