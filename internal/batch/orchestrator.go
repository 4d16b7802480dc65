package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/project"
	"dubber/internal/registry"
	"dubber/internal/services"
	"dubber/internal/synth"
)

// Options tunes one batch run.
type Options struct {
	ClientID string
	// Force re-synthesizes segments that are already ok.
	Force bool
	// Workers overrides the configured pool size when positive.
	Workers int
}

// Orchestrator runs the segment synthesizer over whole projects.
type Orchestrator struct {
	cfg      *config.Config
	store    *project.Store
	synth    *synth.Synthesizer
	registry *registry.Registry
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// New builds an Orchestrator.
func New(cfg *config.Config, store *project.Store, synthesizer *synth.Synthesizer, reg *registry.Registry, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		synth:    synthesizer,
		registry: reg,
		logger:   logging.NewComponentLogger(logger, "batch"),
		active:   make(map[string]struct{}),
	}
}

// Cancel requests cancellation of the running batch for the key. In-flight
// segments finish; no new segments are dispatched.
func (o *Orchestrator) Cancel(key registry.Key) bool {
	return o.registry.Cancel(key)
}

type segmentResult struct {
	segment *project.Segment
	err     error
}

// Run synthesizes every eligible segment of the project and returns the
// finished batch job record. A second run for the same project while one is
// active fails with services.ErrBatchActive. Individual segment failures
// are counted, never fatal.
func (o *Orchestrator) Run(ctx context.Context, projectID string, opts Options) (*project.BatchJob, error) {
	if err := o.acquire(projectID); err != nil {
		return nil, err
	}
	defer o.release(projectID)

	fileLock, err := o.lockProject(projectID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = fileLock.Unlock()
	}()

	if err := o.cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	if err := checkDiskSpace(o.cfg.Paths.AudioDir, o.cfg.Batch.MinFreeMiB); err != nil {
		return nil, err
	}

	// Segments left in a processing status by an unclean shutdown restart
	// from pending.
	if reset, err := o.store.ResetProcessingSegments(ctx, projectID); err != nil {
		return nil, err
	} else if reset > 0 {
		o.logger.Info("reset stale in-flight segments",
			logging.String(logging.FieldProjectID, projectID),
			logging.Int("segments", reset),
		)
	}

	proj, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if proj == nil {
		return nil, services.Wrap(services.ErrNotFound, "batch", "load project", projectID, nil)
	}

	key := registry.Key{ClientID: opts.ClientID, ProjectID: projectID}
	o.registry.Register(key)
	defer o.registry.Release(key)

	job := &project.BatchJob{ProjectID: projectID, Forced: opts.Force}
	if err := o.store.CreateBatchJob(ctx, job); err != nil {
		return nil, err
	}

	ctx = services.WithProjectID(ctx, projectID)
	ctx = services.WithBatchID(ctx, job.ID)
	ctx = services.WithClientID(ctx, opts.ClientID)
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.Int("segments", len(proj.Segments)),
		logging.Bool("force", opts.Force),
	)

	job.Stats, job.State = o.runPool(ctx, key, logger, proj, job, opts)
	now := time.Now().UTC()
	job.FinishedAt = &now

	// The run context may already be cancelled; the job record must still
	// leave the running state.
	finishCtx := context.WithoutCancel(ctx)
	if err := o.store.UpdateBatchJob(finishCtx, job); err != nil {
		logger.Error("failed to persist batch result", logging.Error(err))
	}

	o.registry.Publish(finishCtx, key, registry.Event{
		ProjectID: projectID,
		BatchID:   job.ID,
		Percent:   100,
		Message: fmt.Sprintf("batch %s: %d ok, %d failed, %d skipped",
			job.State, job.Stats.OK, job.Stats.Failed, job.Stats.Skipped),
	})
	logger.Info("batch finished",
		logging.String(logging.FieldEventType, "batch_finish"),
		logging.String("state", string(job.State)),
		logging.Int("ok", job.Stats.OK),
		logging.Int("speed_adjusted", job.Stats.SpeedAdjusted),
		logging.Int("text_adjusted", job.Stats.TextAdjusted),
		logging.Int("failed", job.Stats.Failed),
		logging.Int("skipped", job.Stats.Skipped),
	)
	return job, nil
}

func (o *Orchestrator) runPool(ctx context.Context, key registry.Key, logger *slog.Logger, proj *project.Project, job *project.BatchJob, opts Options) (project.BatchStats, project.BatchState) {
	var stats project.BatchStats

	pending := make([]*project.Segment, 0, len(proj.Segments))
	for _, seg := range proj.Segments {
		if seg.Status == project.StatusOK && !opts.Force {
			stats.Skipped++
			continue
		}
		pending = append(pending, seg)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = o.cfg.Batch.Workers
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(pending) {
		workers = len(pending)
	}
	if len(pending) == 0 {
		return stats, project.BatchCompleted
	}

	jobs := make(chan *project.Segment)
	results := make(chan segmentResult, len(pending))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seg := range jobs {
				err := o.synth.Process(ctx, key, proj, seg, opts.Force)
				results <- segmentResult{segment: seg, err: err}
			}
		}()
	}

	cancelled := false
	dispatched := 0
	for _, seg := range pending {
		if ctx.Err() != nil || o.registry.Cancelled(key) {
			cancelled = true
			break
		}
		jobs <- seg
		dispatched++
	}
	close(jobs)
	wg.Wait()
	close(results)

	total := len(pending)
	processed := 0
	for result := range results {
		processed++
		switch {
		case result.err == nil:
			stats.OK++
			if result.segment.SpeedRounds > 0 {
				stats.SpeedAdjusted++
			}
			if result.segment.TextRounds > 0 {
				stats.TextAdjusted++
			}
		case errors.Is(result.err, synth.ErrCancelled),
			errors.Is(result.err, context.Canceled):
			cancelled = true
			stats.Skipped++
		default:
			stats.Failed++
		}
		o.registry.Publish(ctx, key, registry.Event{
			ProjectID: proj.ID,
			BatchID:   job.ID,
			SegmentID: result.segment.ID,
			Status:    result.segment.Status,
			Percent:   float64(processed) / float64(total) * 100,
			Message:   fmt.Sprintf("%d/%d segments processed", processed, total),
		})
	}
	// Segments never dispatched end the batch as skipped so every segment
	// is terminal and assembly can substitute silence for them.
	finishCtx := context.WithoutCancel(ctx)
	for _, seg := range pending[dispatched:] {
		if !seg.Status.IsTerminal() {
			seg.SetSkipped("batch cancelled before dispatch")
			if err := o.store.UpdateSegment(finishCtx, seg); err != nil {
				logger.Error("failed to persist skipped segment",
					logging.String(logging.FieldSegmentID, seg.ID),
					logging.Error(err),
				)
			}
		}
		stats.Skipped++
	}

	if cancelled {
		logger.Info("batch cancelled",
			logging.String(logging.FieldEventType, "batch_cancelled"),
			logging.Int("undispatched", len(pending)-dispatched),
		)
		return stats, project.BatchCancelled
	}
	return stats, project.BatchCompleted
}

func (o *Orchestrator) acquire(projectID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.active[projectID]; ok {
		return services.Wrap(services.ErrBatchActive, "batch", "start", projectID, nil)
	}
	o.active[projectID] = struct{}{}
	return nil
}

func (o *Orchestrator) release(projectID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, projectID)
}

// lockProject takes a per-project file lock so concurrent dubber processes
// cannot run overlapping batches.
func (o *Orchestrator) lockProject(projectID string) (*flock.Flock, error) {
	lockDir := filepath.Join(o.cfg.Paths.DataDir, "locks")
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fileLock := flock.New(filepath.Join(lockDir, projectID+".lock"))
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire project lock: %w", err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrBatchActive, "batch", "start", "another process holds the project lock", nil)
	}
	return fileLock, nil
}
