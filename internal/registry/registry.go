package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dubber/internal/logging"
	"dubber/internal/project"
)

// Key identifies one registered pipeline run.
type Key struct {
	ClientID  string
	ProjectID string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.ClientID, k.ProjectID)
}

// Event is one progress update emitted by the pipeline.
type Event struct {
	ClientID  string
	ProjectID string
	BatchID   string
	SegmentID string
	Status    project.Status
	Round     int
	Percent   float64
	Message   string
	Time      time.Time
}

// ProgressSink receives progress events. Implementations must be safe for
// concurrent use.
type ProgressSink interface {
	Publish(ctx context.Context, event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) {}

// LogSink writes progress events to a logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink builds a sink that logs each event at debug level.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogSink{logger: logging.NewComponentLogger(logger, "progress")}
}

func (s *LogSink) Publish(_ context.Context, event Event) {
	s.logger.Debug(
		"progress",
		logging.String(logging.FieldProjectID, event.ProjectID),
		logging.String(logging.FieldSegmentID, event.SegmentID),
		logging.String("status", string(event.Status)),
		logging.Int("round", event.Round),
		logging.Float64("percent", event.Percent),
		logging.String("message", event.Message),
	)
}

type entry struct {
	cancelled bool
	snapshot  *Event
}

// Registry is the in-memory cancellation and progress table. One run per
// (client, project) pair may be registered at a time.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]*entry
	sink    ProgressSink
}

// New builds a registry that forwards events to the supplied sink.
func New(sink ProgressSink) *Registry {
	if sink == nil {
		sink = NopSink{}
	}
	return &Registry{
		entries: make(map[Key]*entry),
		sink:    sink,
	}
}

// Register adds the key. Registering an existing key resets its cancel flag.
func (r *Registry) Register(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[key]; ok {
		existing.cancelled = false
		return
	}
	r.entries[key] = &entry{}
}

// Release removes the key and its snapshot.
func (r *Registry) Release(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// Cancel flips the cancellation flag. Returns false when the key is not
// registered.
func (r *Registry) Cancel(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entries[key]
	if !ok {
		return false
	}
	ent.cancelled = true
	return true
}

// Cancelled reports whether cancellation was requested for the key.
func (r *Registry) Cancelled(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entries[key]
	return ok && ent.cancelled
}

// Publish records the event as the latest snapshot for the key and forwards
// it to the sink.
func (r *Registry) Publish(ctx context.Context, key Key, event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	event.ClientID = key.ClientID
	if event.ProjectID == "" {
		event.ProjectID = key.ProjectID
	}

	r.mu.Lock()
	if ent, ok := r.entries[key]; ok {
		snapshot := event
		ent.snapshot = &snapshot
	}
	r.mu.Unlock()

	r.sink.Publish(ctx, event)
}

// Snapshot returns the latest progress event for the key.
func (r *Registry) Snapshot(key Key) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entries[key]
	if !ok || ent.snapshot == nil {
		return Event{}, false
	}
	return *ent.snapshot, true
}
