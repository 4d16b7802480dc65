package services

import "context"

type contextKey string

const (
	projectIDKey contextKey = "project_id"
	segmentIDKey contextKey = "segment_id"
	batchIDKey   contextKey = "batch_id"
	clientIDKey  contextKey = "client_id"
	stageKey     contextKey = "stage"
)

// WithProjectID annotates context with the project identifier.
func WithProjectID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, projectIDKey, id)
}

// ProjectIDFromContext extracts the project identifier if present.
func ProjectIDFromContext(ctx context.Context) (string, bool) {
	return stringFromContext(ctx, projectIDKey)
}

// WithSegmentID annotates context with the segment identifier.
func WithSegmentID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, segmentIDKey, id)
}

// SegmentIDFromContext extracts the segment identifier if present.
func SegmentIDFromContext(ctx context.Context) (string, bool) {
	return stringFromContext(ctx, segmentIDKey)
}

// WithBatchID annotates context with the batch job identifier.
func WithBatchID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, batchIDKey, id)
}

// BatchIDFromContext extracts the batch job identifier if present.
func BatchIDFromContext(ctx context.Context) (string, bool) {
	return stringFromContext(ctx, batchIDKey)
}

// WithClientID annotates context with the requesting client identifier.
func WithClientID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIDKey, id)
}

// ClientIDFromContext extracts the client identifier if present.
func ClientIDFromContext(ctx context.Context) (string, bool) {
	return stringFromContext(ctx, clientIDKey)
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringFromContext(ctx, stageKey)
}

func stringFromContext(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if str, ok := ctx.Value(key).(string); ok && str != "" {
		return str, true
	}
	return "", false
}
