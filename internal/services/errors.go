package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks provider failures worth retrying (rate limits,
	// 5xx responses, network timeouts).
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks provider rejections that will not succeed on retry.
	ErrPermanent = errors.New("permanent failure")
	// ErrConfiguration marks missing or invalid local configuration, such as
	// an unmapped speaker voice or a missing API key.
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	// ErrNotReady is returned by timeline assembly while synthesis work is
	// still in flight.
	ErrNotReady = errors.New("project not ready")
	// ErrBatchActive is returned when a batch run is requested for a project
	// that already has one running.
	ErrBatchActive = errors.New("batch already running")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether a retry loop should attempt the operation again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrPermanent),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound):
		return false
	}
	return errors.Is(err, ErrTransient)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
