// Package logging builds the slog loggers used across dubber and defines
// the standardized structured field names.
package logging
