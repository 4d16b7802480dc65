package testsupport

import (
	"path/filepath"
	"testing"

	"dubber/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.AudioDir = filepath.Join(base, "audio")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.TTS.APIKey = "test"
	cfgVal.TTS.GroupID = "test-group"
	cfgVal.Translation.APIKey = "test"
	cfgVal.Translation.RequestDelaySeconds = 0
	cfgVal.Batch.Workers = 1
	cfgVal.Batch.MinFreeMiB = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithVoiceMapping overrides the speaker to voice mapping on the test config.
func WithVoiceMapping(mapping map[string]string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.TTS.VoiceMapping = mapping
	}
}

// WithMatcher overrides the matcher tuning on the test config.
func WithMatcher(tolerancePercent, maxSpeed float64, maxRounds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Matcher.TolerancePercent = tolerancePercent
		b.cfg.Matcher.MaxSpeed = maxSpeed
		b.cfg.Matcher.MaxRounds = maxRounds
	}
}

// WithWorkers overrides the batch worker pool size on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Batch.Workers = workers
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
