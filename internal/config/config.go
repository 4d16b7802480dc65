package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	AudioDir string `toml:"audio_dir"`
	LogDir   string `toml:"log_dir"`
}

// TTS contains configuration for the MiniMax speech synthesis API.
type TTS struct {
	APIKey         string            `toml:"api_key"`
	GroupID        string            `toml:"group_id"`
	BaseURL        string            `toml:"base_url"`
	Model          string            `toml:"model"`
	DefaultVoice   string            `toml:"default_voice"`
	VoiceMapping   map[string]string `toml:"voice_mapping"`
	SampleRate     int               `toml:"sample_rate"`
	Bitrate        int               `toml:"bitrate"`
	Format         string            `toml:"format"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
}

// Translation contains configuration for the translation LLM.
type Translation struct {
	APIKey              string  `toml:"api_key"`
	BaseURL             string  `toml:"base_url"`
	Model               string  `toml:"model"`
	Temperature         float64 `toml:"temperature"`
	TimeoutSeconds      int     `toml:"timeout_seconds"`
	RequestDelaySeconds int     `toml:"request_delay_seconds"`
}

// Matcher contains duration matching thresholds.
type Matcher struct {
	TolerancePercent float64 `toml:"tolerance_percent"`
	MaxSpeed         float64 `toml:"max_speed"`
	MaxRounds        int     `toml:"max_rounds"`
}

// Batch contains worker pool and preflight settings for batch runs.
type Batch struct {
	Workers    int `toml:"workers"`
	MinFreeMiB int `toml:"min_free_mib"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for dubber.
//
// Configuration sections by subsystem:
//   - Paths: data, audio, and log directories
//   - TTS: MiniMax speech synthesis connection and voice mapping
//   - Translation: LLM translation connection
//   - Matcher: duration tolerance, speed ceiling, correction rounds
//   - Batch: worker pool size and disk preflight
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	TTS         TTS         `toml:"tts"`
	Translation Translation `toml:"translation"`
	Matcher     Matcher     `toml:"matcher"`
	Batch       Batch       `toml:"batch"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dubber/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	projectPath, err := filepath.Abs("dubber.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.DataDir, &c.Paths.AudioDir, &c.Paths.LogDir} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}

	if key := os.Getenv("MINIMAX_API_KEY"); key != "" && c.TTS.APIKey == "" {
		c.TTS.APIKey = key
	}
	if group := os.Getenv("MINIMAX_GROUP_ID"); group != "" && c.TTS.GroupID == "" {
		c.TTS.GroupID = group
	}
	if key := os.Getenv("TRANSLATION_API_KEY"); key != "" && c.Translation.APIKey == "" {
		c.Translation.APIKey = key
	}

	c.TTS.Format = strings.ToLower(strings.TrimSpace(c.TTS.Format))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if c.TTS.VoiceMapping == nil {
		c.TTS.VoiceMapping = defaultVoiceMapping()
	}
	return nil
}

// ExpandPath resolves ~ prefixes and returns an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}

// EnsureDirectories creates the directories dubber needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.AudioDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// CreateSample writes the embedded sample configuration to the given path.
// Fails if the file already exists.
func CreateSample(path string) (string, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(expanded); err == nil {
		return "", fmt.Errorf("config already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return "", fmt.Errorf("write sample config: %w", err)
	}
	return expanded, nil
}
