package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateTranslation(); err != nil {
		return err
	}
	if err := c.validateMatcher(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.AudioDir == "" {
		return errors.New("paths.audio_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateTTS() error {
	if c.TTS.BaseURL == "" {
		return errors.New("tts.base_url must be set")
	}
	if c.TTS.Model == "" {
		return errors.New("tts.model must be set")
	}
	if c.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if c.TTS.Bitrate <= 0 {
		return errors.New("tts.bitrate must be positive")
	}
	switch c.TTS.Format {
	case "mp3", "wav", "pcm", "flac":
	default:
		return fmt.Errorf("tts.format %q is not supported", c.TTS.Format)
	}
	if c.TTS.TimeoutSeconds <= 0 {
		return errors.New("tts.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTranslation() error {
	if c.Translation.BaseURL == "" {
		return errors.New("translation.base_url must be set")
	}
	if c.Translation.Model == "" {
		return errors.New("translation.model must be set")
	}
	if c.Translation.Temperature < 0 || c.Translation.Temperature > 2 {
		return errors.New("translation.temperature must be between 0 and 2")
	}
	if c.Translation.TimeoutSeconds <= 0 {
		return errors.New("translation.timeout_seconds must be positive")
	}
	if c.Translation.RequestDelaySeconds < 0 {
		return errors.New("translation.request_delay_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateMatcher() error {
	if c.Matcher.TolerancePercent <= 0 || c.Matcher.TolerancePercent >= 100 {
		return errors.New("matcher.tolerance_percent must be between 0 and 100")
	}
	if c.Matcher.MaxSpeed < 1.0 {
		return errors.New("matcher.max_speed must be at least 1.0")
	}
	if c.Matcher.MaxRounds <= 0 {
		return errors.New("matcher.max_rounds must be positive")
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.Workers <= 0 {
		return errors.New("batch.workers must be positive")
	}
	if c.Batch.MinFreeMiB < 0 {
		return errors.New("batch.min_free_mib must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}
