package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"dubber/internal/batch"
	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/match"
	"dubber/internal/media"
	"dubber/internal/project"
	"dubber/internal/registry"
	"dubber/internal/services/minimax"
	"dubber/internal/services/translate"
	"dubber/internal/synth"
	"dubber/internal/timeline"
)

type commandContext struct {
	configFlag *string
	clientFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, clientFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		clientFlag: clientFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) clientID() string {
	if c.clientFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.clientFlag)
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// withStore opens the project store for the duration of one command.
func (c *commandContext) withStore(fn func(*project.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := project.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// pipeline bundles the wired synthesis components for one command run.
type pipeline struct {
	cfg          *config.Config
	registry     *registry.Registry
	synthesizer  *synth.Synthesizer
	orchestrator *batch.Orchestrator
	assembler    *timeline.Assembler
	encoder      *media.FFmpeg
}

// newPipeline wires the providers, matcher, and orchestration layers around
// an open store.
func (c *commandContext) newPipeline(store *project.Store) (*pipeline, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	speech := minimax.NewClient(minimax.Config{
		APIKey:         cfg.TTS.APIKey,
		GroupID:        cfg.TTS.GroupID,
		BaseURL:        cfg.TTS.BaseURL,
		Model:          cfg.TTS.Model,
		SampleRate:     cfg.TTS.SampleRate,
		Bitrate:        cfg.TTS.Bitrate,
		Format:         cfg.TTS.Format,
		TimeoutSeconds: cfg.TTS.TimeoutSeconds,
	})
	translator := translate.NewClient(translate.Config{
		APIKey:              cfg.Translation.APIKey,
		GroupID:             cfg.TTS.GroupID,
		BaseURL:             cfg.Translation.BaseURL,
		Model:               cfg.Translation.Model,
		Temperature:         cfg.Translation.Temperature,
		TimeoutSeconds:      cfg.Translation.TimeoutSeconds,
		RequestDelaySeconds: cfg.Translation.RequestDelaySeconds,
	})
	encoder := media.NewFFmpeg(media.WithAudioParams(cfg.TTS.SampleRate, cfg.TTS.Bitrate))

	reg := registry.New(registry.NewLogSink(logger))
	synthesizer := synth.New(cfg, store, translator, speech, nil, match.New(cfg.Matcher), reg, logger)
	return &pipeline{
		cfg:          cfg,
		registry:     reg,
		synthesizer:  synthesizer,
		orchestrator: batch.New(cfg, store, synthesizer, reg, logger),
		assembler:    timeline.New(cfg, encoder, logger),
		encoder:      encoder,
	}, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
