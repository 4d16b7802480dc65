package synth

import (
	"fmt"
	"strings"

	"dubber/internal/config"
	"dubber/internal/services"
)

// VoiceResolver maps diarized speaker labels to provider voice ids.
type VoiceResolver interface {
	Resolve(speaker string) (string, error)
}

// MappingResolver resolves voices from the configured speaker mapping with
// an optional default voice fallback.
type MappingResolver struct {
	mapping      map[string]string
	defaultVoice string
}

// NewMappingResolver builds a resolver from TTS config.
func NewMappingResolver(cfg config.TTS) *MappingResolver {
	return &MappingResolver{
		mapping:      cfg.VoiceMapping,
		defaultVoice: strings.TrimSpace(cfg.DefaultVoice),
	}
}

// Resolve returns the voice id for a speaker. An unmapped speaker falls back
// to the default voice; with no default configured this is a configuration
// error, not a retryable failure.
func (r *MappingResolver) Resolve(speaker string) (string, error) {
	speaker = strings.TrimSpace(speaker)
	if speaker != "" {
		if voice, ok := r.mapping[speaker]; ok && strings.TrimSpace(voice) != "" {
			return voice, nil
		}
	}
	if r.defaultVoice != "" {
		return r.defaultVoice, nil
	}
	return "", services.Wrap(
		services.ErrConfiguration,
		"synth",
		"resolve voice",
		fmt.Sprintf("no voice mapped for speaker %q and no default voice configured", speaker),
		nil,
	)
}
