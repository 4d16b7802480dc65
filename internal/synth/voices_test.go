package synth_test

import (
	"errors"
	"testing"

	"dubber/internal/config"
	"dubber/internal/services"
	"dubber/internal/synth"
)

func TestMappingResolver(t *testing.T) {
	resolver := synth.NewMappingResolver(config.TTS{
		DefaultVoice: "fallback_voice",
		VoiceMapping: map[string]string{
			"SPEAKER_00": "voice_a",
			"SPEAKER_01": "voice_b",
		},
	})

	cases := []struct {
		name    string
		speaker string
		want    string
	}{
		{"mapped speaker", "SPEAKER_00", "voice_a"},
		{"other mapped speaker", "SPEAKER_01", "voice_b"},
		{"unmapped speaker falls back", "SPEAKER_07", "fallback_voice"},
		{"empty speaker falls back", "", "fallback_voice"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolver.Resolve(tc.speaker)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Resolve(%q) = %q, want %q", tc.speaker, got, tc.want)
			}
		})
	}
}

func TestMappingResolverRequiresSomeVoice(t *testing.T) {
	resolver := synth.NewMappingResolver(config.TTS{})
	_, err := resolver.Resolve("SPEAKER_00")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
