package media

import "context"

// Encoder abstracts the audio operations the pipeline needs: silence
// generation, duration probing, and concatenation into a merged track.
type Encoder interface {
	// Silence writes a silent audio file of the given duration.
	Silence(ctx context.Context, durationMS int64, outPath string) error
	// Concat merges the input files, in order, into outPath.
	Concat(ctx context.Context, inputs []string, outPath string) error
	// Probe returns the duration of an audio file in milliseconds.
	Probe(ctx context.Context, path string) (int64, error)
}
