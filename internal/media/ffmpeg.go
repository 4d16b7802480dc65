package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// FFmpeg implements Encoder by shelling out to ffmpeg and ffprobe.
type FFmpeg struct {
	ffmpegBin  string
	ffprobeBin string
	sampleRate int
	bitrate    int
}

// FFmpegOption customizes the encoder.
type FFmpegOption func(*FFmpeg)

// WithBinaries overrides the ffmpeg and ffprobe binary names or paths.
func WithBinaries(ffmpegBin, ffprobeBin string) FFmpegOption {
	return func(f *FFmpeg) {
		if strings.TrimSpace(ffmpegBin) != "" {
			f.ffmpegBin = ffmpegBin
		}
		if strings.TrimSpace(ffprobeBin) != "" {
			f.ffprobeBin = ffprobeBin
		}
	}
}

// WithAudioParams overrides the sample rate and bitrate used for generated
// silence so it matches the synthesized audio.
func WithAudioParams(sampleRate, bitrate int) FFmpegOption {
	return func(f *FFmpeg) {
		if sampleRate > 0 {
			f.sampleRate = sampleRate
		}
		if bitrate > 0 {
			f.bitrate = bitrate
		}
	}
}

// NewFFmpeg builds an ffmpeg-backed encoder.
func NewFFmpeg(opts ...FFmpegOption) *FFmpeg {
	enc := &FFmpeg{
		ffmpegBin:  "ffmpeg",
		ffprobeBin: "ffprobe",
		sampleRate: 32000,
		bitrate:    128000,
	}
	for _, opt := range opts {
		opt(enc)
	}
	return enc
}

// CheckDependencies verifies the ffmpeg binaries are resolvable.
func (f *FFmpeg) CheckDependencies() error {
	for _, binary := range []string{f.ffmpegBin, f.ffprobeBin} {
		if _, err := exec.LookPath(binary); err != nil {
			return fmt.Errorf("binary %q not found in PATH", binary)
		}
	}
	return nil
}

// Silence writes a silent audio file of the given duration.
func (f *FFmpeg) Silence(ctx context.Context, durationMS int64, outPath string) error {
	if durationMS <= 0 {
		return errors.New("silence: duration must be positive")
	}
	if strings.TrimSpace(outPath) == "" {
		return errors.New("silence: output path required")
	}
	seconds := float64(durationMS) / 1000
	args := []string{
		"-v", "error", "-hide_banner", "-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=mono", f.sampleRate),
		"-t", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-b:a", strconv.Itoa(f.bitrate),
		outPath,
	}
	return f.runFFmpeg(ctx, args)
}

// Concat merges the input files, in order, into outPath using the concat
// demuxer with stream copy.
func (f *FFmpeg) Concat(ctx context.Context, inputs []string, outPath string) error {
	if len(inputs) == 0 {
		return errors.New("concat: no inputs")
	}
	if strings.TrimSpace(outPath) == "" {
		return errors.New("concat: output path required")
	}

	listFile, err := writeConcatList(inputs)
	if err != nil {
		return err
	}
	defer os.Remove(listFile)

	args := []string{
		"-v", "error", "-hide_banner", "-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		outPath,
	}
	return f.runFFmpeg(ctx, args)
}

// Probe returns the duration of an audio file in milliseconds.
func (f *FFmpeg) Probe(ctx context.Context, path string) (int64, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, errors.New("probe: empty path")
	}
	cmd := exec.CommandContext(ctx, f.ffprobeBin,
		"-v", "error", "-hide_banner",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"--", path,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(output)))
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe parse duration: %w", err)
	}
	return int64(math.Round(seconds * 1000)), nil
}

func (f *FFmpeg) runFFmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegBin, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func writeConcatList(inputs []string) (string, error) {
	file, err := os.CreateTemp("", "dubber-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("concat list: %w", err)
	}
	defer file.Close()

	for _, input := range inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			os.Remove(file.Name())
			return "", fmt.Errorf("concat list: resolve %s: %w", input, err)
		}
		// The concat demuxer treats single quotes specially.
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		if _, err := fmt.Fprintf(file, "file '%s'\n", escaped); err != nil {
			os.Remove(file.Name())
			return "", fmt.Errorf("concat list: write: %w", err)
		}
	}
	return file.Name(), nil
}
