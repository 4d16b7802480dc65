// Package media generates and merges audio files through ffmpeg.
package media
