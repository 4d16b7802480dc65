// Command dubber imports subtitle files, synthesizes dubbed speech through
// the configured providers, and merges the results into a single audio
// track aligned with the original cue timing.
package main
