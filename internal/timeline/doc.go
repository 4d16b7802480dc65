// Package timeline places synthesized segment audio on the project timeline
// and merges it into a single track. Gaps between cues and segments without
// usable audio become generated silence.
package timeline
