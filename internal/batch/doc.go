// Package batch orchestrates synthesis runs over all segments of a
// project with a bounded worker pool.
package batch
