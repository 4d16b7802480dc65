// Package registry tracks cancellation flags and the latest progress
// snapshot per (client, project) pair.
package registry
