// Package project defines the dubbing data model (projects, subtitle
// segments, batch jobs) and its SQLite persistence.
package project
