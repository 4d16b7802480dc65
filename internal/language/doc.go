// Package language normalizes language identifiers used in projects and
// translation prompts.
package language
