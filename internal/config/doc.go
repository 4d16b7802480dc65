// Package config loads and validates the TOML configuration for dubber.
package config
