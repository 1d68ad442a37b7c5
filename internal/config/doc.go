// Package config loads, validates, and normalizes the TOML configuration
// shared by the daemon and CLI. Defaults live in defaults.go; Load layers a
// user config file over them, expands paths, and rejects out-of-range pool
// and quality values before any pool is constructed.
package config
