// Package store persists the scene library, the durable job queue, job
// execution history, phase triggers, and runtime setting overrides in a
// single SQLite database shared by the daemon and the CLI.
package store
