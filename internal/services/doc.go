// Package services defines shared utilities consumed across the pipeline.
//
// Key responsibilities:
//   - Context helpers that stamp scene IDs, phase names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification uniform across components.
package services
