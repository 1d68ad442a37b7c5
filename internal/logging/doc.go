// Package logging provides slog construction from application config plus the
// attribute helpers and standardized field names the rest of the pipeline
// logs with.
package logging
