// Package events publishes pipeline progress to external sinks: ntfy for
// human notifications and NATS for machine consumers. Publishing is best
// effort and never blocks or fails the pipeline.
package events
