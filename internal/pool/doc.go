// Package pool implements bounded worker pools with per-phase job
// deduplication, a manager that owns one pool per processing phase, live
// resizing by pool replacement, and graceful shutdown that reclaims
// unexecuted jobs for durable requeueing.
package pool
