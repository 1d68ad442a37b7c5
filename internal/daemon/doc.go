// Package daemon assembles the pipeline components, owns the single
// instance lock, and manages startup and graceful shutdown.
package daemon
