// Package metrics declares the Prometheus collectors exported by the daemon's
// metrics listener.
package metrics
