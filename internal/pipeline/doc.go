// Package pipeline wires phase execution together: the trigger graph and
// per-scene completion tracking, the result-handling state machine, job
// submission with precondition checks, and the durable queue feeder.
package pipeline
