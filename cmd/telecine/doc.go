// Command telecine is the operator CLI. It talks to the shared SQLite
// database: submissions become durable queue rows that the daemon's feeder
// dispatches.
package main
