// Package journal keeps a SQLite log of scheduler events for later
// inspection.
//
// Each scheduler run records into its own session, identified by a UUIDv7
// token. Events within a session are numbered 1, 2, 3... in arrival order.
// The journal is diagnostic: nothing reads it back into a queue.
package journal
