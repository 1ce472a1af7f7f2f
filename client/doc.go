// Package client is a synchronous redis client built on a single connection.
//
// A Session sends one command at a time and blocks until the reply is parsed.
// Pipelined batches commands into one write, Multi wraps them in MULTI/EXEC,
// and Subscribe/Message implement pub/sub on the same connection. With
// Options.Sentinel set, Connect first asks the configured sentinel for the
// master address.
//
// Sessions are not safe for concurrent use. Open one per goroutine.
//
// # Locks
//
// LockRead and LockWrite implement an advisory read/write lock stored in
// two keys, <id>.writelock (the writer) and <id>.readlock (the set of readers).
// Acquisition polls every 100ms until the timeout. A writer sets its key first
// and deletes it again when readers are present, so readers and a writer never
// both hold the lock once an acquisition returns. The scheme gives no fairness:
// a steady stream of readers can starve a writer indefinitely.
package client
