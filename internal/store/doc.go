// Package store provides the SQLite-backed local cache of a terminal.
//
// The cache holds exactly one snapshot: the last state this terminal pushed
// or received. It is read only on a cold start that cannot reach the remote.
// Beside it, a push log keeps one row per push attempt for diagnostics.
//
// Snapshots are stored as RFC 8785 canonical JSON together with their digest.
// Load recomputes the digest and refuses a snapshot that does not match.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
