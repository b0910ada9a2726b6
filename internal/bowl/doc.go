// Package bowl holds the authoritative in-memory record of every tracked bowl.
//
// A Store owns three disjoint collections (Prepared, Active, Returned), the
// chronological scan log and the newest-first scan history. It is the only
// place where bowl state changes; scan processing and manifest reconciliation
// call into the transition methods defined here.
//
// # Invariants
//
// I1: a code appears in at most one of Prepared, Active and Returned once a
// transition method returns. Every method that inserts a code first evicts it
// from the other two collections.
//
// I2: records that leave Prepared keep the preparer's dish and operator unless
// a reconciliation import supplies a replacement value.
//
// A Store is not safe for concurrent use. The terminal engine serializes all
// access through its event loop.
//
// # Snapshots
//
// Snapshot is the replicated document shape. Store.Snapshot returns a deep copy
// and Store.Replace swaps the whole state in one step; nothing is merged field
// by field. Digest fingerprints a snapshot with RFC 8785 canonical JSON so the
// local cache can detect corruption and logs can correlate pushes.
package bowl
