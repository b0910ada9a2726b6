// Package replica keeps a terminal's bowl state in step with the shared
// remote document.
//
// Replication is whole-document and last-writer-wins. A push writes the full
// snapshot; a subscription delivers full snapshots that the caller swaps in
// wholesale. There is no version check and no merge: when two terminals push
// concurrently, whichever write lands last becomes the truth for everyone and
// the other terminal's in-flight changes are gone. This is the intended
// consistency model and tests pin it down.
//
// Pushes are debounced (trailing edge) so a burst of scans becomes one write.
// A failed push never rolls back local state; it is reported as a
// REMOTE_UNAVAILABLE warning and the next mutation pushes again.
//
// The local cache is only read on a cold start that cannot reach the remote.
// After any successful contact with the remote in this session it is written
// to but never read.
package replica
