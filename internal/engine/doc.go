// Package engine runs one terminal's state as a single-writer event loop.
//
// Scans, manifest imports, resets, session changes, inbound replicated
// snapshots and reads are queued from any goroutine and processed to
// completion one at a time, in submission order, by Run. Nothing else touches
// the bowl.Store, so no two transitions ever interleave.
//
// Every processed event is stamped with a sequence number from Clock and an
// operation ID from an OpIDGenerator. Both appear on the event's log lines and
// in its Result.
//
// After each event that changed local state the engine hands a snapshot to
// its Scheduler, normally a *replica.Replica, which debounces and pushes it.
// Inbound snapshots replace the state wholesale and are not pushed back.
package engine
