// Package report derives read-only views from a bowl.Snapshot: the active and
// returned exports, dashboard counters and the overnight prep summary.
//
// Nothing here mutates state. Every function takes the snapshot and the
// current time explicitly so results are reproducible.
package report
