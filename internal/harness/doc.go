// Package harness runs YAML conformance scenarios against a real engine.
//
// Each scenario gets a fresh bowl.Store, a frozen clock and sequential
// operation IDs, so the trace it produces is byte-identical across runs and
// can be compared against a golden file.
//
// # Scenario Format
//
//	name: kitchen_then_return
//	description: "A prepared bowl can be returned"
//	start: 2026-10-19T09:00:00Z
//	steps:
//	  - session: { mode: kitchen, operator: Hamid, dish: B }
//	  - scan: https://vyt.to/abc123
//	    expect: { severity: success, status: PREPARED }
//	  - advance: 1m
//	  - session: { mode: return, operator: Sultan }
//	  - scan: https://vyt.to/abc123
//	    expect: { status: RETURNED }
//	assertions:
//	  - type: count
//	    collection: returned
//	    count: 1
//	  - type: record
//	    code: https://vyt.to/abc123
//	    collection: returned
//	    expect: { dish: B, operator: Hamid, returned_by: Sultan }
//	  - type: disjoint
//
// Each step does exactly one of session, scan, import, import_file, advance
// or reset. Steps other than advance go through the engine and add one event
// to the trace.
//
// # Assertion Types
//
//   - count: number of records in a collection (prepared, active, returned,
//     scans, history)
//   - record: the record for code exists, optionally in collection, with the
//     given fields
//   - absent: code is in no collection
//   - disjoint: no code is in two collections
//   - pushes: number of snapshots handed to the push scheduler
//   - trace_count: number of trace events of an event type
//
// # Golden Files
//
// RunWithGolden writes the canonical JSON trace to
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
