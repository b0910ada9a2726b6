// Package scan applies single barcode scans to a bowl.Store.
//
// A Processor validates the raw scanner input, checks the session mode and
// runs the Kitchen or Return transition. Every call returns an Outcome; errors
// are data here, not control flow, because a rejected scan is an ordinary
// event at a terminal. Validation failures happen before any mutation.
package scan
