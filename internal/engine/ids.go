package engine

import "github.com/google/uuid"

// OpIDGenerator produces operation IDs. Every event the loop processes gets
// one, and it is attached to the log lines and the result for that event.
type OpIDGenerator interface {
	Generate() string
}

// UUIDv7Generator produces time-sortable UUIDv7 operation IDs, so log lines
// from one terminal sort in processing order.
//
// Safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7. Panics if the random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
