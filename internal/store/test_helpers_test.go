package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/bowltrack/internal/bowl"
)

var savedAt = time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC)

// createTestStore creates a store in a temp directory with a fixed clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path, WithClock(func() time.Time { return savedAt }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSnapshot builds a snapshot with one bowl in each collection.
func createTestSnapshot() bowl.Snapshot {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	s := bowl.NewStore()
	s.Prepare("https://vyt.to/prepared", "A", "Hamid", now)
	s.Prepare("https://vyt.to/returned", "B", "Richa", now)
	if _, err := s.Return("https://vyt.to/returned", "Sultan", now.Add(time.Hour)); err != nil {
		panic(err)
	}
	s.Reconcile("https://vyt.to/active", bowl.Meta{Company: "Acme", Customer: "Jane"}, now)
	s.AppendScan(bowl.ScanEntry{Code: "https://vyt.to/prepared", Kind: bowl.ScanKitchen, Operator: "Hamid", Timestamp: now})
	snap := s.Snapshot()
	snap.CustomerData = append(snap.CustomerData, []byte(`{"name":"Acme","rate":0.5}`))
	return snap
}
