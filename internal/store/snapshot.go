package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/bowltrack/internal/bowl"
)

// ErrCorrupt is returned by Load when the stored snapshot does not match its
// digest.
var ErrCorrupt = errors.New("cached snapshot digest mismatch")

// Save replaces the cached snapshot.
func (s *Store) Save(ctx context.Context, snap bowl.Snapshot) error {
	snap = snap.Clone()
	snap.Normalize()

	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	digest, err := bowl.Digest(snap)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, doc, digest, bowls, saved_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			doc = excluded.doc,
			digest = excluded.digest,
			bowls = excluded.bowls,
			saved_at = excluded.saved_at
	`, string(doc), digest, snap.Len(), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the cached snapshot, or nil if none was ever saved.
func (s *Store) Load(ctx context.Context) (*bowl.Snapshot, error) {
	var doc, digest string
	err := s.db.QueryRowContext(ctx, `SELECT doc, digest FROM snapshots WHERE id = 1`).Scan(&doc, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap bowl.Snapshot
	if err := json.Unmarshal([]byte(doc), &snap); err != nil {
		return nil, fmt.Errorf("load snapshot: decode: %w", err)
	}
	snap.Normalize()

	got, err := bowl.Digest(snap)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if got != digest {
		return nil, fmt.Errorf("load snapshot: %w (stored %s, computed %s)", ErrCorrupt, digest, got)
	}
	return &snap, nil
}

// Info describes the cached snapshot without decoding it.
type Info struct {
	Digest  string    `json:"digest"`
	Bowls   int       `json:"bowls"`
	SavedAt time.Time `json:"savedAt"`
}

// Info returns metadata about the cached snapshot, or nil if there is none.
func (s *Store) Info(ctx context.Context) (*Info, error) {
	var info Info
	var savedAt string
	err := s.db.QueryRowContext(ctx, `SELECT digest, bowls, saved_at FROM snapshots WHERE id = 1`).
		Scan(&info.Digest, &info.Bowls, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot info: %w", err)
	}
	if info.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
		return nil, fmt.Errorf("snapshot info: saved_at: %w", err)
	}
	return &info, nil
}
