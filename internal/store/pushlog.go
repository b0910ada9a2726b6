package store

import (
	"context"
	"fmt"
	"time"
)

// PushRecord is one row of the push log.
type PushRecord struct {
	Seq    int64     `json:"seq"`
	Digest string    `json:"digest"`
	At     time.Time `json:"at"`
	OK     bool      `json:"ok"`
	Error  string    `json:"error,omitempty"`
}

// RecordPush appends a push attempt to the log.
func (s *Store) RecordPush(ctx context.Context, digest string, at time.Time, pushErr error) error {
	ok := 1
	msg := ""
	if pushErr != nil {
		ok = 0
		msg = pushErr.Error()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_log (digest, pushed_at, ok, error)
		VALUES (?, ?, ?, ?)
	`, digest, at.UTC().Format(time.RFC3339Nano), ok, msg)
	if err != nil {
		return fmt.Errorf("record push: %w", err)
	}
	return nil
}

// Pushes returns up to limit most recent push records, newest first.
// Returns an empty slice (not nil) if the log is empty.
func (s *Store) Pushes(ctx context.Context, limit int) ([]PushRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, digest, pushed_at, ok, error
		FROM push_log
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query push log: %w", err)
	}
	defer rows.Close()

	records := []PushRecord{}
	for rows.Next() {
		var rec PushRecord
		var at string
		var ok int
		if err := rows.Scan(&rec.Seq, &rec.Digest, &at, &ok, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan push log: %w", err)
		}
		if rec.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("scan push log: pushed_at: %w", err)
		}
		rec.OK = ok == 1
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate push log: %w", err)
	}
	return records, nil
}
