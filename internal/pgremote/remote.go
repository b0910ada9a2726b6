// Package pgremote stores the shared bowl document in PostgreSQL.
//
// The whole document lives in one jsonb row keyed by document ID. Writes
// replace the row and publish the ID on a LISTEN/NOTIFY channel; subscribers
// re-read the row when notified. Like any Remote, this is last-writer-wins:
// the row holds whatever the most recent transaction wrote.
package pgremote

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/bowltrack/internal/bowl"
	"github.com/roach88/bowltrack/internal/replica"
)

//go:embed schema.sql
var schemaSQL string

// Channel is the NOTIFY channel carrying changed document IDs.
const Channel = "bowl_documents"

// ErrSchemaMissing is returned when the bowl_documents table does not exist.
var ErrSchemaMissing = errors.New("pgremote: bowl_documents table missing")

// Remote implements replica.Remote on a pgx pool.
type Remote struct {
	pool *pgxpool.Pool
	id   string
}

var _ replica.Remote = (*Remote)(nil)

// NewPool constructs a pgx connection pool using the provided connection string.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	if connString == "" {
		return nil, fmt.Errorf("pgremote: empty connection string")
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("pgremote: parse config: %w", err)
	}
	cfg.MaxConnIdleTime = 30 * time.Second

	return pgxpool.NewWithConfig(ctx, cfg)
}

// New creates a Remote for document id. The pool is not owned by the Remote.
func New(pool *pgxpool.Pool, id string) *Remote {
	return &Remote{pool: pool, id: id}
}

// EnsureSchema creates the documents table if needed.
func (r *Remote) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("pgremote: ensure schema: %w", err)
	}
	return nil
}

// Read implements replica.Remote.
func (r *Remote) Read(ctx context.Context) (*bowl.Snapshot, error) {
	return readDocument(ctx, r.pool, r.id)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func readDocument(ctx context.Context, q queryRower, id string) (*bowl.Snapshot, error) {
	var raw string
	err := q.QueryRow(ctx, `SELECT doc::text FROM bowl_documents WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("read document", err)
	}

	var snap bowl.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("pgremote: decode document %s: %w", id, err)
	}
	snap.Normalize()
	return &snap, nil
}

// Write implements replica.Remote. The transaction start time becomes the
// document's lastSync.
func (r *Remote) Write(ctx context.Context, snap bowl.Snapshot) (time.Time, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return time.Time{}, classify("begin", err)
	}
	defer tx.Rollback(ctx)

	var at time.Time
	if err := tx.QueryRow(ctx, `SELECT now()`).Scan(&at); err != nil {
		return time.Time{}, classify("server time", err)
	}
	at = at.UTC()

	snap = snap.Clone()
	snap.Normalize()
	snap.LastSync = &at
	data, err := json.Marshal(snap)
	if err != nil {
		return time.Time{}, fmt.Errorf("pgremote: encode document: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bowl_documents (id, doc, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at
	`, r.id, string(data), at)
	if err != nil {
		return time.Time{}, classify("write document", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, Channel, r.id); err != nil {
		return time.Time{}, classify("notify", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, classify("commit", err)
	}
	return at, nil
}

// Subscribe implements replica.Remote. The subscription holds one dedicated
// connection taken out of the pool.
func (r *Remote) Subscribe(ctx context.Context) (replica.Subscription, error) {
	pc, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, classify("acquire listener", err)
	}
	conn := pc.Hijack()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		conn.Close(context.Background())
		return nil, classify("listen", err)
	}
	return &subscription{conn: conn, id: r.id, initial: true}, nil
}

type subscription struct {
	conn    *pgx.Conn
	id      string
	initial bool
}

// Next implements replica.Subscription. The current document is returned
// first; afterwards each notification for this document triggers a re-read.
func (s *subscription) Next(ctx context.Context) (bowl.Snapshot, error) {
	if s.initial {
		s.initial = false
		snap, err := readDocument(ctx, s.conn, s.id)
		if err != nil {
			return bowl.Snapshot{}, err
		}
		if snap != nil {
			return *snap, nil
		}
	}

	for {
		n, err := s.conn.WaitForNotification(ctx)
		if err != nil {
			return bowl.Snapshot{}, classify("wait for notification", err)
		}
		if n.Payload != s.id {
			continue
		}
		snap, err := readDocument(ctx, s.conn, s.id)
		if err != nil {
			return bowl.Snapshot{}, err
		}
		if snap != nil {
			return *snap, nil
		}
	}
}

// Close implements replica.Subscription.
func (s *subscription) Close() error {
	return s.conn.Close(context.Background())
}

// classify wraps err, mapping an undefined table to ErrSchemaMissing.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
		return fmt.Errorf("pgremote: %s: %w", op, ErrSchemaMissing)
	}
	return fmt.Errorf("pgremote: %s: %w", op, err)
}
