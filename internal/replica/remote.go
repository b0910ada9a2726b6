package replica

import (
	"context"
	"time"

	"github.com/roach88/bowltrack/internal/bowl"
)

// Remote is the shared document store.
type Remote interface {
	// Read returns the current document, or nil if none has been written.
	Read(ctx context.Context) (*bowl.Snapshot, error)

	// Write replaces the document and returns the server-side write time,
	// which the store also records as the document's lastSync.
	Write(ctx context.Context, snap bowl.Snapshot) (time.Time, error)

	// Subscribe opens a change feed. The current document, if any, is
	// delivered first.
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is an open change feed.
type Subscription interface {
	// Next blocks until the document changes. A non-nil error means the feed
	// is dead and must be closed.
	Next(ctx context.Context) (bowl.Snapshot, error)
	Close() error
}

// Cache is the local fallback snapshot.
type Cache interface {
	Load(ctx context.Context) (*bowl.Snapshot, error)
	Save(ctx context.Context, snap bowl.Snapshot) error
}

// Journal records push attempts. Optional; a Cache may implement it.
type Journal interface {
	RecordPush(ctx context.Context, digest string, at time.Time, pushErr error) error
}

// ConnState is the subscription state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}
