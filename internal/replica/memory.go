package replica

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roach88/bowltrack/internal/bowl"
)

// ErrSubscriptionClosed is returned by Next after Close.
var ErrSubscriptionClosed = errors.New("subscription closed")

// MemoryRemote is an in-process Remote. Writes are applied in the order they
// reach it, which tests control with Pause and Release.
//
// Thread-safety: safe for concurrent use.
type MemoryRemote struct {
	mu  sync.Mutex
	now func() time.Time
	doc *bowl.Snapshot

	readErr      error
	writeErr     error
	subscribeErr error

	paused bool
	held   []*heldWrite
	writes int
	subs   map[*memorySub]struct{}
}

type heldWrite struct {
	snap bowl.Snapshot
	done chan time.Time
}

// NewMemoryRemote creates an empty remote. now stamps lastSync; nil means
// time.Now.
func NewMemoryRemote(now func() time.Time) *MemoryRemote {
	if now == nil {
		now = time.Now
	}
	return &MemoryRemote{now: now, subs: make(map[*memorySub]struct{})}
}

// FailReads makes Read return err until called again with nil.
func (m *MemoryRemote) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// FailWrites makes Write return err until called again with nil.
func (m *MemoryRemote) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// FailSubscribe makes Subscribe return err until called again with nil.
func (m *MemoryRemote) FailSubscribe(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeErr = err
}

// Disconnect kills every open subscription with err, as a dropped transport
// would.
func (m *MemoryRemote) Disconnect(err error) {
	m.mu.Lock()
	subs := make([]*memorySub, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
		delete(m.subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.fail(err)
	}
}

// Pause holds incoming writes until Release.
func (m *MemoryRemote) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Held returns the number of writes waiting for Release.
func (m *MemoryRemote) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

// Release applies the first held write whose snapshot satisfies match.
// It reports whether one was found.
func (m *MemoryRemote) Release(match func(bowl.Snapshot) bool) bool {
	m.mu.Lock()
	for i, h := range m.held {
		if !match(h.snap) {
			continue
		}
		m.held = append(m.held[:i], m.held[i+1:]...)
		at := m.applyLocked(h.snap)
		m.mu.Unlock()
		h.done <- at
		return true
	}
	m.mu.Unlock()
	return false
}

// Writes returns the number of writes applied.
func (m *MemoryRemote) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Read implements Remote.
func (m *MemoryRemote) Read(ctx context.Context) (*bowl.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	if m.doc == nil {
		return nil, nil
	}
	out := m.doc.Clone()
	return &out, nil
}

// Write implements Remote.
func (m *MemoryRemote) Write(ctx context.Context, snap bowl.Snapshot) (time.Time, error) {
	m.mu.Lock()
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return time.Time{}, err
	}
	if !m.paused {
		at := m.applyLocked(snap)
		m.mu.Unlock()
		return at, nil
	}

	h := &heldWrite{snap: snap.Clone(), done: make(chan time.Time, 1)}
	m.held = append(m.held, h)
	m.mu.Unlock()

	select {
	case at := <-h.done:
		return at, nil
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
}

// applyLocked replaces the document and fans it out. Caller holds m.mu.
func (m *MemoryRemote) applyLocked(snap bowl.Snapshot) time.Time {
	at := m.now()
	doc := snap.Clone()
	doc.LastSync = &at
	m.doc = &doc
	m.writes++
	for s := range m.subs {
		s.push(doc.Clone())
	}
	return at
}

// Subscribe implements Remote.
func (m *MemoryRemote) Subscribe(ctx context.Context) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return nil, m.subscribeErr
	}
	s := &memorySub{remote: m, signal: make(chan struct{}, 1)}
	if m.doc != nil {
		s.push(m.doc.Clone())
	}
	m.subs[s] = struct{}{}
	return s, nil
}

type memorySub struct {
	remote *MemoryRemote
	signal chan struct{}

	mu     sync.Mutex
	queue  []bowl.Snapshot
	err    error
	closed bool
}

func (s *memorySub) push(snap bowl.Snapshot) {
	s.mu.Lock()
	s.queue = append(s.queue, snap)
	s.mu.Unlock()
	s.wake()
}

func (s *memorySub) fail(err error) {
	if err == nil {
		err = errors.New("transport closed")
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.wake()
}

func (s *memorySub) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Next implements Subscription. Queued snapshots are delivered before a
// transport error.
func (s *memorySub) Next(ctx context.Context) (bowl.Snapshot, error) {
	for {
		s.mu.Lock()
		switch {
		case s.closed:
			s.mu.Unlock()
			return bowl.Snapshot{}, ErrSubscriptionClosed
		case len(s.queue) > 0:
			snap := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return snap, nil
		case s.err != nil:
			err := s.err
			s.mu.Unlock()
			return bowl.Snapshot{}, err
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return bowl.Snapshot{}, ctx.Err()
		case <-s.signal:
		}
	}
}

// Close implements Subscription.
func (s *memorySub) Close() error {
	s.remote.mu.Lock()
	delete(s.remote.subs, s)
	s.remote.mu.Unlock()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
	return nil
}
