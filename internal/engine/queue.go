package engine

import (
	"sync"

	"github.com/roach88/bowltrack/internal/bowl"
	"github.com/roach88/bowltrack/internal/scan"
)

// EventType distinguishes the requests the loop handles.
type EventType int

const (
	// EventScan applies one raw scan under the current session.
	EventScan EventType = iota + 1
	// EventImport reconciles a manifest.
	EventImport
	// EventReset removes today's Prepared records.
	EventReset
	// EventSetSession replaces the terminal session.
	EventSetSession
	// EventRemote replaces the whole state with a replicated snapshot.
	EventRemote
	// EventRead returns a copy of the state and session.
	EventRead
)

func (t EventType) String() string {
	switch t {
	case EventScan:
		return "scan"
	case EventImport:
		return "import"
	case EventReset:
		return "reset"
	case EventSetSession:
		return "session"
	case EventRemote:
		return "remote"
	case EventRead:
		return "read"
	default:
		return "unknown"
	}
}

// Event is one request for the loop. Only the fields for Type are read.
type Event struct {
	Type     EventType
	Raw      string
	Manifest []byte
	Session  scan.Session
	Snapshot *bowl.Snapshot

	// reply receives the Result. Nil for fire-and-forget events.
	reply chan Result
}

// eventQueue is an unbounded, thread-safe FIFO of events.
//
// Scanners, the subscription goroutine and CLI commands enqueue from their
// own goroutines while the Run loop dequeues. The signal channel lets the
// loop wait on the queue and its context in one select.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends e. Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]
	// Clear the slot so the manifest bytes and snapshot can be collected.
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that is signalled when events may be available and
// closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops further enqueues and wakes waiters. Already queued events stay
// available to TryDequeue.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
