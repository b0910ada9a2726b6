package replica

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bowltrack/internal/bowl"
)

var t0 = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

var errNetwork = errors.New("network unreachable")

// memCache is a Cache and Journal held in memory.
type memCache struct {
	mu      sync.Mutex
	snap    *bowl.Snapshot
	saves   int
	loads   int
	pushes  []error
	digests []string
}

func (c *memCache) Load(ctx context.Context) (*bowl.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads++
	if c.snap == nil {
		return nil, nil
	}
	out := c.snap.Clone()
	return &out, nil
}

func (c *memCache) Save(ctx context.Context, snap bowl.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := snap.Clone()
	c.snap = &s
	c.saves++
	return nil
}

func (c *memCache) RecordPush(ctx context.Context, digest string, at time.Time, pushErr error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.digests = append(c.digests, digest)
	c.pushes = append(c.pushes, pushErr)
	return nil
}

func (c *memCache) saved() *bowl.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// flakyRemote fails the first n writes.
type flakyRemote struct {
	*MemoryRemote
	failures atomic.Int32
}

func (f *flakyRemote) Write(ctx context.Context, snap bowl.Snapshot) (time.Time, error) {
	if f.failures.Add(-1) >= 0 {
		return time.Time{}, errNetwork
	}
	return f.MemoryRemote.Write(ctx, snap)
}

func fastConfig() Config {
	return Config{
		Debounce:      time.Hour,
		PushTimeout:   time.Second,
		RetryInterval: time.Millisecond,
		MaxRetryWait:  5 * time.Millisecond,
	}
}

func snapshotWith(codes ...string) bowl.Snapshot {
	s := bowl.NewStore()
	for _, c := range codes {
		s.Prepare(c, "A", "Hamid", t0)
	}
	return s.Snapshot()
}

func hasCode(snap bowl.Snapshot, code string) bool {
	for _, list := range [][]bowl.Record{snap.Prepared, snap.Active, snap.Returned} {
		for _, r := range list {
			if r.Code == code {
				return true
			}
		}
	}
	return false
}

func fixedNow() time.Time { return t0 }

func TestLoad_RemoteDocumentIsAuthoritative(t *testing.T) {
	remote := NewMemoryRemote(fixedNow)
	_, err := remote.Write(context.Background(), snapshotWith("https://vyt.to/remote"))
	require.NoError(t, err)
	cache := &memCache{}
	cached := snapshotWith("https://vyt.to/cached")
	cache.snap = &cached

	r := New(remote, WithCache(cache), WithConfig(fastConfig()))
	res := r.Load(context.Background())

	assert.Equal(t, SourceRemote, res.Source)
	assert.NoError(t, res.RemoteErr)
	assert.True(t, hasCode(res.Snapshot, "https://vyt.to/remote"))
	assert.False(t, hasCode(res.Snapshot, "https://vyt.to/cached"))
	assert.Equal(t, 0, cache.loads)
	assert.True(t, hasCode(*cache.saved(), "https://vyt.to/remote"), "cache refreshed from remote")
	assert.True(t, r.Contacted())
}

func TestLoad_EmptyRemoteWinsOverCache(t *testing.T) {
	cache := &memCache{}
	cached := snapshotWith("https://vyt.to/cached")
	cache.snap = &cached

	r := New(NewMemoryRemote(fixedNow), WithCache(cache))
	res := r.Load(context.Background())

	assert.Equal(t, SourceRemote, res.Source)
	assert.Equal(t, 0, res.Snapshot.Len())
	assert.NotNil(t, res.Snapshot.Active)
	assert.Equal(t, 0, cache.loads)
}

func TestLoad_UnreachableFallsBackToCache(t *testing.T) {
	remote := NewMemoryRemote(fixedNow)
	remote.FailReads(errNetwork)
	cache := &memCache{}
	cached := snapshotWith("https://vyt.to/cached")
	cache.snap = &cached

	r := New(remote, WithCache(cache))
	res := r.Load(context.Background())

	assert.Equal(t, SourceCache, res.Source)
	assert.True(t, hasCode(res.Snapshot, "https://vyt.to/cached"))
	assert.ErrorIs(t, res.RemoteErr, bowl.ErrRemoteUnavailable)
	assert.ErrorIs(t, res.RemoteErr, errNetwork)
	assert.False(t, r.Contacted())
}

func TestLoad_UnreachableWithoutCache(t *testing.T) {
	remote := NewMemoryRemote(fixedNow)
	remote.FailReads(errNetwork)

	res := New(remote).Load(context.Background())

	assert.Equal(t, SourceEmpty, res.Source)
	assert.Equal(t, 0, res.Snapshot.Len())
	assert.Error(t, res.RemoteErr)
}

func TestLoad_CacheIgnoredAfterContact(t *testing.T) {
	remote := NewMemoryRemote(fixedNow)
	cache := &memCache{}
	r := New(remote, WithCache(cache), WithConfig(fastConfig()))

	require.NoError(t, r.Push(context.Background(), snapshotWith("https://vyt.to/a")).Err)
	remote.FailReads(errNetwork)

	res := r.Load(context.Background())

	assert.Equal(t, SourceEmpty, res.Source)
	assert.Equal(t, 0, cache.loads)
}

func TestPush_StampsServerTimeAndJournals(t *testing.T) {
	remote := NewMemoryRemote(func() time.Time { return t0.Add(time.Minute) })
	cache := &memCache{}
	r := New(remote, WithCache(cache), WithConfig(fastConfig()))

	res := r.Push(context.Background(), snapshotWith("https://vyt.to/a"))

	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, t0.Add(time.Minute), res.At)
	assert.Len(t, res.Digest, 64)

	saved := cache.saved()
	require.NotNil(t, saved)
	require.NotNil(t, saved.LastSync)
	assert.Equal(t, t0.Add(time.Minute), *saved.LastSync)
	assert.Equal(t, []string{res.Digest}, cache.digests)
	assert.Equal(t, []error{nil}, cache.pushes)

	doc, err := remote.Read(context.Background())
	require.NoError(t, err)
	assert.True(t, hasCode(*doc, "https://vyt.to/a"))
}

func TestPush_FailureIsWarningAndStateKept(t *testing.T) {
	remote := NewMemoryRemote(fixedNow)
	remote.FailWrites(errNetwork)
	cache := &memCache{}
	cfg := fastConfig()
	cfg.PushRetries = 2
	var pushed []PushResult
	r := New(remote, WithCache(cache), WithConfig(cfg), OnPush(func(p PushResult) { pushed = append(pushed, p) }))

	res := r.Push(context.Background(), snapshotWith("https://vyt.to/a"))

	require.Error(t, res.Err)
	assert.Equal(t, bowl.CodeRemoteUnavailable, bowl.CodeOf(res.Err))
	assert.Equal(t, bowl.SeverityWarning, bowl.SeverityOf(res.Err))
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 0, remote.Writes())
	assert.True(t, hasCode(*cache.saved(), "https://vyt.to/a"), "local state persisted")
	require.Len(t, cache.pushes, 1)
	assert.Error(t, cache.pushes[0])
	require.Len(t, pushed, 1)
}

func TestPush_RetryRecovers(t *testing.T) {
	remote := &flakyRemote{MemoryRemote: NewMemoryRemote(fixedNow)}
	remote.failures.Store(2)
	cfg := fastConfig()
	cfg.PushRetries = 3

	res := New(remote, WithConfig(cfg)).Push(context.Background(), snapshotWith("https://vyt.to/a"))

	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 1, remote.Writes())
}

func TestSchedule_DebouncesBurstIntoOneWrite(t *testing.T) {
	remote := NewMemoryRemote(fixedNow)
	cfg := fastConfig()
	cfg.Debounce = 30 * time.Millisecond
	r := New(remote, WithConfig(cfg))

	r.Schedule(snapshotWith("https://vyt.to/1"))
	r.Schedule(snapshotWith("https://vyt.to/1", "https://vyt.to/2"))
	r.Schedule(snapshotWith("https://vyt.to/1", "https://vyt.to/2", "https://vyt.to/3"))
	assert.True(t, r.Pending())

	require.Eventually(t, func() bool { return remote.Writes() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(3 * cfg.Debounce)
	assert.Equal(t, 1, remote.Writes())
	assert.False(t, r.Pending())

	doc, err := remote.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, doc.Prepared, 3, "latest state carried")
}

func TestFlush(t *testing.T) {
	remote := NewMemoryRemote(fixedNow)
	r := New(remote, WithConfig(fastConfig()))

	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, 0, remote.Writes())

	r.Schedule(snapshotWith("https://vyt.to/1"))
	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, 1, remote.Writes())
	assert.False(t, r.Pending())

	remote.FailWrites(errNetwork)
	r.Schedule(snapshotWith("https://vyt.to/2"))
	err := r.Flush(context.Background())
	assert.ErrorIs(t, err, bowl.ErrRemoteUnavailable)
}

type stateLog struct {
	mu     sync.Mutex
	states []ConnState
}

func (l *stateLog) record(s ConnState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) snapshot() []ConnState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ConnState(nil), l.states...)
}

type received struct {
	mu    sync.Mutex
	snaps []bowl.Snapshot
}

func (r *received) add(s bowl.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *received) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *received) last() bowl.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func TestSubscribe_DeliversAndResubscribes(t *testing.T) {
	remote := NewMemoryRemote(fixedNow)
	_, err := remote.Write(context.Background(), snapshotWith("https://vyt.to/initial"))
	require.NoError(t, err)

	states := &stateLog{}
	cache := &memCache{}
	r := New(remote, WithCache(cache), WithConfig(fastConfig()), OnState(states.record))
	got := &received{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Subscribe(ctx, got.add) }()

	// current document first
	require.Eventually(t, func() bool { return got.len() == 1 }, 2*time.Second, time.Millisecond)
	assert.True(t, hasCode(got.last(), "https://vyt.to/initial"))
	assert.Equal(t, Connected, r.State())

	// another terminal writes
	_, err = remote.Write(context.Background(), snapshotWith("https://vyt.to/other"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return got.len() == 2 }, 2*time.Second, time.Millisecond)
	assert.True(t, hasCode(got.last(), "https://vyt.to/other"))
	assert.True(t, hasCode(*cache.saved(), "https://vyt.to/other"))

	// transport drops; listener comes back with the current document
	remote.Disconnect(errNetwork)
	require.Eventually(t, func() bool { return got.len() == 3 }, 2*time.Second, time.Millisecond)
	assert.True(t, hasCode(got.last(), "https://vyt.to/other"))
	assert.Equal(t, Connected, r.State())

	_, err = remote.Write(context.Background(), snapshotWith("https://vyt.to/third"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return got.len() == 4 }, 2*time.Second, time.Millisecond)
	assert.True(t, hasCode(got.last(), "https://vyt.to/third"))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, Disconnected, r.State())

	assert.Equal(t, []ConnState{
		Connecting, Connected,
		Disconnected, Connecting, Connected,
		Disconnected,
	}, states.snapshot())
}

func TestSubscribe_RetriesUntilRemoteAccepts(t *testing.T) {
	remote := NewMemoryRemote(fixedNow)
	remote.FailSubscribe(errNetwork)
	r := New(remote, WithConfig(fastConfig()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Subscribe(ctx, func(bowl.Snapshot) {}) }()

	time.Sleep(20 * time.Millisecond)
	assert.NotEqual(t, Connected, r.State())
	assert.False(t, r.Contacted())

	remote.FailSubscribe(nil)
	require.Eventually(t, func() bool { return r.State() == Connected }, 2*time.Second, time.Millisecond)
	assert.True(t, r.Contacted())
}

// TestLastWriterWins pins down the lossy consistency model: two terminals
// change disjoint codes, the remote applies B's push then A's, and a fresh
// reader sees A's state only.
func TestLastWriterWins(t *testing.T) {
	remote := NewMemoryRemote(fixedNow)
	_, err := remote.Write(context.Background(), snapshotWith("https://vyt.to/base"))
	require.NoError(t, err)

	termA := New(remote, WithConfig(fastConfig()))
	termB := New(remote, WithConfig(fastConfig()))

	stateA := bowl.NewStore()
	stateA.Replace(termA.Load(context.Background()).Snapshot)
	stateB := bowl.NewStore()
	stateB.Replace(termB.Load(context.Background()).Snapshot)

	stateA.Prepare("https://vyt.to/m1", "A", "Hamid", t0)
	stateB.Prepare("https://vyt.to/m2", "B", "Richa", t0)

	remote.Pause()
	var wg sync.WaitGroup
	results := make([]PushResult, 2)
	wg.Add(2)
	go func() { defer wg.Done(); results[0] = termA.Push(context.Background(), stateA.Snapshot()) }()
	go func() { defer wg.Done(); results[1] = termB.Push(context.Background(), stateB.Snapshot()) }()
	require.Eventually(t, func() bool { return remote.Held() == 2 }, 2*time.Second, time.Millisecond)

	isB := func(s bowl.Snapshot) bool { return hasCode(s, "https://vyt.to/m2") }
	isA := func(s bowl.Snapshot) bool { return hasCode(s, "https://vyt.to/m1") }
	require.True(t, remote.Release(isB))
	require.True(t, remote.Release(isA))
	wg.Wait()

	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err, "both terminals believe they succeeded")

	reader := New(remote).Load(context.Background())
	assert.True(t, hasCode(reader.Snapshot, "https://vyt.to/m1"))
	assert.False(t, hasCode(reader.Snapshot, "https://vyt.to/m2"), "B's mutation is lost")
	assert.True(t, hasCode(reader.Snapshot, "https://vyt.to/base"))
}

func TestSubscribe_DeliversOwnWrites(t *testing.T) {
	remote := NewMemoryRemote(fixedNow)
	r := New(remote, WithConfig(fastConfig()))
	loaded := r.Load(context.Background())
	assert.Equal(t, SourceRemote, loaded.Source)

	got := &received{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Subscribe(ctx, got.add) }()
	require.Eventually(t, func() bool { return r.State() == Connected }, 2*time.Second, time.Millisecond)

	res := r.Push(context.Background(), snapshotWith("https://vyt.to/mine"))
	require.NoError(t, res.Err)

	other := New(remote)
	require.NoError(t, other.Push(context.Background(), snapshotWith("https://vyt.to/theirs")).Err)

	require.Eventually(t, func() bool { return got.len() == 2 }, 2*time.Second, time.Millisecond)
	got.mu.Lock()
	defer got.mu.Unlock()
	assert.True(t, hasCode(got.snaps[0], "https://vyt.to/mine"), "own push comes back like any other write")
	assert.True(t, hasCode(got.snaps[1], "https://vyt.to/theirs"))
}

func TestFlush_WaitsForTimerPush(t *testing.T) {
	remote := NewMemoryRemote(fixedNow)
	cache := &memCache{}
	cfg := fastConfig()
	cfg.Debounce = time.Millisecond
	r := New(remote, WithCache(cache), WithConfig(cfg))

	remote.Pause()
	r.Schedule(snapshotWith("https://vyt.to/late"))
	require.Eventually(t, func() bool { return remote.Held() == 1 }, 2*time.Second, time.Millisecond)
	assert.False(t, r.Pending(), "timer took the snapshot")

	flushed := make(chan error, 1)
	go func() { flushed <- r.Flush(context.Background()) }()

	select {
	case <-flushed:
		t.Fatal("Flush returned while the timer push was still in flight")
	case <-time.After(20 * time.Millisecond):
	}

	require.True(t, remote.Release(func(bowl.Snapshot) bool { return true }))
	select {
	case err := <-flushed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Flush did not return after the push landed")
	}
	assert.Equal(t, 1, remote.Writes())
	require.NotNil(t, cache.saved())
	assert.True(t, hasCode(*cache.saved(), "https://vyt.to/late"))
}

func TestConnState_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "unknown", ConnState(9).String())
}
