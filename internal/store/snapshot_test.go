package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bowltrack/internal/bowl"
)

func TestLoad_EmptyCache(t *testing.T) {
	s := createTestStore(t)

	snap, err := s.Load(context.Background())

	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	want := createTestSnapshot()
	lastSync := time.Date(2026, 10, 19, 17, 0, 0, 0, time.UTC)
	want.LastSync = &lastSync

	require.NoError(t, s.Save(ctx, want))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, want.Prepared, got.Prepared)
	assert.Equal(t, want.Active, got.Active)
	assert.Equal(t, want.Returned, got.Returned)
	assert.Equal(t, want.Scans, got.Scans)
	assert.Equal(t, want.History, got.History)
	require.NotNil(t, got.LastSync)
	assert.True(t, lastSync.Equal(*got.LastSync))
	require.Len(t, got.CustomerData, 1)
	assert.JSONEq(t, `{"name":"Acme","rate":0.5}`, string(got.CustomerData[0]))

	wantDigest, err := bowl.Digest(want)
	require.NoError(t, err)
	gotDigest, err := bowl.Digest(*got)
	require.NoError(t, err)
	assert.Equal(t, wantDigest, gotDigest)
}

func TestSaveLoad_KeepsCodeBytes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	code := "cafe\u0301-bowl-01"

	bowls := bowl.NewStore()
	bowls.Prepare(code, "A", "Hamid", time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))
	require.NoError(t, s.Save(ctx, bowls.Snapshot()))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Prepared, 1)
	require.Equal(t, code, got.Prepared[0].Code, "decomposed accent survives the cache")

	restored := bowl.NewStore()
	restored.Replace(*got)
	_, err = restored.Return(code, "Sultan", time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	assert.NoError(t, err, "scanner bytes still match after a cold start")
}

func TestSave_Overwrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, createTestSnapshot()))
	require.NoError(t, s.Save(ctx, bowl.Snapshot{}))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0, got.Len())
	assert.NotNil(t, got.Active)

	var rows int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM snapshots").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestLoad_DetectsCorruption(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, createTestSnapshot()))

	_, err := s.db.Exec(`UPDATE snapshots SET doc = replace(doc, 'Hamid', 'Mallory')`)
	require.NoError(t, err)

	_, err = s.Load(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestLoad_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Save(ctx, createTestSnapshot()))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.Len())
}

func TestInfo(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Nil(t, info)

	snap := createTestSnapshot()
	require.NoError(t, s.Save(ctx, snap))

	info, err = s.Info(ctx)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 3, info.Bowls)
	assert.Equal(t, savedAt, info.SavedAt)
	digest, err := bowl.Digest(snap)
	require.NoError(t, err)
	assert.Equal(t, digest, info.Digest)
}

func TestPushLog(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	records, err := s.Pushes(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records)

	require.NoError(t, s.RecordPush(ctx, "d1", at, nil))
	require.NoError(t, s.RecordPush(ctx, "d2", at.Add(time.Second), errors.New("REMOTE_UNAVAILABLE: push failed")))
	require.NoError(t, s.RecordPush(ctx, "d3", at.Add(2*time.Second), nil))

	records, err = s.Pushes(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "d3", records[0].Digest)
	assert.True(t, records[0].OK)
	assert.Equal(t, at.Add(2*time.Second), records[0].At)

	assert.Equal(t, "d2", records[1].Digest)
	assert.False(t, records[1].OK)
	assert.Equal(t, "REMOTE_UNAVAILABLE: push failed", records[1].Error)
	assert.Greater(t, records[0].Seq, records[1].Seq)
}
