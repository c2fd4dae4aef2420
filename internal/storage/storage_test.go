package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStorage(t *testing.T, path string, window time.Duration, clock *testClock) *Storage {
	t.Helper()
	s, err := New(path, window, WithClock(clock.Now), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestShouldReplyWithoutEntry(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestStorage(t, filepath.Join(t.TempDir(), "log.json"), 10*time.Minute, clock)

	ok, err := s.ShouldReply(context.Background(), "U1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCooldownWindowBoundary(t *testing.T) {
	t.Parallel()

	window := 600 * time.Second
	testCases := []struct {
		name  string
		delta time.Duration
		want  bool
	}{
		{name: "immediately", delta: 0, want: false},
		{name: "five seconds", delta: 5 * time.Second, want: false},
		{name: "just before window", delta: window - time.Nanosecond, want: false},
		{name: "exactly window", delta: window, want: true},
		{name: "after window", delta: window + time.Hour, want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			t1 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			clock := &testClock{now: t1}
			s := newTestStorage(t, filepath.Join(t.TempDir(), "log.json"), window, clock)

			require.NoError(t, s.RecordReply(context.Background(), "U1", t1))
			clock.Advance(tc.delta)

			got, err := s.ShouldReply(context.Background(), "U1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			other, err := s.ShouldReply(context.Background(), "U2")
			require.NoError(t, err)
			assert.True(t, other, "other correspondents are unaffected")
		})
	}
}

func TestCooldownSurvivesRestart(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "log.json")
	t1 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := &testClock{now: t1}

	first, err := New(path, time.Minute, WithClock(clock.Now), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	require.NoError(t, first.RecordReply(context.Background(), "U1", t1))
	// no Close: the write must already be on disk

	clock.Advance(30 * time.Second)
	second := newTestStorage(t, path, time.Minute, clock)
	ok, err := second.ShouldReply(context.Background(), "U1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordReplyWritesUTCISO(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "log.json")
	clock := &testClock{now: time.Now()}
	s := newTestStorage(t, path, time.Minute, clock)

	at := time.Date(2024, 5, 1, 15, 30, 0, 250_000_000, time.FixedZone("CEST", 2*3600))
	require.NoError(t, s.RecordReply(context.Background(), "U1", at))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]string
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, "2024-05-01T13:30:00.25Z", onDisk["U1"])
}

func TestRecordReplyNeverMovesBackwards(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Now()}
	s := newTestStorage(t, filepath.Join(t.TempDir(), "log.json"), time.Minute, clock)

	newer := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)
	require.NoError(t, s.RecordReply(context.Background(), "U1", newer))
	require.NoError(t, s.RecordReply(context.Background(), "U1", older))

	got, ok, err := s.LastReply(context.Background(), "U1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(newer))
}

func TestStoredTimestampFormats(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Minute)
	testCases := []struct {
		name      string
		value     string
		wantReply bool
		wantReset bool
	}{
		{name: "epoch int", value: `1714564740`, wantReply: false},
		{name: "epoch float", value: `1714564740.5`, wantReply: false},
		{name: "iso utc z", value: `"2024-05-01T11:59:00Z"`, wantReply: false},
		{name: "iso offset", value: `"2024-05-01T13:59:00+02:00"`, wantReply: false},
		{name: "iso python", value: `"2024-05-01T11:59:00.123456+00:00"`, wantReply: false},
		{name: "iso no zone", value: `"2024-05-01T11:59:00"`, wantReply: false},
		{name: "iso space no zone", value: `"2024-05-01 11:59:00.5"`, wantReply: false},
		{name: "old iso", value: `"2024-04-01T00:00:00Z"`, wantReply: true},
		{name: "malformed string", value: `"yesterday-ish"`, wantReply: true},
		{name: "object value", value: `{"at": 1}`, wantReply: true, wantReset: true},
		{name: "null value", value: `null`, wantReply: true, wantReset: true},
	}
	require.Equal(t, int64(1714564740), recent.Unix())

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			path := filepath.Join(dir, "log.json")
			require.NoError(t, os.WriteFile(path, []byte(`{"U1": `+tc.value+`}`), 0644))

			s := newTestStorage(t, path, 10*time.Minute, &testClock{now: now})
			got, err := s.ShouldReply(context.Background(), "U1")
			require.NoError(t, err)
			assert.Equal(t, tc.wantReply, got)

			backups, err := filepath.Glob(filepath.Join(dir, "log.json.corrupted_*.bak"))
			require.NoError(t, err)
			if tc.wantReset {
				assert.Len(t, backups, 1)
			} else {
				assert.Empty(t, backups)
			}
		})
	}
}

func TestParseTimestampNoZoneIsUTC(t *testing.T) {
	t.Parallel()

	got, err := parseTimestamp("2024-05-01T11:59:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 11, 59, 0, 0, time.UTC), got)

	got, err = parseTimestamp("garbage")
	require.Error(t, err)
	assert.Equal(t, int64(0), got.Unix())
}

func TestCorruptLogRecovers(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "responses_log.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestStorage(t, path, time.Minute, clock)

	entries, err := s.Entries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)

	backups, err := filepath.Glob(filepath.Join(dir, "responses_log.json.corrupted_*.bak"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, filepath.Base(backups[0]), "1714564800")

	ok, err := s.ShouldReply(context.Background(), "U1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, s.RecordReply(context.Background(), "U1", clock.Now()))
	ok, err = s.ShouldReply(context.Background(), "U1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnreadableLogIsFatal(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "responses_log.json")
	require.NoError(t, os.Mkdir(path, 0755))

	_, err := New(path, time.Minute, WithLogger(zerolog.Nop()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.NotErrorIs(t, err, ErrLogCorrupted)
}

func TestEntriesAndForget(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "log.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"b": "2024-05-01T00:00:00Z", "a": 1714521600, "c": "??"}`), 0644))
	s := newTestStorage(t, path, time.Minute, &testClock{now: time.Now()})

	entries, err := s.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].CorrespondentID)
	assert.True(t, entries[0].LastReplyAt.Equal(entries[1].LastReplyAt))
	assert.False(t, entries[1].Malformed)
	assert.True(t, entries[2].Malformed)

	require.NoError(t, s.Forget(context.Background(), "b"))
	_, ok, err := s.LastReply(context.Background(), "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	s := newTestStorage(t, filepath.Join(t.TempDir(), "log.json"), time.Minute, &testClock{now: time.Now()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ShouldReply(ctx, "U1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.RecordReply(ctx, "U1", time.Now()), context.Canceled)
}

func TestLockSerializesCheckThenAct(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestStorage(t, filepath.Join(t.TempDir(), "log.json"), time.Hour, clock)

	var replies atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("U1")
			defer unlock()

			ok, err := s.ShouldReply(context.Background(), "U1")
			if !assert.NoError(t, err) || !ok {
				return
			}
			replies.Add(1)
			assert.NoError(t, s.RecordReply(context.Background(), "U1", clock.Now()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), replies.Load())
	assert.Equal(t, 0, s.locks.Len())
}
