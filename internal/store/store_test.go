package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.LogPath == "" {
		opts.LogPath = filepath.Join(t.TempDir(), "log.txt")
	}
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutThenGet(t *testing.T) {
	s := newTestStore(t, Options{NodeID: "n1"})

	v, err := s.Put("k", "5")
	require.NoError(t, err)
	assert.Equal(t, "5", v)

	got, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "5", got)
}

func TestLogReplayReproducesMap(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "log.txt")

	s1 := newTestStore(t, Options{NodeID: "n1", LogPath: logPath})
	_, err := s1.Put("a", "1")
	require.NoError(t, err)
	_, err = s1.Put("b", "2")
	require.NoError(t, err)
	_, err = s1.Delete("a")
	require.NoError(t, err)
	_, err = s1.Put("a", "7")
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := New(Options{NodeID: "n1", LogPath: logPath})
	require.NoError(t, err)
	defer s2.Close()

	a, ok := s2.Get("a")
	require.True(t, ok)
	assert.Equal(t, "7", a)

	b, ok := s2.Get("b")
	require.True(t, ok)
	assert.Equal(t, "2", b)
}

func TestStartupWithExistingLog(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log.txt")
	writeRawLog(t, logPath, "a:1\nb:2\na:__deleted__\na:7\n")

	s, err := New(Options{NodeID: "n1", LogPath: logPath})
	require.NoError(t, err)
	defer s.Close()

	a, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "7", a)

	b, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, "2", b)
}

func writeRawLog(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestDeleteRemovesKey(t *testing.T) {
	s := newTestStore(t, Options{NodeID: "n1"})
	_, err := s.Put("k", "1")
	require.NoError(t, err)

	existed, err := s.Delete("k")
	require.NoError(t, err)
	assert.True(t, existed)

	_, ok := s.Get("k")
	assert.False(t, ok)

	existed, err = s.Delete("k")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestAtomicIncrementUnderConcurrency(t *testing.T) {
	s := newTestStore(t, Options{NodeID: "n1"})

	const clients = 20
	const perClient = 50

	var wg sync.WaitGroup
	wg.Add(clients)
	for i := 0; i < clients; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perClient; j++ {
				_, err := s.Increment("counter")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	got, ok := s.Get("counter")
	require.True(t, ok)
	assert.Equal(t, "1000", got)
}

func TestCompactPreservesObservableState(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "log.txt")
	s := newTestStore(t, Options{NodeID: "n1", LogPath: logPath})

	for i := 0; i < 5; i++ {
		_, err := s.Increment("x")
		require.NoError(t, err)
	}
	_, err := s.Put("y", "9")
	require.NoError(t, err)
	_, err = s.Delete("y")
	require.NoError(t, err)

	require.NoError(t, s.Compact())

	x, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, "5", x)

	_, ok = s.Get("y")
	assert.False(t, ok)
}

// TestCompactKeepsLiveTombstones guards against compaction silently
// dropping a recent delete: a replica or reconciler that replays a
// compacted log must still learn a key was deleted, not just find it
// absent from whatever it already had.
func TestCompactKeepsLiveTombstones(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "log.txt")
	s := newTestStore(t, Options{NodeID: "n1", LogPath: logPath})

	_, err := s.Put("a", "1")
	require.NoError(t, err)
	_, err = s.Put("b", "2")
	require.NoError(t, err)
	_, err = s.Delete("a")
	require.NoError(t, err)

	require.NoError(t, s.Compact())

	replayed, err := New(Options{NodeID: "n2", LogPath: logPath})
	require.NoError(t, err)
	defer replayed.Close()

	_, ok := replayed.Get("a")
	assert.False(t, ok, "replay of a compacted log must still see the delete")
	_, tracked := replayed.tombstones["a"]
	assert.True(t, tracked, "compacted log must still carry the tombstone for a")

	b, ok := replayed.Get("b")
	require.True(t, ok)
	assert.Equal(t, "2", b)
}

// TestCompactDropsExpiredTombstones guards the other half of the
// retention window: a tombstone old enough that every replica/reconciler
// has long since had a chance to observe it should eventually be dropped,
// or the log would grow forever under steady churn.
func TestCompactDropsExpiredTombstones(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "log.txt")
	s := newTestStore(t, Options{NodeID: "n1", LogPath: logPath})

	_, err := s.Put("a", "1")
	require.NoError(t, err)
	_, err = s.Delete("a")
	require.NoError(t, err)

	s.mu.Lock()
	s.tombstones["a"] = s.tombstones["a"].Add(-2 * tombstoneRetention)
	s.mu.Unlock()

	require.NoError(t, s.Compact())

	s.mu.Lock()
	_, stillTracked := s.tombstones["a"]
	s.mu.Unlock()
	assert.False(t, stillTracked)

	replayed, err := New(Options{NodeID: "n2", LogPath: logPath})
	require.NoError(t, err)
	defer replayed.Close()

	_, ok := replayed.Get("a")
	assert.False(t, ok)
}
