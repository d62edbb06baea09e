// Package store implements a single-shard, log-backed counter store: the
// store node (SN) owns an in-memory map from key to decimal-string value,
// an append-only write-ahead log, and (depending on configuration) a set of
// secondaries to fan writes out to or a primary to reconcile from.
package store

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/countershard/countershard/internal/apierr"
)

// tombstoneRetention bounds how long a deleted key's tombstone survives
// compaction. It only needs to outlast any plausible replication or
// reconciliation delay (reconcileInterval is 10s) so a secondary or
// reconciler never misses a delete because the primary already compacted
// it away; past that it's pure dead weight in the log.
const tombstoneRetention = time.Hour

// Store is the storage engine of one store node. It is safe for concurrent
// use. All map and log mutations happen under mu (SLOCK in the design
// vocabulary); replication is scheduled after mu is released and never
// blocks a caller.
type Store struct {
	mu         sync.Mutex // SLOCK: guards data, tombstones, and the log's logical state
	data       map[string]string
	tombstones map[string]time.Time // deleted key -> deletion time, for compaction retention
	wal        *wal

	nodeID string
	logger zerolog.Logger

	repl *replicator // nil if no secondaries are configured

	primaryURL string
	stopRecon  chan struct{}
	reconWG    sync.WaitGroup
}

// Options configures a new Store.
type Options struct {
	NodeID      string
	LogPath     string
	Secondaries []string
	PrimaryURL  string
	Logger      zerolog.Logger
}

// New opens (creating if absent) the log at opts.LogPath, replays it to
// rebuild the in-memory map, and starts background replication senders and
// (if PrimaryURL is set) the reconciliation loop.
func New(opts Options) (*Store, error) {
	w, err := openWAL(opts.LogPath)
	if err != nil {
		return nil, fmt.Errorf("open store log: %w", err)
	}

	s := &Store{
		data:       make(map[string]string),
		tombstones: make(map[string]time.Time),
		wal:        w,
		nodeID:     opts.NodeID,
		logger:     opts.Logger,
		primaryURL: opts.PrimaryURL,
		stopRecon:  make(chan struct{}),
	}

	if err := s.wal.replay(func(key, value string) {
		if value == deletedSentinel {
			delete(s.data, key)
			s.tombstones[key] = time.Now()
			return
		}
		s.data[key] = value
		delete(s.tombstones, key)
	}); err != nil {
		return nil, fmt.Errorf("replay store log: %w", err)
	}

	if len(opts.Secondaries) > 0 {
		s.repl = newReplicator(opts.Secondaries, opts.Logger)
	}

	if opts.PrimaryURL != "" {
		s.reconWG.Add(1)
		go s.reconcileLoop()
	}

	return s, nil
}

// Put replaces key's value, appends the record, and schedules fan-out to
// any configured secondaries. Returns the stored value.
//
// A value equal to the tombstone sentinel is treated as a delete: this is
// how a secondary's replication receiver applies a fanned-out delete,
// since the wire format for replicated writes and replicated deletes is
// the same "PUT key, value" shape.
func (s *Store) Put(key, value string) (string, error) {
	s.mu.Lock()
	if err := s.wal.append(key, value); err != nil {
		s.mu.Unlock()
		return "", apierr.Wrap(apierr.Durability, "append log", err).WithKey(key)
	}
	if value == deletedSentinel {
		delete(s.data, key)
		s.tombstones[key] = time.Now()
	} else {
		s.data[key] = value
		delete(s.tombstones, key)
	}
	s.mu.Unlock()

	s.scheduleReplicate(key, value)
	return value, nil
}

// Increment performs an atomic read-modify-write v := v+1 (treating an
// absent key as 0), appends the record, and schedules fan-out.
func (s *Store) Increment(key string) (string, error) {
	s.mu.Lock()
	current, _ := strconv.ParseInt(s.data[key], 10, 64)
	next := strconv.FormatInt(current+1, 10)
	if err := s.wal.append(key, next); err != nil {
		s.mu.Unlock()
		return "", apierr.Wrap(apierr.Durability, "append log", err).WithKey(key)
	}
	s.data[key] = next
	delete(s.tombstones, key)
	s.mu.Unlock()

	s.scheduleReplicate(key, next)
	return next, nil
}

// Get returns the current value for key, or ("", false) if absent.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

// Delete removes key, appending a tombstone record, and schedules fan-out.
// Returns whether the key existed.
func (s *Store) Delete(key string) (bool, error) {
	s.mu.Lock()
	_, existed := s.data[key]
	if err := s.wal.append(key, deletedSentinel); err != nil {
		s.mu.Unlock()
		return false, apierr.Wrap(apierr.Durability, "append log", err).WithKey(key)
	}
	delete(s.data, key)
	s.tombstones[key] = time.Now()
	s.mu.Unlock()

	s.scheduleReplicate(key, deletedSentinel)
	return existed, nil
}

// applyLocal is used by the reconciliation loop to overwrite a key's value
// with one pulled from the primary, appending the record as a normal
// mutation.
func (s *Store) applyLocal(key, value string) error {
	s.mu.Lock()
	if err := s.wal.append(key, value); err != nil {
		s.mu.Unlock()
		return err
	}
	s.data[key] = value
	delete(s.tombstones, key)
	s.mu.Unlock()
	return nil
}

// snapshotKeys returns the current key set, used by the reconciler to know
// which keys to poll the primary about.
func (s *Store) snapshotKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

func (s *Store) localValue(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *Store) scheduleReplicate(key, value string) {
	if s.repl == nil {
		return
	}
	s.repl.enqueue(replicationEvent{key: key, value: value, at: time.Now()})
}

// Compact rewrites the log so it contains only the latest record per live
// key, plus one tombstone record per key deleted within tombstoneRetention,
// dropping stale history (and stale tombstones) a replay would otherwise
// have to skip over. Live tombstones are kept so a secondary or reconciler
// that hasn't yet observed the delete still learns about it from a replay
// of the compacted log; it never changes this node's own observable state.
func (s *Store) Compact() error {
	s.mu.Lock()
	cutoff := time.Now().Add(-tombstoneRetention)
	entries := make([]string, 0, len(s.data)+len(s.tombstones))
	for k, v := range s.data {
		entries = append(entries, k+":"+v)
	}
	for k, deletedAt := range s.tombstones {
		if deletedAt.Before(cutoff) {
			delete(s.tombstones, k)
			continue
		}
		entries = append(entries, k+":"+deletedSentinel)
	}
	err := s.wal.replaceWith(entries)
	s.mu.Unlock()
	if err != nil {
		return apierr.Wrap(apierr.Durability, "compact log", err)
	}
	return nil
}

// Close stops background loops and closes the log file.
func (s *Store) Close() error {
	if s.primaryURL != "" {
		close(s.stopRecon)
		s.reconWG.Wait()
	}
	if s.repl != nil {
		s.repl.close()
	}
	return s.wal.close()
}
