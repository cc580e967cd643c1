package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"courier/pkg/apperr"
	"courier/pkg/state/logger"
	"courier/pkg/timeutil"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

var (
	ErrNotFound = apperr.NotFound("store", "not found")
	ErrConflict = apperr.Conflict("store", "already exists")
)

// Options tunes Open. Zero values use the on-disk filesystem and the
// process clock.
type Options struct {
	FS    vfs.FS
	Clock timeutil.Clock
	// NoSync skips fsync on writes; tests only.
	NoSync bool
}

// Store is the persistence gateway backed by a single pebble database.
type Store struct {
	db     *pebble.DB
	path   string
	clock  timeutil.Clock
	wopts  *pebble.WriteOptions
	locks  stripedLocks
	userMu sync.Mutex

	tsMu   sync.Mutex
	lastTS int64

	writes atomic.Uint64
	closed atomic.Bool
}

// opens/creates the pebble database at path
func Open(path string, opts Options) (*Store, error) {
	popts := &pebble.Options{}
	if opts.FS != nil {
		popts.FS = opts.FS
	}
	db, err := pebble.Open(path, popts)
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.System
	}
	s := &Store{db: db, path: path, clock: clock, wopts: pebble.Sync}
	if opts.NoSync {
		s.wopts = pebble.NoSync
	}
	return s, nil
}

// closes the database; safe to call twice
func (s *Store) Close() error {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// reports whether the database is open
func (s *Store) Ready() bool {
	return s != nil && !s.closed.Load()
}

func (s *Store) Path() string { return s.path }

// returns a strictly increasing timestamp so creation order is total
func (s *Store) nextTimestamp() time.Time {
	s.tsMu.Lock()
	defer s.tsMu.Unlock()
	ts := s.clock.Now().UTC().UnixNano()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return time.Unix(0, ts).UTC()
}

func (s *Store) guard(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return apperr.Persistence(op, err)
	}
	if !s.Ready() {
		return apperr.Persistence(op, errors.New("store closed"))
	}
	return nil
}

// reads and decodes key into v; missing keys map to ErrNotFound
func (s *Store) getJSON(op string, key []byte, v any) error {
	raw, closer, err := s.db.Get(key)
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		logger.Error("pebble_get_failed", "op", op, "key", string(key), "error", err)
		return apperr.Persistence(op, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Persistence(op, err)
	}
	return nil
}

func (s *Store) exists(op string, key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, apperr.Persistence(op, err)
	}
	closer.Close()
	return true, nil
}

func setJSON(b *pebble.Batch, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Set(key, raw, nil)
}

// commits the batch and counts it toward pending writes
func (s *Store) apply(op string, b *pebble.Batch) error {
	if err := s.db.Apply(b, s.wopts); err != nil {
		logger.Error("pebble_apply_batch_failed", "op", op, "error", err)
		return apperr.Persistence(op, err)
	}
	s.writes.Add(1)
	return nil
}

// visits every key under prefix in ascending order; fn returning false stops
func (s *Store) scan(prefix []byte, fn func(k, v []byte) bool) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

func isNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}
