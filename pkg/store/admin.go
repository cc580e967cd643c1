package store

import (
	"context"

	"courier/pkg/apperr"

	"github.com/cockroachdb/pebble"
)

// Stats is a point-in-time summary for the admin surface.
type Stats struct {
	Users         int    `json:"users"`
	Messages      int    `json:"messages"`
	Unseen        int    `json:"unseen"`
	DiskBytes     uint64 `json:"diskBytes"`
	Compactions   int64  `json:"compactions"`
	Flushes       int64  `json:"flushes"`
	PendingWrites uint64 `json:"pendingWrites"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	const op = "store.stats"
	if err := s.guard(ctx, op); err != nil {
		return Stats{}, err
	}
	var st Stats
	count := func(prefix string, n *int) error {
		return s.scan([]byte(prefix), func(_, _ []byte) bool {
			*n++
			return true
		})
	}
	if err := count(userPrefix, &st.Users); err != nil {
		return Stats{}, apperr.Persistence(op, err)
	}
	if err := count(messagePrefix, &st.Messages); err != nil {
		return Stats{}, apperr.Persistence(op, err)
	}
	if err := count("q:", &st.Unseen); err != nil {
		return Stats{}, apperr.Persistence(op, err)
	}
	m := s.db.Metrics()
	st.DiskBytes = m.DiskSpaceUsage()
	st.Compactions = m.Compact.Count
	st.Flushes = m.Flush.Count
	st.PendingWrites = s.writes.Load()
	return st, nil
}

// Flush persists memtables and resets the pending write counter.
func (s *Store) Flush(ctx context.Context) error {
	const op = "store.flush"
	if err := s.guard(ctx, op); err != nil {
		return err
	}
	if err := s.db.Flush(); err != nil {
		return apperr.Persistence(op, err)
	}
	s.writes.Store(0)
	return nil
}

// Compact runs a manual compaction over the full key range.
func (s *Store) Compact(ctx context.Context) error {
	const op = "store.compact"
	if err := s.guard(ctx, op); err != nil {
		return err
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return apperr.Persistence(op, err)
	}
	var first, last []byte
	if iter.First() {
		first = append([]byte(nil), iter.Key()...)
	}
	if iter.Last() {
		last = append([]byte(nil), iter.Key()...)
	}
	if err := iter.Close(); err != nil {
		return apperr.Persistence(op, err)
	}
	if first == nil || last == nil {
		return nil
	}
	if err := s.db.Compact(first, append(last, 0x00), true); err != nil {
		return apperr.Persistence(op, err)
	}
	return nil
}
