package store

import (
	"context"
	"fmt"
	"strconv"

	"courier/pkg/apperr"
	"courier/pkg/state/logger"
)

const (
	schemaVersionKey    = "sys:schema"
	schemaInProgressKey = "sys:migration_in_progress"

	// SchemaVersion is the on-disk layout this build reads and writes.
	SchemaVersion = 1
)

// migrations upgrade the layout from version n-1 to n. Each must be
// idempotent: an interrupted run is replayed from the start.
var migrations = map[int]func(ctx context.Context, s *Store) error{
	1: func(context.Context, *Store) error { return nil },
}

// Migrate brings the database to SchemaVersion and reports whether any
// step ran. A database written by a newer build is refused.
func (s *Store) Migrate(ctx context.Context) (bool, error) {
	const op = "store.migrate"
	if err := s.guard(ctx, op); err != nil {
		return false, err
	}
	stored, err := s.schemaVersion()
	if err != nil {
		return false, apperr.Persistence(op, err)
	}
	if stored > SchemaVersion {
		return false, apperr.Persistence(op, fmt.Errorf("database schema %d is newer than supported %d", stored, SchemaVersion))
	}
	interrupted, err := s.exists(op, []byte(schemaInProgressKey))
	if err != nil {
		return false, err
	}
	if interrupted {
		logger.Warn("migration_resumed", "from", stored, "to", SchemaVersion)
	} else if stored == SchemaVersion {
		return false, nil
	}

	for v := stored + 1; v <= SchemaVersion; v++ {
		if err := s.setRaw(op, schemaInProgressKey, strconv.Itoa(v)); err != nil {
			return true, err
		}
		logger.Info("migration_start", "from", v-1, "to", v)
		if err := migrations[v](ctx, s); err != nil {
			logger.Error("migration_failed", "to", v, "error", err)
			return true, apperr.Persistence(op, err)
		}
		if err := s.setRaw(op, schemaVersionKey, strconv.Itoa(v)); err != nil {
			return true, err
		}
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete([]byte(schemaInProgressKey), nil); err != nil {
		return true, apperr.Persistence(op, err)
	}
	if err := s.apply(op, b); err != nil {
		return true, err
	}
	logger.Info("migration_done", "version", SchemaVersion)
	return true, nil
}

// returns 0 for a fresh database
func (s *Store) schemaVersion() (int, error) {
	raw, closer, err := s.db.Get([]byte(schemaVersionKey))
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	defer closer.Close()
	v, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("corrupt schema version %q", raw)
	}
	return v, nil
}

func (s *Store) setRaw(op, key, value string) error {
	if err := s.db.Set([]byte(key), []byte(value), s.wopts); err != nil {
		logger.Error("pebble_set_failed", "op", op, "key", key, "error", err)
		return apperr.Persistence(op, err)
	}
	return nil
}

