package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"courier/pkg/apperr"
	"courier/pkg/models"

	"github.com/google/uuid"
)

var usernameRegexp = regexp.MustCompile(`^[a-z0-9_]{3,32}$`)

// NormalizeUsername lowercases and validates a username.
func NormalizeUsername(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if !usernameRegexp.MatchString(n) {
		return "", apperr.Validation("username", "username must be 3-32 characters of letters, digits or underscore")
	}
	return n, nil
}

// CreateUser stores a new user. An empty ID is generated.
func (s *Store) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	const op = "store.create_user"
	if err := s.guard(ctx, op); err != nil {
		return models.User{}, err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if err := ValidateID(u.ID); err != nil {
		return models.User{}, apperr.Validation(op, err.Error())
	}
	name, err := NormalizeUsername(u.Username)
	if err != nil {
		return models.User{}, err
	}
	u.Username = name
	u.LastSeen = nil
	u.CreatedAt = s.clock.Now().UTC()

	s.userMu.Lock()
	defer s.userMu.Unlock()
	if ok, err := s.exists(op, userKey(u.ID)); err != nil {
		return models.User{}, err
	} else if ok {
		return models.User{}, ErrConflict
	}
	if ok, err := s.exists(op, usernameKey(name)); err != nil {
		return models.User{}, err
	} else if ok {
		return models.User{}, apperr.Conflict(op, "username taken")
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, userKey(u.ID), u); err != nil {
		return models.User{}, apperr.Persistence(op, err)
	}
	if err := b.Set(usernameKey(name), []byte(u.ID), nil); err != nil {
		return models.User{}, apperr.Persistence(op, err)
	}
	if err := s.apply(op, b); err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	const op = "store.get_user"
	if err := s.guard(ctx, op); err != nil {
		return models.User{}, err
	}
	var u models.User
	if err := s.getJSON(op, userKey(id), &u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// ListUsers returns every user ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	const op = "store.list_users"
	if err := s.guard(ctx, op); err != nil {
		return nil, err
	}
	var out []models.User
	var decodeErr error
	err := s.scan([]byte(userPrefix), func(_, v []byte) bool {
		var u models.User
		if decodeErr = json.Unmarshal(v, &u); decodeErr != nil {
			return false
		}
		out = append(out, u)
		return true
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// FindUsersByUsername resolves usernames case-insensitively; unknown names are skipped.
func (s *Store) FindUsersByUsername(ctx context.Context, names []string) ([]models.User, error) {
	const op = "store.find_users"
	if err := s.guard(ctx, op); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(names))
	var out []models.User
	for _, name := range names {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		id, err := s.lookupUsername(op, n)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var u models.User
		if err := s.getJSON(op, userKey(id), &u); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *Store) lookupUsername(op, name string) (string, error) {
	raw, closer, err := s.db.Get(usernameKey(name))
	if err != nil {
		if isNotFound(err) {
			return "", ErrNotFound
		}
		return "", apperr.Persistence(op, err)
	}
	defer closer.Close()
	return string(raw), nil
}

// UpdateProfile applies the non-nil fields of upd. Taking another user's
// username fails with a conflict.
func (s *Store) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (models.User, error) {
	const op = "store.update_profile"
	if err := s.guard(ctx, op); err != nil {
		return models.User{}, err
	}
	s.userMu.Lock()
	defer s.userMu.Unlock()

	var u models.User
	if err := s.getJSON(op, userKey(id), &u); err != nil {
		return models.User{}, err
	}
	b := s.db.NewBatch()
	defer b.Close()

	if upd.Username != nil {
		name, err := NormalizeUsername(*upd.Username)
		if err != nil {
			return models.User{}, err
		}
		if name != u.Username {
			owner, err := s.lookupUsername(op, name)
			switch {
			case err == nil && owner != id:
				return models.User{}, apperr.Conflict(op, "username taken")
			case err != nil && !errors.Is(err, ErrNotFound):
				return models.User{}, err
			}
			if err := b.Delete(usernameKey(u.Username), nil); err != nil {
				return models.User{}, apperr.Persistence(op, err)
			}
			if err := b.Set(usernameKey(name), []byte(id), nil); err != nil {
				return models.User{}, apperr.Persistence(op, err)
			}
			u.Username = name
		}
	}
	if upd.ProfilePictureURL != nil {
		u.ProfilePictureURL = strings.TrimSpace(*upd.ProfilePictureURL)
	}
	if err := setJSON(b, userKey(id), u); err != nil {
		return models.User{}, apperr.Persistence(op, err)
	}
	if err := s.apply(op, b); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// SetLastSeen records when the user last disconnected.
func (s *Store) SetLastSeen(ctx context.Context, id string, at time.Time) error {
	const op = "store.set_last_seen"
	if err := s.guard(ctx, op); err != nil {
		return err
	}
	s.userMu.Lock()
	defer s.userMu.Unlock()

	var u models.User
	if err := s.getJSON(op, userKey(id), &u); err != nil {
		return err
	}
	at = at.UTC()
	u.LastSeen = &at
	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, userKey(id), u); err != nil {
		return apperr.Persistence(op, err)
	}
	return s.apply(op, b)
}

// loads summaries for ids, memoised in cache; unknown ids keep only their id
func (s *Store) summaries(op string, cache map[string]models.UserSummary, ids ...string) error {
	for _, id := range ids {
		if _, ok := cache[id]; ok {
			continue
		}
		var u models.User
		err := s.getJSON(op, userKey(id), &u)
		switch {
		case err == nil:
			cache[id] = u.Summary()
		case errors.Is(err, ErrNotFound):
			cache[id] = models.UserSummary{ID: id}
		default:
			return err
		}
	}
	return nil
}
