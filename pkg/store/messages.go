package store

import (
	"context"
	"errors"
	"sort"

	"courier/pkg/apperr"
	"courier/pkg/models"

	"github.com/google/uuid"
)

// CreateMessage persists draft as a new SENT message. ID, status and
// createdAt are assigned here.
func (s *Store) CreateMessage(ctx context.Context, draft models.Message) (models.Message, error) {
	const op = "store.create_message"
	if err := s.guard(ctx, op); err != nil {
		return models.Message{}, err
	}
	if err := ValidateID(draft.SenderID); err != nil {
		return models.Message{}, apperr.Validation(op, "invalid senderId")
	}
	if err := ValidateID(draft.RecipientID); err != nil {
		return models.Message{}, apperr.Validation(op, "invalid recipientId")
	}
	m := draft
	if m.Type == "" {
		m.Type = models.TypeText
	}
	m.ID = uuid.NewString()
	m.Status = models.StatusSent
	m.IsDeleted = false
	m.CreatedAt = s.nextTimestamp()

	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, messageKey(m.ID), m); err != nil {
		return models.Message{}, apperr.Persistence(op, err)
	}
	ck := conversationKey(m.SenderID, m.RecipientID, m.CreatedAt.UnixNano(), m.ID)
	if err := b.Set(ck, []byte(m.ID), nil); err != nil {
		return models.Message{}, apperr.Persistence(op, err)
	}
	if err := b.Set(unseenKey(m.RecipientID, m.SenderID, m.ID), nil, nil); err != nil {
		return models.Message{}, apperr.Persistence(op, err)
	}
	if err := s.apply(op, b); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (models.Message, error) {
	const op = "store.get_message"
	if err := s.guard(ctx, op); err != nil {
		return models.Message{}, err
	}
	var m models.Message
	if err := s.getJSON(op, messageKey(id), &m); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// GetMessages loads the given ids in chronological order. Unknown ids are skipped.
func (s *Store) GetMessages(ctx context.Context, ids []string) ([]models.Message, error) {
	const op = "store.get_messages"
	if err := s.guard(ctx, op); err != nil {
		return nil, err
	}
	out, err := s.loadMessages(op, dedupe(ids))
	if err != nil {
		return nil, err
	}
	sortChronological(out)
	return out, nil
}

// AdvanceStatus moves a message to next if that is a forward step.
// It reports whether the stored status changed.
func (s *Store) AdvanceStatus(ctx context.Context, id string, next models.MessageStatus) (models.Message, bool, error) {
	const op = "store.advance_status"
	if err := s.guard(ctx, op); err != nil {
		return models.Message{}, false, err
	}
	unlock := s.locks.lock(id)
	defer unlock()

	var m models.Message
	if err := s.getJSON(op, messageKey(id), &m); err != nil {
		return models.Message{}, false, err
	}
	if !m.Status.CanAdvanceTo(next) {
		return m, false, nil
	}
	m.Status = next
	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, messageKey(id), m); err != nil {
		return models.Message{}, false, apperr.Persistence(op, err)
	}
	if next == models.StatusSeen {
		if err := b.Delete(unseenKey(m.RecipientID, m.SenderID, m.ID), nil); err != nil {
			return models.Message{}, false, apperr.Persistence(op, err)
		}
	}
	if err := s.apply(op, b); err != nil {
		return models.Message{}, false, err
	}
	return m, true, nil
}

// MarkSeen marks every message sent by sender to viewer that is not yet
// SEEN as SEEN in one batch and returns how many changed.
func (s *Store) MarkSeen(ctx context.Context, viewer, sender string) (int, error) {
	const op = "store.mark_seen"
	if err := s.guard(ctx, op); err != nil {
		return 0, err
	}
	var ids []string
	err := s.scan(unseenPairPrefix(viewer, sender), func(k, _ []byte) bool {
		if _, _, id, perr := parseUnseenKey(k); perr == nil {
			ids = append(ids, id)
		}
		return true
	})
	if err != nil {
		return 0, apperr.Persistence(op, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	unlock := s.locks.lockAll(ids)
	defer unlock()

	b := s.db.NewBatch()
	defer b.Close()
	changed := 0
	for _, id := range ids {
		var m models.Message
		err := s.getJSON(op, messageKey(id), &m)
		if errors.Is(err, ErrNotFound) {
			_ = b.Delete(unseenKey(viewer, sender, id), nil)
			continue
		}
		if err != nil {
			return 0, err
		}
		if m.Status.CanAdvanceTo(models.StatusSeen) {
			m.Status = models.StatusSeen
			if err := setJSON(b, messageKey(id), m); err != nil {
				return 0, apperr.Persistence(op, err)
			}
			changed++
		}
		if err := b.Delete(unseenKey(viewer, sender, id), nil); err != nil {
			return 0, apperr.Persistence(op, err)
		}
	}
	if err := s.apply(op, b); err != nil {
		return 0, err
	}
	return changed, nil
}

// SoftDeleteMessages tombstones ids after check approves the loaded set.
// check sees every message that exists, so an ownership failure aborts
// the whole batch before anything is written. Returns the tombstoned
// messages in chronological order.
func (s *Store) SoftDeleteMessages(ctx context.Context, ids []string, check func([]models.Message) error) ([]models.Message, error) {
	const op = "store.soft_delete"
	if err := s.guard(ctx, op); err != nil {
		return nil, err
	}
	ids = dedupe(ids)
	unlock := s.locks.lockAll(ids)
	defer unlock()

	found, err := s.loadMessages(op, ids)
	if err != nil {
		return nil, err
	}
	if check != nil {
		if err := check(found); err != nil {
			return nil, err
		}
	}
	b := s.db.NewBatch()
	defer b.Close()
	out := make([]models.Message, 0, len(found))
	for _, m := range found {
		t := m.Tombstone()
		if !m.IsDeleted {
			if err := setJSON(b, messageKey(m.ID), t); err != nil {
				return nil, apperr.Persistence(op, err)
			}
		}
		out = append(out, t)
	}
	if err := s.apply(op, b); err != nil {
		return nil, err
	}
	sortChronological(out)
	return out, nil
}

func (s *Store) loadMessages(op string, ids []string) ([]models.Message, error) {
	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		var m models.Message
		err := s.getJSON(op, messageKey(id), &m)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func sortChronological(ms []models.Message) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].ID < ms[j].ID
		}
		return ms[i].CreatedAt.Before(ms[j].CreatedAt)
	})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
