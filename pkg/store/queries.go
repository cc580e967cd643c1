package store

import (
	"context"
	"errors"

	"courier/pkg/apperr"
	"courier/pkg/models"

	"github.com/cockroachdb/pebble"
)

// History returns the conversation between a and b oldest first, with
// participant summaries and the replied-to message resolved.
func (s *Store) History(ctx context.Context, a, b string) ([]models.HistoryEntry, error) {
	const op = "store.history"
	if err := s.guard(ctx, op); err != nil {
		return nil, err
	}
	var ids []string
	err := s.scan(conversationPrefix(a, b), func(_, v []byte) bool {
		ids = append(ids, string(v))
		return true
	})
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}

	users := make(map[string]models.UserSummary, 2)
	if err := s.summaries(op, users, a, b); err != nil {
		return nil, err
	}
	out := make([]models.HistoryEntry, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Persistence(op, err)
		}
		var m models.Message
		err := s.getJSON(op, messageKey(id), &m)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := s.summaries(op, users, m.SenderID, m.RecipientID); err != nil {
			return nil, err
		}
		entry := models.HistoryEntry{
			Message:   m,
			Sender:    users[m.SenderID],
			Recipient: users[m.RecipientID],
		}
		if m.RepliedToID != "" {
			var r models.Message
			err := s.getJSON(op, messageKey(m.RepliedToID), &r)
			switch {
			case err == nil:
				if err := s.summaries(op, users, r.SenderID); err != nil {
					return nil, err
				}
				entry.RepliedTo = &models.Quoted{Message: r, Sender: users[r.SenderID]}
			case !errors.Is(err, ErrNotFound):
				return nil, err
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// UnreadCounts returns, per sender, how many messages to userID are not yet SEEN.
func (s *Store) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	const op = "store.unread_counts"
	if err := s.guard(ctx, op); err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	err := s.scan(unseenPrefix(userID), func(k, _ []byte) bool {
		if _, sender, _, perr := parseUnseenKey(k); perr == nil {
			counts[sender]++
		}
		return true
	})
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	return counts, nil
}

// LastMessage returns the newest message between a and b, or nil.
func (s *Store) LastMessage(ctx context.Context, a, b string) (*models.Message, error) {
	const op = "store.last_message"
	if err := s.guard(ctx, op); err != nil {
		return nil, err
	}
	prefix := conversationPrefix(a, b)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	defer iter.Close()
	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, apperr.Persistence(op, err)
		}
		return nil, nil
	}
	id := string(iter.Value())
	var m models.Message
	if err := s.getJSON(op, messageKey(id), &m); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
