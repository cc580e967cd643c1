package moderation

import (
	"context"
	"strings"

	"courier/pkg/apperr"
	"courier/pkg/events"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/presence"
	"courier/pkg/state/logger"
	"courier/pkg/telemetry"
)

type Store interface {
	SoftDeleteMessages(ctx context.Context, ids []string, check func([]models.Message) error) ([]models.Message, error)
	GetMessages(ctx context.Context, ids []string) ([]models.Message, error)
}

// Deliverer persists and routes one message, as the delivery pipeline does.
type Deliverer interface {
	Deliver(ctx context.Context, reply presence.Conn, draft models.Message) (models.Message, error)
}

type Broadcaster interface {
	Broadcast(event string, payload any, except string)
}

// Processor runs global deletes and forwards.
type Processor struct {
	store     Store
	deliverer Deliverer
	hub       Broadcaster
	locks     batchLocks
}

func New(s Store, d Deliverer, hub Broadcaster) *Processor {
	return &Processor{store: s, deliverer: d, hub: hub}
}

// Delete tombstones every message in ids on behalf of requesterID. The
// batch is rejected as a whole unless every id exists and was sent by the
// requester. On success every connected user receives messagesDeleted.
func (p *Processor) Delete(ctx context.Context, requesterID string, ids []string) ([]string, error) {
	const op = "moderation.delete"
	ids = normalizeIDs(ids)
	if len(ids) == 0 {
		return nil, apperr.Validation(op, "messageIds is required")
	}
	tr := telemetry.Track(op)
	defer tr.Finish()

	unlock := p.locks.lockAll(ids)
	defer unlock()

	_, err := p.store.SoftDeleteMessages(ctx, ids, func(found []models.Message) error {
		if len(found) != len(ids) {
			return apperr.Authorization(op, "messages not found or not owned")
		}
		for _, m := range found {
			if m.SenderID != requesterID {
				return apperr.Authorization(op, "messages not found or not owned")
			}
		}
		return nil
	})
	tr.Mark("persist")
	if err != nil {
		if apperr.Is(err, apperr.KindAuthorization) {
			logger.Warn("delete_rejected", "user_id", requesterID, "count", len(ids))
		} else {
			logger.Error("delete_failed", "user_id", requesterID, "error", err)
		}
		return nil, err
	}
	metrics.MessagesDeleted.Add(float64(len(ids)))
	logger.AuditInfo("messages_deleted", "user_id", requesterID, "message_ids", ids)
	p.hub.Broadcast(events.MessagesDeleted, events.MessagesDeletedNotice{MessageIDs: ids}, "")
	return ids, nil
}

// Forward copies each source message to each recipient as a new message
// from requesterID, recipients in the given order and sources oldest
// first. A pair that fails to persist is logged and skipped. Sources the
// requester is not part of, that were deleted, or that do not exist are
// not forwarded. The returned count is the number of copies created, so it
// is below len(messageIDs)*len(recipientIDs) whenever a source is skipped
// or a pair fails.
func (p *Processor) Forward(ctx context.Context, requesterID string, reply presence.Conn, messageIDs, recipientIDs []string) (int, error) {
	const op = "moderation.forward"
	messageIDs = normalizeIDs(messageIDs)
	recipientIDs = normalizeIDs(recipientIDs)
	if len(messageIDs) == 0 || len(recipientIDs) == 0 {
		return 0, apperr.Validation(op, "messageIds and recipientIds are required")
	}
	tr := telemetry.Track(op)
	defer tr.Finish()

	unlock := p.locks.lockAll(messageIDs)
	defer unlock()

	found, err := p.store.GetMessages(ctx, messageIDs)
	tr.Mark("load")
	if err != nil {
		logger.Error("forward_load_failed", "user_id", requesterID, "error", err)
		return 0, err
	}
	sources := found[:0]
	for _, m := range found {
		switch {
		case !m.Involves(requesterID):
			logger.Warn("forward_source_denied", "user_id", requesterID, "message_id", m.ID)
		case m.IsDeleted:
			logger.Debug("forward_source_deleted", "message_id", m.ID)
		default:
			sources = append(sources, m)
		}
	}

	created := 0
	for _, recipient := range recipientIDs {
		for _, src := range sources {
			draft := models.Message{
				SenderID:    requesterID,
				RecipientID: recipient,
				Type:        src.Type,
				Content:     src.Content,
				Caption:     src.Caption,
				IsForwarded: true,
			}
			if _, err := p.deliverer.Deliver(ctx, reply, draft); err != nil {
				metrics.MessagesForwarded.WithLabelValues("failed").Inc()
				logger.Warn("forward_pair_failed", "message_id", src.ID, "recipient_id", recipient, "error", err)
				continue
			}
			metrics.MessagesForwarded.WithLabelValues("created").Inc()
			created++
		}
	}
	tr.Mark("deliver")
	logger.Info("messages_forwarded", "user_id", requesterID, "sources", len(sources), "recipients", len(recipientIDs), "created", created)
	return created, nil
}

// trims, drops empties and removes duplicates keeping first occurrence
func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
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
