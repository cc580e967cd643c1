package delivery

import (
	"context"
	"errors"
	"strings"

	"courier/pkg/apperr"
	"courier/pkg/events"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/presence"
	"courier/pkg/state/logger"
	"courier/pkg/store"
	"courier/pkg/telemetry"
)

// sendFailedMessage is what clients see in messageError; details stay in logs.
const sendFailedMessage = "Failed to send message"

// Store is the slice of the persistence gateway the pipeline needs.
type Store interface {
	CreateMessage(ctx context.Context, draft models.Message) (models.Message, error)
	GetMessage(ctx context.Context, id string) (models.Message, error)
	AdvanceStatus(ctx context.Context, id string, next models.MessageStatus) (models.Message, bool, error)
}

// Directory resolves live connections.
type Directory interface {
	Lookup(userID string) (presence.Conn, bool)
}

// Pipeline persists outgoing messages and routes them to online recipients.
type Pipeline struct {
	store Store
	dir   Directory
}

func New(s Store, dir Directory) *Pipeline {
	return &Pipeline{store: s, dir: dir}
}

// Send validates an inbound sendMessage from senderID and delivers it.
// Validation failures are returned without any push; persistence failures
// are reported to reply as messageError.
func (p *Pipeline) Send(ctx context.Context, senderID string, reply presence.Conn, in events.SendMessagePayload) (models.Message, error) {
	draft, err := p.draft(ctx, senderID, in)
	if err != nil {
		if apperr.Is(err, apperr.KindPersistence) {
			p.reportFailure(reply, in, err)
		}
		return models.Message{}, err
	}
	m, err := p.Deliver(ctx, reply, draft)
	if err != nil {
		if apperr.Is(err, apperr.KindPersistence) {
			p.reportFailure(reply, in, err)
		}
		return models.Message{}, err
	}
	return m, nil
}

// Deliver persists draft, acknowledges it to reply with messageSent and,
// if the recipient is online, marks it DELIVERED and pushes it there.
func (p *Pipeline) Deliver(ctx context.Context, reply presence.Conn, draft models.Message) (models.Message, error) {
	tr := telemetry.Track("delivery.send")
	defer tr.Finish()

	m, err := p.store.CreateMessage(ctx, draft)
	tr.Mark("persist")
	if err != nil {
		if !apperr.Is(err, apperr.KindPersistence) {
			logger.Warn("message_rejected", "sender_id", draft.SenderID, "recipient_id", draft.RecipientID, "error", err)
			return models.Message{}, err
		}
		metrics.SendFailures.Inc()
		logger.Error("message_persist_failed", "sender_id", draft.SenderID, "recipient_id", draft.RecipientID, "error", err)
		return models.Message{}, err
	}
	pushTo(reply, events.MessageSent, m)

	conn, online := p.dir.Lookup(m.RecipientID)
	if !online {
		metrics.MessagesRouted.WithLabelValues(metrics.RouteOffline).Inc()
		logger.Debug("message_pending", "message_id", m.ID, "recipient_id", m.RecipientID)
		return m, nil
	}
	metrics.MessagesRouted.WithLabelValues(metrics.RouteOnline).Inc()

	delivered, changed, err := p.store.AdvanceStatus(ctx, m.ID, models.StatusDelivered)
	tr.Mark("advance")
	if err != nil {
		// the message is durable as SENT; the recipient still gets it now
		logger.Warn("message_deliver_status_failed", "message_id", m.ID, "error", err)
		pushTo(conn, events.ReceiveMessage, m)
		return m, nil
	}
	pushTo(conn, events.ReceiveMessage, delivered)
	if changed {
		metrics.StatusTransitions.WithLabelValues(models.StatusDelivered.String()).Inc()
		pushTo(reply, events.MessageStatusUpdated, events.StatusUpdate{MessageID: m.ID, Status: models.StatusDelivered})
	}
	return delivered, nil
}

func (p *Pipeline) draft(ctx context.Context, senderID string, in events.SendMessagePayload) (models.Message, error) {
	const op = "delivery.send"
	recipient := strings.TrimSpace(in.RecipientID)
	if recipient == "" {
		return models.Message{}, apperr.Validation(op, "recipientId is required")
	}
	if err := store.ValidateID(recipient); err != nil {
		return models.Message{}, apperr.Wrap(apperr.KindValidation, op, "invalid recipientId", err)
	}
	if in.Content == "" {
		return models.Message{}, apperr.Validation(op, "content is required")
	}
	typ, err := models.ParseMessageType(in.Type)
	if err != nil {
		return models.Message{}, apperr.Wrap(apperr.KindValidation, op, "invalid type", err)
	}
	m := models.Message{
		SenderID:    senderID,
		RecipientID: recipient,
		Type:        typ,
		Content:     in.Content,
	}
	if typ == models.TypeImage {
		m.Caption = in.Caption
	}
	if in.RepliedToID != "" {
		parent, err := p.store.GetMessage(ctx, in.RepliedToID)
		if errors.Is(err, store.ErrNotFound) {
			return models.Message{}, apperr.Validation(op, "repliedToId does not exist")
		}
		if err != nil {
			return models.Message{}, err
		}
		if !sameConversation(parent, senderID, recipient) {
			return models.Message{}, apperr.Validation(op, "repliedToId belongs to another conversation")
		}
		m.RepliedToID = parent.ID
	}
	return m, nil
}

func sameConversation(m models.Message, a, b string) bool {
	return (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a)
}

func (p *Pipeline) reportFailure(reply presence.Conn, in events.SendMessagePayload, err error) {
	logger.Warn("message_send_failed", "recipient_id", in.RecipientID, "error", err)
	pushTo(reply, events.MessageError, events.SendError{Error: sendFailedMessage, OriginalMessage: in})
}

func pushTo(c presence.Conn, event string, payload any) {
	if c == nil {
		return
	}
	if err := c.Push(event, payload); err != nil {
		logger.Debug("push_failed", "event", event, "conn_id", c.ID(), "error", err)
	}
}
