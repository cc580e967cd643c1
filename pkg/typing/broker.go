package typing

import (
	"strings"

	"courier/pkg/apperr"
	"courier/pkg/events"
	"courier/pkg/presence"
	"courier/pkg/state/logger"
)

type Directory interface {
	Lookup(userID string) (presence.Conn, bool)
}

// Broker relays typing indicators to online recipients. Nothing is stored
// or queued; an offline recipient simply misses the indicator.
type Broker struct {
	dir Directory
}

func New(dir Directory) *Broker {
	return &Broker{dir: dir}
}

// Start forwards typing from senderID. It reports whether the recipient was reached.
func (b *Broker) Start(senderID, recipientID string) (bool, error) {
	return b.relay(events.Typing, senderID, recipientID)
}

// Stop forwards stopTyping from senderID.
func (b *Broker) Stop(senderID, recipientID string) (bool, error) {
	return b.relay(events.TypingStopped, senderID, recipientID)
}

func (b *Broker) relay(event, senderID, recipientID string) (bool, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return false, apperr.Validation("typing."+event, "recipientId is required")
	}
	conn, ok := b.dir.Lookup(recipientID)
	if !ok {
		return false, nil
	}
	if err := conn.Push(event, events.TypingNotice{SenderID: senderID}); err != nil {
		logger.Debug("push_failed", "event", event, "conn_id", conn.ID(), "error", err)
		return false, nil
	}
	return true, nil
}
