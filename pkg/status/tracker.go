package status

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
	MarkSeen(ctx context.Context, viewer, sender string) (int, error)
}

type Directory interface {
	Lookup(userID string) (presence.Conn, bool)
}

// Tracker advances messages to SEEN and tells the original sender.
type Tracker struct {
	store Store
	dir   Directory
}

func New(s Store, dir Directory) *Tracker {
	return &Tracker{store: s, dir: dir}
}

// MarkAsSeen marks everything counterpartID sent to viewerID as SEEN. When
// anything changed and the counterpart is online it receives messagesSeen.
// Returns the number of messages that changed.
func (t *Tracker) MarkAsSeen(ctx context.Context, viewerID, counterpartID string) (int, error) {
	counterpartID = strings.TrimSpace(counterpartID)
	if counterpartID == "" {
		return 0, apperr.Validation("status.mark_seen", "senderId is required")
	}
	tr := telemetry.Track("status.mark_seen")
	defer tr.Finish()

	n, err := t.store.MarkSeen(ctx, viewerID, counterpartID)
	tr.Mark("persist")
	if err != nil {
		logger.Error("mark_seen_failed", "viewer_id", viewerID, "sender_id", counterpartID, "error", err)
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	metrics.StatusTransitions.WithLabelValues(models.StatusSeen.String()).Add(float64(n))
	if conn, ok := t.dir.Lookup(counterpartID); ok {
		if err := conn.Push(events.MessagesSeen, events.MessagesSeenNotice{RecipientID: viewerID}); err != nil {
			logger.Debug("push_failed", "event", events.MessagesSeen, "conn_id", conn.ID(), "error", err)
		}
	}
	return n, nil
}
