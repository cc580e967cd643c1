package session

import (
	"context"

	"courier/pkg/apperr"
	"courier/pkg/events"
	"courier/pkg/metrics"
	"courier/pkg/state/logger"
)

// handle processes one inbound frame in arrival order.
func (s *Session) handle(raw []byte) {
	f, err := events.Decode(raw)
	if err != nil {
		s.drop("malformed", "", err)
		return
	}
	switch s.State() {
	case StateUnauthenticated:
		if f.Event != events.Authenticate {
			// never act on an unauthenticated identity
			s.drop("unauthenticated", f.Event, nil)
			return
		}
		s.authenticate(f)
	case StateAuthenticated:
		if f.Event == events.Authenticate {
			s.drop("already_authenticated", f.Event, nil)
			return
		}
		if s.deps.Limiter != nil && !s.deps.Limiter.Allow(s.userID) {
			s.drop("rate_limited", f.Event, nil)
			return
		}
		s.dispatch(f)
	}
}

func (s *Session) authenticate(f events.Frame) {
	token, err := f.Token()
	var userID string
	if err == nil {
		userID, err = s.deps.Verifier.Verify(token)
	}
	if err != nil {
		logger.Warn("socket_auth_failed", "conn_id", s.id, "error", err)
		s.closeWith(ClosePolicyViolation, "authentication failed")
		return
	}

	s.userID = userID
	s.deps.Presence.Register(userID, s)
	if !s.state.CompareAndSwap(int32(StateUnauthenticated), int32(StateAuthenticated)) {
		// closed while registering
		ctx, cancel := context.WithTimeout(s.base, s.opts.StoreTimeout)
		defer cancel()
		s.deps.Presence.Unregister(ctx, userID, s)
		return
	}
	metrics.Sessions.WithLabelValues(StateUnauthenticated.String()).Dec()
	metrics.Sessions.WithLabelValues(StateAuthenticated.String()).Inc()
	logger.Info("socket_authenticated", "conn_id", s.id, "user_id", userID)
}

func (s *Session) dispatch(f events.Frame) {
	ctx, cancel := context.WithTimeout(s.base, s.opts.StoreTimeout)
	defer cancel()
	uid := s.userID

	var err error
	switch f.Event {
	case events.SendMessage:
		var p events.SendMessagePayload
		if err = f.Bind(&p); err == nil {
			_, err = s.deps.Delivery.Send(ctx, uid, s, p)
		}
	case events.MarkAsSeen:
		var p events.MarkAsSeenPayload
		if err = f.Bind(&p); err == nil {
			_, err = s.deps.Status.MarkAsSeen(ctx, uid, p.SenderID)
		}
	case events.StartTyping, events.StopTyping:
		var p events.TypingPayload
		if err = f.Bind(&p); err == nil {
			if f.Event == events.StartTyping {
				_, err = s.deps.Typing.Start(uid, p.RecipientID)
			} else {
				_, err = s.deps.Typing.Stop(uid, p.RecipientID)
			}
		}
	case events.DeleteMessages:
		var p events.DeleteMessagesPayload
		if err = f.Bind(&p); err == nil {
			_, err = s.deps.Moderation.Delete(ctx, uid, p.MessageIDs)
		}
	case events.ForwardMessages:
		var p events.ForwardMessagesPayload
		if err = f.Bind(&p); err == nil {
			_, err = s.deps.Moderation.Forward(ctx, uid, s, p.MessageIDs, p.RecipientIDs)
		}
	default:
		s.drop("unknown_event", f.Event, nil)
		return
	}
	if err == nil {
		return
	}
	switch apperr.KindOf(err) {
	case apperr.KindPersistence, apperr.KindAuthorization:
		// already logged and reported by the component
	default:
		s.drop("invalid", f.Event, err)
	}
}

func (s *Session) drop(reason, event string, err error) {
	metrics.DroppedEvents.WithLabelValues(reason).Inc()
	if err != nil {
		logger.Warn("event_dropped", "conn_id", s.id, "user_id", s.userID, "event", event, "reason", reason, "error", err)
		return
	}
	logger.Debug("event_dropped", "conn_id", s.id, "user_id", s.userID, "event", event, "reason", reason)
}
