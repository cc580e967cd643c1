package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"courier/pkg/events"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/outbox"
	"courier/pkg/presence"
	"courier/pkg/state/logger"

	"github.com/google/uuid"
)

// close codes from RFC 6455
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
	CloseTryAgainLater   = 1013
)

type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "closed"
	}
}

// Socket is the framed transport under a session. ReadMessage and
// WriteMessage each have a single caller goroutine. WritePing, WriteClose
// and Close may be called from any goroutine.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	WritePing() error
	WriteClose(code int, reason string) error
	Close() error
}

type TokenVerifier interface {
	Verify(token string) (string, error)
}

type Registry interface {
	Register(userID string, conn presence.Conn)
	Unregister(ctx context.Context, userID string, conn presence.Conn) bool
}

type Sender interface {
	Send(ctx context.Context, senderID string, reply presence.Conn, in events.SendMessagePayload) (models.Message, error)
}

type SeenMarker interface {
	MarkAsSeen(ctx context.Context, viewerID, counterpartID string) (int, error)
}

type TypingRelay interface {
	Start(senderID, recipientID string) (bool, error)
	Stop(senderID, recipientID string) (bool, error)
}

type Moderator interface {
	Delete(ctx context.Context, requesterID string, ids []string) ([]string, error)
	Forward(ctx context.Context, requesterID string, reply presence.Conn, messageIDs, recipientIDs []string) (int, error)
}

// EventLimiter throttles inbound events per user.
type EventLimiter interface {
	Allow(key string) bool
	Forget(key string)
}

// Deps are the engine components a session dispatches to.
type Deps struct {
	Verifier   TokenVerifier
	Presence   Registry
	Delivery   Sender
	Status     SeenMarker
	Typing     TypingRelay
	Moderation Moderator
	Limiter    EventLimiter
}

type Options struct {
	OutboxCapacity int
	PingInterval   time.Duration
	// StoreTimeout bounds each handler's persistence work.
	StoreTimeout time.Duration
}

// Session is one client connection moving through
// UNAUTHENTICATED -> AUTHENTICATED -> CLOSED.
type Session struct {
	id   string
	sock Socket
	deps Deps
	opts Options
	out  *outbox.Queue

	state  atomic.Int32
	userID string

	base      context.Context
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(sock Socket, deps Deps, opts Options) *Session {
	if opts.OutboxCapacity <= 0 {
		opts.OutboxCapacity = 256
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	s := &Session{
		id:   uuid.NewString(),
		sock: sock,
		deps: deps,
		opts: opts,
		out:  outbox.New(opts.OutboxCapacity),
		base: context.Background(),
		done: make(chan struct{}),
	}
	metrics.Sessions.WithLabelValues(StateUnauthenticated.String()).Inc()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

// UserID is empty until the session authenticates.
func (s *Session) UserID() string {
	if s.State() == StateUnauthenticated {
		return ""
	}
	return s.userID
}

// Push queues an outbound event without blocking. A full outbox means
// the client cannot keep up; the connection is closed.
func (s *Session) Push(event string, payload any) error {
	err := s.out.Enqueue(event, payload)
	if errors.Is(err, outbox.ErrQueueFull) {
		metrics.OutboxOverflows.Inc()
		logger.Warn("session_outbox_full", "conn_id", s.id, "user_id", s.UserID(), "event", event)
		go s.closeWith(CloseTryAgainLater, "client too slow")
	}
	return err
}

// Run serves the connection until the peer disconnects or ctx ends.
// Values of ctx are inherited by handlers but its cancellation is not,
// so persistence started before a disconnect completes.
func (s *Session) Run(ctx context.Context) {
	s.base = context.WithoutCancel(ctx)

	s.wg.Add(2)
	go s.writeLoop()
	go s.pingLoop()

	stop := context.AfterFunc(ctx, func() { s.closeWith(CloseNormal, "server shutting down") })
	defer stop()

	s.readLoop()
	s.closeWith(0, "")
	s.wg.Wait()
}

// Close ends the session; safe from any goroutine.
func (s *Session) Close() {
	s.closeWith(CloseNormal, "")
}

func (s *Session) readLoop() {
	for {
		raw, err := s.sock.ReadMessage()
		if err != nil {
			if s.State() != StateClosed {
				logger.Debug("session_read_ended", "conn_id", s.id, "error", err)
			}
			return
		}
		s.handle(raw)
		if s.State() == StateClosed {
			return
		}
	}
}

func (s *Session) writeLoop() {
	defer s.wg.Done()
	err := s.out.RunWorker(s.done, func(it *outbox.Item) error {
		return s.sock.WriteMessage(it.Bytes())
	})
	if err != nil {
		logger.Debug("session_write_failed", "conn_id", s.id, "error", err)
		go s.closeWith(0, "")
	}
}

func (s *Session) pingLoop() {
	defer s.wg.Done()
	if s.opts.PingInterval <= 0 {
		<-s.done
		return
	}
	t := time.NewTicker(s.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := s.sock.WritePing(); err != nil {
				logger.Debug("session_ping_failed", "conn_id", s.id, "error", err)
				go s.closeWith(0, "")
				return
			}
		case <-s.done:
			return
		}
	}
}

// closeWith moves to CLOSED once. code 0 skips the close frame.
func (s *Session) closeWith(code int, reason string) {
	s.closeOnce.Do(func() {
		prev := State(s.state.Swap(int32(StateClosed)))
		metrics.Sessions.WithLabelValues(prev.String()).Dec()
		close(s.done)
		s.out.Close()
		if code != 0 {
			_ = s.sock.WriteClose(code, reason)
		}
		_ = s.sock.Close()

		// userID is only published once the session reached AUTHENTICATED
		var uid string
		if prev == StateAuthenticated {
			uid = s.userID
			s.release()
		}
		logger.Debug("session_closed", "conn_id", s.id, "user_id", uid, "prev_state", prev.String(), "code", code)
	})
}

// drops the presence entry and rate bucket held by an authenticated session
func (s *Session) release() {
	ctx, cancel := context.WithTimeout(s.base, s.opts.StoreTimeout)
	defer cancel()
	s.deps.Presence.Unregister(ctx, s.userID, s)
	if s.deps.Limiter != nil {
		s.deps.Limiter.Forget(s.userID)
	}
}
