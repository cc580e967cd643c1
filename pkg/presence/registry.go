package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"courier/pkg/events"
	"courier/pkg/metrics"
	"courier/pkg/state/logger"
	"courier/pkg/timeutil"
)

// Conn is a live connection that can receive pushed events. Push must
// not block.
type Conn interface {
	ID() string
	Push(event string, payload any) error
}

// LastSeenStore persists the time a user went offline.
type LastSeenStore interface {
	SetLastSeen(ctx context.Context, userID string, at time.Time) error
}

type entry struct {
	conn  Conn
	since time.Time
}

// Registry maps each online user to its single live connection.
type Registry struct {
	mu      sync.Mutex
	entries map[string]entry
	store   LastSeenStore
	clock   timeutil.Clock
}

// New builds an empty registry. clock may be nil.
func New(store LastSeenStore, clock timeutil.Clock) *Registry {
	if clock == nil {
		clock = timeutil.System
	}
	return &Registry{entries: make(map[string]entry), store: store, clock: clock}
}

// Register records conn as the connection for userID, replacing any
// previous one, and tells every other online user.
func (r *Registry) Register(userID string, conn Conn) {
	r.mu.Lock()
	r.entries[userID] = entry{conn: conn, since: r.clock.Now()}
	n := len(r.entries)
	peers := r.peersLocked(userID)
	r.mu.Unlock()

	metrics.OnlineUsers.Set(float64(n))
	logger.Debug("presence_registered", "user_id", userID, "conn_id", conn.ID())
	push(peers, events.UserOnline, userID)
}

// Unregister removes userID only if conn still owns the entry. On success
// it records lastSeen (best effort) and broadcasts user_offline.
func (r *Registry) Unregister(ctx context.Context, userID string, conn Conn) bool {
	r.mu.Lock()
	e, ok := r.entries[userID]
	if !ok || e.conn.ID() != conn.ID() {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, userID)
	n := len(r.entries)
	peers := r.peersLocked("")
	r.mu.Unlock()
	metrics.OnlineUsers.Set(float64(n))

	// lastSeen must land after the registration it closes
	at := r.clock.Now().UTC()
	if !at.After(e.since) {
		at = e.since.Add(time.Millisecond)
	}
	if r.store != nil {
		if err := r.store.SetLastSeen(ctx, userID, at); err != nil {
			logger.Warn("presence_last_seen_persist_failed", "user_id", userID, "error", err)
		}
	}
	logger.Debug("presence_unregistered", "user_id", userID, "conn_id", conn.ID(), "last_seen", at)
	push(peers, events.UserOffline, events.UserOfflineNotice{UserID: userID, LastSeen: at})
	return true
}

// Lookup returns the live connection for userID.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Online returns the ids of every registered user, sorted.
func (r *Registry) Online() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Broadcast pushes to every registered connection except the one owned by except.
func (r *Registry) Broadcast(event string, payload any, except string) {
	r.mu.Lock()
	peers := r.peersLocked(except)
	r.mu.Unlock()
	push(peers, event, payload)
}

func (r *Registry) peersLocked(except string) []Conn {
	out := make([]Conn, 0, len(r.entries))
	for id, e := range r.entries {
		if id == except {
			continue
		}
		out = append(out, e.conn)
	}
	return out
}

func push(conns []Conn, event string, payload any) {
	for _, c := range conns {
		if err := c.Push(event, payload); err != nil {
			logger.Debug("presence_push_failed", "event", event, "conn_id", c.ID(), "error", err)
		}
	}
}
