package presence

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"courier/pkg/events"
	"courier/pkg/presence/presencetest"
	"courier/pkg/timeutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLastSeen struct {
	mu   sync.Mutex
	seen map[string]time.Time
	err  error
}

func (f *fakeLastSeen) SetLastSeen(_ context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.seen == nil {
		f.seen = map[string]time.Time{}
	}
	f.seen[userID] = at
	return nil
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRegisterBroadcastsToOthers(t *testing.T) {
	r := New(&fakeLastSeen{}, timeutil.NewFixed(t0))
	a := presencetest.NewConn("ca")
	b := presencetest.NewConn("cb")

	r.Register("alice", a)
	assert.Empty(t, a.Events())

	r.Register("bob", b)
	require.Equal(t, []string{events.UserOnline}, a.Names())
	p, _ := a.Last()
	assert.Equal(t, "bob", p.Payload)
	assert.Empty(t, b.Events())

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "ca", got.ID())
	assert.Equal(t, []string{"alice", "bob"}, r.Online())
	assert.Equal(t, 2, r.Count())
}

func TestUnregisterOwnerCheck(t *testing.T) {
	store := &fakeLastSeen{}
	r := New(store, timeutil.NewFixed(t0))
	old := presencetest.NewConn("old")
	fresh := presencetest.NewConn("fresh")
	watcher := presencetest.NewConn("w")
	r.Register("carol", watcher)

	r.Register("alice", old)
	r.Register("alice", fresh)
	watcher.Reset()

	assert.False(t, r.Unregister(context.Background(), "alice", old))
	assert.True(t, r.IsOnline("alice"))
	assert.Empty(t, watcher.Events())
	assert.Empty(t, store.seen)

	assert.True(t, r.Unregister(context.Background(), "alice", fresh))
	assert.False(t, r.IsOnline("alice"))
	assert.False(t, r.Unregister(context.Background(), "alice", fresh))

	require.Equal(t, []string{events.UserOffline}, watcher.Names())
	p, _ := watcher.Last()
	notice := p.Payload.(events.UserOfflineNotice)
	assert.Equal(t, "alice", notice.UserID)
	assert.True(t, notice.LastSeen.After(t0), "lastSeen must be after register time")
	assert.Equal(t, notice.LastSeen, store.seen["alice"])
}

func TestUnregisterPersistFailureStillBroadcasts(t *testing.T) {
	clock := timeutil.NewFixed(t0)
	r := New(&fakeLastSeen{err: errors.New("disk full")}, clock)
	a := presencetest.NewConn("a")
	w := presencetest.NewConn("w")
	r.Register("alice", a)
	r.Register("watcher", w)
	w.Reset()
	clock.Advance(time.Minute)

	assert.True(t, r.Unregister(context.Background(), "alice", a))
	require.Equal(t, []string{events.UserOffline}, w.Names())
	p, _ := w.Last()
	assert.Equal(t, t0.Add(time.Minute), p.Payload.(events.UserOfflineNotice).LastSeen)
}

func TestBroadcastSkipsExceptAndFailures(t *testing.T) {
	r := New(nil, nil)
	a := presencetest.NewConn("a")
	b := presencetest.NewConn("b")
	c := presencetest.NewConn("c")
	c.Err = errors.New("closed")
	r.Register("a", a)
	r.Register("b", b)
	r.Register("c", c)
	a.Reset()
	b.Reset()

	r.Broadcast(events.MessagesDeleted, events.MessagesDeletedNotice{MessageIDs: []string{"m"}}, "a")
	assert.Empty(t, a.Events())
	assert.Equal(t, []string{events.MessagesDeleted}, b.Names())
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	r := New(&fakeLastSeen{}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := presencetest.NewConn("c" + strconv.Itoa(i))
			r.Register("shared", c)
			r.Unregister(context.Background(), "shared", c)
			r.Lookup("shared")
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, r.Count(), 1)
}
