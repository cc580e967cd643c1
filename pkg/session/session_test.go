package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"courier/pkg/auth"
	"courier/pkg/delivery"
	"courier/pkg/events"
	"courier/pkg/models"
	"courier/pkg/moderation"
	"courier/pkg/presence"
	"courier/pkg/status"
	"courier/pkg/store"
	"courier/pkg/typing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	written   [][]byte
	closeCode int
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeSocket) ReadMessage() ([]byte, error) {
	select {
	case b := <-f.in:
		return b, nil
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeSocket) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func (f *fakeSocket) WritePing() error { return nil }

func (f *fakeSocket) WriteClose(code int, _ string) error {
	f.mu.Lock()
	f.closeCode = code
	f.mu.Unlock()
	return nil
}

func (f *fakeSocket) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSocket) send(t *testing.T, event string, data any) {
	t.Helper()
	raw, err := events.Encode(event, data)
	require.NoError(t, err)
	f.in <- raw
}

func (f *fakeSocket) frames() []events.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.Frame, 0, len(f.written))
	for _, raw := range f.written {
		if fr, err := events.Decode(raw); err == nil {
			out = append(out, fr)
		}
	}
	return out
}

func (f *fakeSocket) find(event string) (events.Frame, bool) {
	for _, fr := range f.frames() {
		if fr.Event == event {
			return fr, true
		}
	}
	return events.Frame{}, false
}

func (f *fakeSocket) waitFor(t *testing.T, event string) events.Frame {
	t.Helper()
	var got events.Frame
	require.Eventually(t, func() bool {
		var ok bool
		got, ok = f.find(event)
		return ok
	}, 2*time.Second, 5*time.Millisecond, "waiting for %s", event)
	return got
}

func (f *fakeSocket) code() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode
}

type harness struct {
	st     *store.Store
	reg    *presence.Registry
	signer *auth.Signer
	deps   Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.Open("/db", store.Options{FS: vfs.NewMem(), NoSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	signer, err := auth.NewSigner([]string{"session-test-signing-key"}, time.Hour, nil)
	require.NoError(t, err)
	reg := presence.New(st, nil)
	pipe := delivery.New(st, reg)
	return &harness{
		st:     st,
		reg:    reg,
		signer: signer,
		deps: Deps{
			Verifier:   signer,
			Presence:   reg,
			Delivery:   pipe,
			Status:     status.New(st, reg),
			Typing:     typing.New(reg),
			Moderation: moderation.New(st, pipe, reg),
		},
	}
}

// connect starts a session and authenticates it as userID when non-empty.
func (h *harness) connect(t *testing.T, userID string) (*Session, *fakeSocket, chan struct{}) {
	t.Helper()
	sock := newFakeSocket()
	s := New(sock, h.deps, Options{OutboxCapacity: 64})
	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	t.Cleanup(func() {
		s.Close()
		<-done
	})
	if userID != "" {
		tok, _, err := h.signer.Issue(userID)
		require.NoError(t, err)
		sock.send(t, events.Authenticate, tok)
		require.Eventually(t, func() bool { return h.reg.IsOnline(userID) }, 2*time.Second, 5*time.Millisecond)
	}
	return s, sock, done
}

func TestEventsBeforeAuthenticationAreIgnored(t *testing.T) {
	h := newHarness(t)
	s, sock, _ := h.connect(t, "")
	sock.send(t, events.SendMessage, events.SendMessagePayload{RecipientID: "bob", Content: "hi"})
	sock.send(t, events.Authenticate, map[string]string{"token": mustToken(t, h, "alice")})

	require.Eventually(t, func() bool { return s.State() == StateAuthenticated }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "alice", s.UserID())
	hist, err := h.st.History(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, hist)
	assert.Empty(t, sock.frames())
}

func mustToken(t *testing.T, h *harness, userID string) string {
	t.Helper()
	tok, _, err := h.signer.Issue(userID)
	require.NoError(t, err)
	return tok
}

func TestAuthenticationFailureClosesConnection(t *testing.T) {
	h := newHarness(t)
	s, sock, done := h.connect(t, "")
	sock.send(t, events.Authenticate, "forged.1.abc")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close")
	}
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, ClosePolicyViolation, sock.code())
	assert.Zero(t, h.reg.Count())
}

func TestCloseRacingAuthentication(t *testing.T) {
	h := newHarness(t)
	tok, _, err := h.signer.Issue("alice")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		s, sock, done := h.connect(t, "")
		sock.send(t, events.Authenticate, tok)
		s.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("session did not close")
		}
		assert.Equal(t, StateClosed, s.State())
		require.Eventually(t, func() bool { return !h.reg.IsOnline("alice") }, 2*time.Second, 5*time.Millisecond)
	}
}

func TestSendBetweenOnlineUsers(t *testing.T) {
	h := newHarness(t)
	_, alice, _ := h.connect(t, "alice")
	_, bob, _ := h.connect(t, "bob")

	alice.waitFor(t, events.UserOnline)
	alice.send(t, events.SendMessage, events.SendMessagePayload{RecipientID: "bob", Content: "hi"})

	sent := alice.waitFor(t, events.MessageSent)
	var m models.Message
	require.NoError(t, json.Unmarshal(sent.Data, &m))
	assert.Equal(t, "alice", m.SenderID)
	assert.Equal(t, models.StatusSent, m.Status)

	got := bob.waitFor(t, events.ReceiveMessage)
	var rm models.Message
	require.NoError(t, json.Unmarshal(got.Data, &rm))
	assert.Equal(t, m.ID, rm.ID)
	assert.Equal(t, models.StatusDelivered, rm.Status)

	upd := alice.waitFor(t, events.MessageStatusUpdated)
	var su events.StatusUpdate
	require.NoError(t, json.Unmarshal(upd.Data, &su))
	assert.Equal(t, events.StatusUpdate{MessageID: m.ID, Status: models.StatusDelivered}, su)

	bob.send(t, events.StartTyping, events.TypingPayload{RecipientID: "alice"})
	typingFrame := alice.waitFor(t, events.Typing)
	assert.JSONEq(t, `{"senderId":"bob"}`, string(typingFrame.Data))
}

func TestOfflineThenSeenScenario(t *testing.T) {
	h := newHarness(t)
	_, alice, _ := h.connect(t, "alice")
	alice.send(t, events.SendMessage, events.SendMessagePayload{RecipientID: "bob", Content: "hi"})
	sent := alice.waitFor(t, events.MessageSent)
	var m models.Message
	require.NoError(t, json.Unmarshal(sent.Data, &m))
	assert.Equal(t, models.StatusSent, m.Status)

	_, bob, _ := h.connect(t, "bob")
	bob.send(t, events.MarkAsSeen, events.MarkAsSeenPayload{SenderID: "alice"})

	seen := alice.waitFor(t, events.MessagesSeen)
	assert.JSONEq(t, `{"recipientId":"bob"}`, string(seen.Data))
	stored, err := h.st.GetMessage(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSeen, stored.Status)
}

func TestDisconnectBroadcastsUserOffline(t *testing.T) {
	h := newHarness(t)
	_, err := h.st.CreateUser(context.Background(), models.User{ID: "bob", Username: "bob"})
	require.NoError(t, err)
	_, alice, _ := h.connect(t, "alice")
	bobSession, _, bobDone := h.connect(t, "bob")

	bobSession.Close()
	<-bobDone
	off := alice.waitFor(t, events.UserOffline)
	var notice events.UserOfflineNotice
	require.NoError(t, json.Unmarshal(off.Data, &notice))
	assert.Equal(t, "bob", notice.UserID)
	assert.False(t, h.reg.IsOnline("bob"))

	u, err := h.st.GetUser(context.Background(), "bob")
	require.NoError(t, err)
	require.NotNil(t, u.LastSeen)
}

func TestReconnectKeepsFreshRegistration(t *testing.T) {
	h := newHarness(t)
	first, _, firstDone := h.connect(t, "alice")
	second, _, _ := h.connect(t, "alice")
	require.Eventually(t, func() bool {
		c, ok := h.reg.Lookup("alice")
		return ok && c.ID() == second.ID()
	}, 2*time.Second, 5*time.Millisecond)

	first.Close()
	<-firstDone
	c, ok := h.reg.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, second.ID(), c.ID())
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }
func (denyAll) Forget(string)     {}

func TestRateLimitedEventsAreDropped(t *testing.T) {
	h := newHarness(t)
	h.deps.Limiter = denyAll{}
	_, alice, _ := h.connect(t, "alice")
	alice.send(t, events.SendMessage, events.SendMessagePayload{RecipientID: "bob", Content: "hi"})
	alice.send(t, events.Authenticate, "ignored")

	time.Sleep(50 * time.Millisecond)
	_, ok := alice.find(events.MessageSent)
	assert.False(t, ok)
	hist, err := h.st.History(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

type blockingSocket struct {
	*fakeSocket
	release chan struct{}
}

func (b *blockingSocket) WriteMessage(data []byte) error {
	select {
	case <-b.release:
	case <-b.closed:
		return errors.New("closed")
	}
	return b.fakeSocket.WriteMessage(data)
}

func TestOutboxOverflowClosesSession(t *testing.T) {
	h := newHarness(t)
	sock := &blockingSocket{fakeSocket: newFakeSocket(), release: make(chan struct{})}
	s := New(sock, h.deps, Options{OutboxCapacity: 1})
	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	for i := 0; i < 4; i++ {
		_ = s.Push(events.UserOnline, "x")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close on overflow")
	}
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, CloseTryAgainLater, sock.code())
}
