package delivery

import (
	"context"
	"errors"
	"testing"

	"courier/pkg/apperr"
	"courier/pkg/events"
	"courier/pkg/models"
	"courier/pkg/presence"
	"courier/pkg/presence/presencetest"
	"courier/pkg/store"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore wraps a real store and fails selected calls.
type flakyStore struct {
	*store.Store
	failCreate  bool
	failAdvance bool
}

func (f *flakyStore) CreateMessage(ctx context.Context, m models.Message) (models.Message, error) {
	if f.failCreate {
		return models.Message{}, apperr.Persistence("test", errors.New("unavailable"))
	}
	return f.Store.CreateMessage(ctx, m)
}

func (f *flakyStore) AdvanceStatus(ctx context.Context, id string, next models.MessageStatus) (models.Message, bool, error) {
	if f.failAdvance {
		return models.Message{}, false, apperr.Persistence("test", errors.New("unavailable"))
	}
	return f.Store.AdvanceStatus(ctx, id, next)
}

func setup(t *testing.T) (*Pipeline, *flakyStore, *presence.Registry) {
	t.Helper()
	s, err := store.Open("/db", store.Options{FS: vfs.NewMem(), NoSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	fs := &flakyStore{Store: s}
	reg := presence.New(s, nil)
	return New(fs, reg), fs, reg
}

func TestSendToOfflineRecipientStaysSent(t *testing.T) {
	p, fs, _ := setup(t)
	alice := presencetest.NewConn("a")

	m, err := p.Send(context.Background(), "alice", alice, events.SendMessagePayload{RecipientID: "bob", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, m.Status)
	assert.Equal(t, []string{events.MessageSent}, alice.Names())

	stored, err := fs.GetMessage(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, stored.Status)
	assert.Equal(t, "alice", stored.SenderID)
}

func TestSendToOnlineRecipientDelivers(t *testing.T) {
	p, fs, reg := setup(t)
	alice := presencetest.NewConn("a")
	bob := presencetest.NewConn("b")
	reg.Register("bob", bob)

	m, err := p.Send(context.Background(), "alice", alice, events.SendMessagePayload{RecipientID: "bob", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, m.Status)

	require.Equal(t, []string{events.MessageSent, events.MessageStatusUpdated}, alice.Names())
	sent := alice.Events()[0].Payload.(models.Message)
	assert.Equal(t, models.StatusSent, sent.Status)
	assert.Equal(t, events.StatusUpdate{MessageID: m.ID, Status: models.StatusDelivered}, alice.Events()[1].Payload)

	require.Equal(t, []string{events.ReceiveMessage}, bob.Names())
	got := bob.Events()[0].Payload.(models.Message)
	assert.Equal(t, models.StatusDelivered, got.Status)

	stored, err := fs.GetMessage(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, stored.Status)
}

func TestSendValidation(t *testing.T) {
	p, _, _ := setup(t)
	alice := presencetest.NewConn("a")
	cases := []events.SendMessagePayload{
		{Content: "no recipient"},
		{RecipientID: "bob"},
		{RecipientID: "bob", Content: "x", Type: "VIDEO"},
		{RecipientID: "bob", Content: "x", RepliedToID: "missing"},
		{RecipientID: "bob:evil", Content: "hi"},
	}
	for _, in := range cases {
		_, err := p.Send(context.Background(), "alice", alice, in)
		assert.True(t, apperr.Is(err, apperr.KindValidation), "%+v: %v", in, err)
	}
	assert.Empty(t, alice.Events())
}

func TestCaptionOnlyForImages(t *testing.T) {
	p, _, _ := setup(t)
	c := presencetest.NewConn("a")
	m, err := p.Send(context.Background(), "alice", c, events.SendMessagePayload{RecipientID: "bob", Content: "x", Caption: "dropped"})
	require.NoError(t, err)
	assert.Empty(t, m.Caption)

	m, err = p.Send(context.Background(), "alice", c, events.SendMessagePayload{RecipientID: "bob", Content: "cdn://1", Type: "image", Caption: "kept"})
	require.NoError(t, err)
	assert.Equal(t, models.TypeImage, m.Type)
	assert.Equal(t, "kept", m.Caption)
}

func TestReplyMustBeSameConversation(t *testing.T) {
	p, _, _ := setup(t)
	c := presencetest.NewConn("a")
	ctx := context.Background()
	parent, err := p.Send(ctx, "bob", c, events.SendMessagePayload{RecipientID: "alice", Content: "q"})
	require.NoError(t, err)
	other, err := p.Send(ctx, "carol", c, events.SendMessagePayload{RecipientID: "alice", Content: "q"})
	require.NoError(t, err)

	m, err := p.Send(ctx, "alice", c, events.SendMessagePayload{RecipientID: "bob", Content: "a", RepliedToID: parent.ID})
	require.NoError(t, err)
	assert.Equal(t, parent.ID, m.RepliedToID)

	_, err = p.Send(ctx, "alice", c, events.SendMessagePayload{RecipientID: "bob", Content: "a", RepliedToID: other.ID})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestPersistFailureReportsMessageError(t *testing.T) {
	p, fs, _ := setup(t)
	fs.failCreate = true
	alice := presencetest.NewConn("a")
	in := events.SendMessagePayload{RecipientID: "bob", Content: "hi"}

	_, err := p.Send(context.Background(), "alice", alice, in)
	assert.True(t, apperr.Is(err, apperr.KindPersistence))
	require.Equal(t, []string{events.MessageError}, alice.Names())
	assert.Equal(t, events.SendError{Error: sendFailedMessage, OriginalMessage: in}, alice.Events()[0].Payload)
}

func TestStoreValidationFailureIsNotReported(t *testing.T) {
	p, _, _ := setup(t)
	sender := presencetest.NewConn("a")

	_, err := p.Send(context.Background(), "alice:x", sender, events.SendMessagePayload{RecipientID: "bob", Content: "hi"})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "%v", err)
	assert.Empty(t, sender.Events())
}

func TestAdvanceFailureStillPushesSentCopy(t *testing.T) {
	p, fs, reg := setup(t)
	fs.failAdvance = true
	alice := presencetest.NewConn("a")
	bob := presencetest.NewConn("b")
	reg.Register("bob", bob)

	m, err := p.Send(context.Background(), "alice", alice, events.SendMessagePayload{RecipientID: "bob", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, m.Status)
	assert.Equal(t, []string{events.MessageSent}, alice.Names())
	assert.Equal(t, []string{events.ReceiveMessage}, bob.Names())
}
