package store

import (
	"context"
	"testing"
	"time"

	"courier/pkg/apperr"
	"courier/pkg/models"
	"courier/pkg/timeutil"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) (*Store, *timeutil.Fixed) {
	t.Helper()
	clock := timeutil.NewFixed(t0)
	s, err := Open("/db", Options{FS: vfs.NewMem(), Clock: clock, NoSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func seedUsers(t *testing.T, s *Store, names ...string) {
	t.Helper()
	for _, n := range names {
		_, err := s.CreateUser(context.Background(), models.User{ID: n, Username: n})
		require.NoError(t, err)
	}
}

func send(t *testing.T, s *Store, from, to, content string) models.Message {
	t.Helper()
	m, err := s.CreateMessage(context.Background(), models.Message{SenderID: from, RecipientID: to, Content: content})
	require.NoError(t, err)
	return m
}

func TestCreateUserConflicts(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, models.User{ID: "alice", Username: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, t0, u.CreatedAt)

	_, err = s.CreateUser(ctx, models.User{ID: "alice", Username: "other"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.CreateUser(ctx, models.User{ID: "alice2", Username: "ALICE"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = s.CreateUser(ctx, models.User{ID: "bob", Username: "b"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = s.CreateUser(ctx, models.User{ID: "bad:id", Username: "badid"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestFindAndListUsers(t *testing.T) {
	s, _ := openTestStore(t)
	seedUsers(t, s, "carol", "alice", "bob")
	ctx := context.Background()

	all, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alice", all[0].Username)

	found, err := s.FindUsersByUsername(ctx, []string{"BOB", "nobody", "bob", " carol "})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "bob", found[0].ID)
	assert.Equal(t, "carol", found[1].ID)
}

func TestUpdateProfile(t *testing.T) {
	s, _ := openTestStore(t)
	seedUsers(t, s, "alice", "bob")
	ctx := context.Background()

	taken := "bob"
	_, err := s.UpdateProfile(ctx, "alice", models.ProfileUpdate{Username: &taken})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	name, pic := "alicia", "https://img/a.png"
	u, err := s.UpdateProfile(ctx, "alice", models.ProfileUpdate{Username: &name, ProfilePictureURL: &pic})
	require.NoError(t, err)
	assert.Equal(t, "alicia", u.Username)
	assert.Equal(t, pic, u.ProfilePictureURL)

	found, err := s.FindUsersByUsername(ctx, []string{"alice", "alicia"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alice", found[0].ID)

	_, err = s.UpdateProfile(ctx, "ghost", models.ProfileUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetLastSeen(t *testing.T) {
	s, _ := openTestStore(t)
	seedUsers(t, s, "alice")
	ctx := context.Background()
	at := t0.Add(time.Minute)
	require.NoError(t, s.SetLastSeen(ctx, "alice", at))
	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, u.LastSeen)
	assert.True(t, at.Equal(*u.LastSeen))

	assert.ErrorIs(t, s.SetLastSeen(ctx, "ghost", at), ErrNotFound)
}

func TestCreateMessageAssignsFields(t *testing.T) {
	s, _ := openTestStore(t)
	m1 := send(t, s, "alice", "bob", "hi")
	m2 := send(t, s, "alice", "bob", "again")

	assert.NotEmpty(t, m1.ID)
	assert.Equal(t, models.StatusSent, m1.Status)
	assert.Equal(t, models.TypeText, m1.Type)
	assert.True(t, m2.CreatedAt.After(m1.CreatedAt), "createdAt must be strictly increasing")

	got, err := s.GetMessage(context.Background(), m1.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Content)

	_, err = s.GetMessage(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdvanceStatusIsMonotonic(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	m := send(t, s, "alice", "bob", "hi")

	got, changed, err := s.AdvanceStatus(ctx, m.ID, models.StatusDelivered)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.StatusDelivered, got.Status)

	_, changed, err = s.AdvanceStatus(ctx, m.ID, models.StatusDelivered)
	require.NoError(t, err)
	assert.False(t, changed)

	_, changed, err = s.AdvanceStatus(ctx, m.ID, models.StatusSeen)
	require.NoError(t, err)
	assert.True(t, changed)

	got, changed, err = s.AdvanceStatus(ctx, m.ID, models.StatusDelivered)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.StatusSeen, got.Status)
}

func TestMarkSeenOnlyTouchesOneDirection(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	a1 := send(t, s, "alice", "bob", "1")
	send(t, s, "alice", "bob", "2")
	b1 := send(t, s, "bob", "alice", "3")
	send(t, s, "carol", "bob", "4")

	_, _, err := s.AdvanceStatus(ctx, a1.ID, models.StatusDelivered)
	require.NoError(t, err)

	n, err := s.MarkSeen(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.MarkSeen(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.GetMessage(ctx, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, got.Status)

	counts, err := s.UnreadCounts(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"carol": 1}, counts)

	counts, err = s.UnreadCounts(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"bob": 1}, counts)
}

func TestSoftDeleteAllOrNothing(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	mine := send(t, s, "alice", "bob", "secret")
	theirs := send(t, s, "bob", "alice", "reply")
	bystander := send(t, s, "alice", "bob", "untouched")

	deny := apperr.Authorization("test", "not owner")
	_, err := s.SoftDeleteMessages(ctx, []string{mine.ID, theirs.ID}, func(ms []models.Message) error {
		for _, m := range ms {
			if m.SenderID != "alice" {
				return deny
			}
		}
		return nil
	})
	assert.ErrorIs(t, err, deny)

	got, err := s.GetMessage(ctx, mine.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDeleted)
	assert.Equal(t, "secret", got.Content)

	out, err := s.SoftDeleteMessages(ctx, []string{mine.ID, mine.ID}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsDeleted)
	assert.Empty(t, out[0].Content)

	got, err = s.GetMessage(ctx, mine.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Empty(t, got.Content)

	for id, content := range map[string]string{theirs.ID: "reply", bystander.ID: "untouched"} {
		got, err = s.GetMessage(ctx, id)
		require.NoError(t, err)
		assert.False(t, got.IsDeleted, id)
		assert.Equal(t, content, got.Content)
	}
}

func TestHistoryAndLastMessage(t *testing.T) {
	s, clock := openTestStore(t)
	seedUsers(t, s, "alice", "bob")
	ctx := context.Background()

	first := send(t, s, "alice", "bob", "hello")
	clock.Advance(time.Second)
	reply, err := s.CreateMessage(ctx, models.Message{SenderID: "bob", RecipientID: "alice", Content: "hey", RepliedToID: first.ID})
	require.NoError(t, err)
	send(t, s, "alice", "carol", "elsewhere")

	hist, err := s.History(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, first.ID, hist[0].ID)
	assert.Equal(t, "alice", hist[0].Sender.Username)
	assert.Equal(t, "bob", hist[0].Recipient.Username)
	assert.Nil(t, hist[0].RepliedTo)
	require.NotNil(t, hist[1].RepliedTo)
	assert.Equal(t, first.ID, hist[1].RepliedTo.ID)
	assert.Equal(t, "alice", hist[1].RepliedTo.Sender.Username)

	last, err := s.LastMessage(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, reply.ID, last.ID)

	none, err := s.LastMessage(ctx, "bob", "carol")
	require.NoError(t, err)
	assert.Nil(t, none)

	hist, err = s.History(ctx, "alice", "carol")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "carol", hist[0].Recipient.ID)
	assert.Empty(t, hist[0].Recipient.Username)
}

func TestGetMessagesOrdersChronologically(t *testing.T) {
	s, _ := openTestStore(t)
	a := send(t, s, "alice", "bob", "a")
	b := send(t, s, "alice", "bob", "b")
	c := send(t, s, "alice", "bob", "c")
	got, err := s.GetMessages(context.Background(), []string{c.ID, "missing", a.ID, b.ID, a.ID})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestStatsFlushCompactAndClose(t *testing.T) {
	s, _ := openTestStore(t)
	seedUsers(t, s, "alice", "bob")
	send(t, s, "alice", "bob", "x")
	ctx := context.Background()

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Users)
	assert.Equal(t, 1, st.Messages)
	assert.Equal(t, 1, st.Unseen)
	assert.NotZero(t, st.PendingWrites)

	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Compact(ctx))
	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.PendingWrites)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.False(t, s.Ready())
	_, err = s.GetUser(ctx, "alice")
	assert.True(t, apperr.Is(err, apperr.KindPersistence))
}

func TestCanceledContextFails(t *testing.T) {
	s, _ := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.CreateMessage(ctx, models.Message{SenderID: "a", RecipientID: "b"})
	assert.True(t, apperr.Is(err, apperr.KindPersistence))
}
