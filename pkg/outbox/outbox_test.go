package outbox

import (
	"errors"
	"testing"

	"courier/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueFullAndClosed(t *testing.T) {
	q := New(2)
	require.NoError(t, q.Enqueue(events.UserOnline, "a"))
	require.NoError(t, q.Enqueue(events.UserOnline, "b"))
	assert.ErrorIs(t, q.Enqueue(events.UserOnline, "c"), ErrQueueFull)
	assert.EqualValues(t, 1, q.Dropped())
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 2, q.Cap())

	q.Close()
	q.Close()
	assert.ErrorIs(t, q.Enqueue(events.UserOnline, "d"), ErrQueueClosed)
}

func TestRunWorkerDrainsInOrder(t *testing.T) {
	q := New(4)
	require.NoError(t, q.Enqueue(events.Typing, events.TypingNotice{SenderID: "a"}))
	require.NoError(t, q.Enqueue(events.TypingStopped, events.TypingNotice{SenderID: "a"}))
	q.Close()

	var got []string
	err := q.RunWorker(make(chan struct{}), func(it *Item) error {
		got = append(got, string(it.Bytes()))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		`{"event":"typing","data":{"senderId":"a"}}`,
		`{"event":"stopTyping","data":{"senderId":"a"}}`,
	}, got)
}

func TestRunWorkerStopsOnHandlerError(t *testing.T) {
	q := New(4)
	require.NoError(t, q.Enqueue(events.UserOnline, "a"))
	require.NoError(t, q.Enqueue(events.UserOnline, "b"))
	boom := errors.New("write failed")
	calls := 0
	err := q.RunWorker(make(chan struct{}), func(*Item) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRunWorkerStop(t *testing.T) {
	q := New(1)
	stop := make(chan struct{})
	close(stop)
	assert.NoError(t, q.RunWorker(stop, func(*Item) error { return nil }))
}

func TestEnqueueRejectsBadFrame(t *testing.T) {
	q := New(1)
	assert.ErrorIs(t, q.Enqueue("", nil), events.ErrEmptyEvent)
	assert.Zero(t, q.Len())
}
