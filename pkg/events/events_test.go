package events

import (
	"testing"
	"time"

	"courier/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame(t *testing.T) {
	raw, err := Encode(MessageStatusUpdated, StatusUpdate{MessageID: "m1", Status: models.StatusDelivered})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"messageStatusUpdated","data":{"messageId":"m1","status":"DELIVERED"}}`, string(raw))

	raw, err = Encode(UserOnline, "alice")
	require.NoError(t, err)
	assert.Equal(t, `{"event":"user_online","data":"alice"}`, string(raw))

	raw, err = Encode(UserOffline, UserOfflineNotice{UserID: "bob", LastSeen: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"user_offline","data":{"userId":"bob","lastSeen":"2024-01-02T03:04:05Z"}}`, string(raw))

	_, err = Encode("", nil)
	assert.ErrorIs(t, err, ErrEmptyEvent)
}

func TestDecodeAndBind(t *testing.T) {
	f, err := Decode([]byte(`{"event":"sendMessage","data":{"recipientId":"b","content":"<hi>","type":"image","caption":"c"}}`))
	require.NoError(t, err)
	assert.Equal(t, SendMessage, f.Event)

	var p SendMessagePayload
	require.NoError(t, f.Bind(&p))
	assert.Equal(t, SendMessagePayload{RecipientID: "b", Content: "<hi>", Type: "image", Caption: "c"}, p)

	f, err = Decode([]byte(`{"event":"deleteMessages"}`))
	require.NoError(t, err)
	var d DeleteMessagesPayload
	require.NoError(t, f.Bind(&d))
	assert.Empty(t, d.MessageIDs)

	_, err = Decode([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, ErrEmptyEvent)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)

	f, _ = Decode([]byte(`{"event":"markAsSeen","data":[1,2]}`))
	assert.Error(t, f.Bind(&MarkAsSeenPayload{}))
}

func TestToken(t *testing.T) {
	for _, raw := range []string{
		`{"event":"authenticate","data":"tok"}`,
		`{"event":"authenticate","data":{"token":" tok "}}`,
	} {
		f, err := Decode([]byte(raw))
		require.NoError(t, err)
		tok, err := f.Token()
		require.NoError(t, err)
		assert.Equal(t, "tok", tok)
	}
	f, _ := Decode([]byte(`{"event":"authenticate","data":42}`))
	_, err := f.Token()
	assert.Error(t, err)
}
