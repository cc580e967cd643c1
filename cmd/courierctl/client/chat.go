package client

import (
	"context"
	"errors"
	"sync"

	"courier/pkg/events"

	"github.com/fasthttp/websocket"
)

// Chat is a live session. Send is safe for concurrent use; Next has a
// single reader.
type Chat struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Dial opens the websocket and authenticates with token. A nil dialer
// uses websocket.DefaultDialer.
func Dial(ctx context.Context, wsURL, token string, dialer *websocket.Dialer) (*Chat, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}
	c := &Chat{ws: ws}
	if err := c.Send(events.Authenticate, token); err != nil {
		_ = ws.Close()
		return nil, err
	}
	return c, nil
}

func (c *Chat) Send(event string, payload any) error {
	raw, err := events.Encode(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

// Next blocks for the next inbound event.
func (c *Chat) Next() (events.Frame, error) {
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return events.Frame{}, err
		}
		f, err := events.Decode(raw)
		if err != nil {
			continue
		}
		return f, nil
	}
}

func (c *Chat) Close() error {
	c.mu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.mu.Unlock()
	return c.ws.Close()
}

// IsClosed reports whether err is the peer closing the session, and with
// which code.
func IsClosed(err error) (int, bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return 0, false
}
