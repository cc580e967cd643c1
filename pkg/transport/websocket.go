package transport

import (
	"errors"
	"sync"
	"time"

	"courier/pkg/config"

	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp"
)

// Options bounds frame sizes and keepalive timing for one connection.
type Options struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	PongWait        time.Duration
	WriteWait       time.Duration
}

func OptionsFrom(c config.WebSocketConfig) Options {
	return Options{
		ReadBufferSize:  int(c.ReadBufferSize.Int64()),
		WriteBufferSize: int(c.WriteBufferSize.Int64()),
		MaxMessageSize:  c.MaxMessageSize.Int64(),
		PongWait:        c.PongWait.Duration(),
		WriteWait:       c.WriteWait.Duration(),
	}
}

var errBinaryFrame = errors.New("binary frames are not supported")

// Conn adapts a websocket connection to the session Socket contract.
type Conn struct {
	ws   *websocket.Conn
	opts Options
	// serialises data frames; control frames are safe to interleave
	wmu sync.Mutex
}

func Wrap(ws *websocket.Conn, opts Options) *Conn {
	if opts.MaxMessageSize > 0 {
		ws.SetReadLimit(opts.MaxMessageSize)
	}
	if opts.PongWait > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(opts.PongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(opts.PongWait))
		})
	}
	return &Conn{ws: ws, opts: opts}
}

func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		switch typ {
		case websocket.TextMessage:
			return data, nil
		case websocket.BinaryMessage:
			return nil, errBinaryFrame
		}
	}
}

func (c *Conn) WriteMessage(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.opts.WriteWait > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) WritePing() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, c.deadline())
}

func (c *Conn) WriteClose(code int, reason string) error {
	return c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), c.deadline())
}

func (c *Conn) Close() error { return c.ws.Close() }

func (c *Conn) deadline() time.Time {
	wait := c.opts.WriteWait
	if wait <= 0 {
		wait = 10 * time.Second
	}
	return time.Now().Add(wait)
}

// Upgrader switches fasthttp requests to websocket connections.
type Upgrader struct {
	up   websocket.FastHTTPUpgrader
	opts Options
}

// NewUpgrader builds an upgrader; checkOrigin nil accepts same-host origins only.
func NewUpgrader(opts Options, checkOrigin func(*fasthttp.RequestCtx) bool) *Upgrader {
	return &Upgrader{
		up: websocket.FastHTTPUpgrader{
			ReadBufferSize:  opts.ReadBufferSize,
			WriteBufferSize: opts.WriteBufferSize,
			CheckOrigin:     checkOrigin,
		},
		opts: opts,
	}
}

// Upgrade hijacks the request. serve runs on the hijacked connection after
// the fasthttp handler returns, so it must not touch ctx.
func (u *Upgrader) Upgrade(ctx *fasthttp.RequestCtx, serve func(*Conn)) error {
	return u.up.Upgrade(ctx, func(ws *websocket.Conn) {
		c := Wrap(ws, u.opts)
		defer c.Close()
		serve(c)
	})
}

func IsWebSocketUpgrade(ctx *fasthttp.RequestCtx) bool {
	return websocket.FastHTTPIsWebSocketUpgrade(ctx)
}
