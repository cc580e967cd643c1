package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/valyala/bytebufferpool"
)

// Frame is the envelope for every websocket text message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var ErrEmptyEvent = errors.New("frame has no event name")

// Encode marshals an outbound frame. The returned slice is owned by the caller.
func Encode(event string, payload any) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := EncodeTo(buf, event, payload); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}

// EncodeTo appends the frame to buf without a trailing newline.
func EncodeTo(buf *bytebufferpool.ByteBuffer, event string, payload any) error {
	if event == "" {
		return ErrEmptyEvent
	}
	f := Frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", event, err)
		}
		f.Data = data
	}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	buf.B = bytes.TrimRight(buf.B, "\n")
	return nil
}

// Decode parses an inbound frame.
func Decode(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, ErrEmptyEvent
	}
	return f, nil
}

// Bind decodes the frame data into v. Missing data is treated as an empty object.
func (f Frame) Bind(v any) error {
	if len(f.Data) == 0 || string(f.Data) == "null" {
		return json.Unmarshal([]byte("{}"), v)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%s payload: %w", f.Event, err)
	}
	return nil
}

// Token extracts the credential from an authenticate frame, which carries
// either a bare string or {"token": "..."}.
func (f Frame) Token() (string, error) {
	var s string
	if err := json.Unmarshal(f.Data, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var obj struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(f.Data, &obj); err != nil {
		return "", fmt.Errorf("authenticate payload: %w", err)
	}
	return strings.TrimSpace(obj.Token), nil
}
