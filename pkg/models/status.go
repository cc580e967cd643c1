package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

type MessageType string

const (
	TypeText  MessageType = "TEXT"
	TypeImage MessageType = "IMAGE"
	TypeAudio MessageType = "AUDIO"
)

// ParseMessageType accepts the canonical names case-insensitively; empty means TEXT.
func ParseMessageType(s string) (MessageType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(TypeText):
		return TypeText, nil
	case string(TypeImage):
		return TypeImage, nil
	case string(TypeAudio):
		return TypeAudio, nil
	}
	return "", fmt.Errorf("unknown message type %q", s)
}

// MessageStatus is ordered: SENT < DELIVERED < SEEN.
type MessageStatus int

const (
	StatusSent MessageStatus = iota + 1
	StatusDelivered
	StatusSeen
)

var statusNames = map[MessageStatus]string{
	StatusSent:      "SENT",
	StatusDelivered: "DELIVERED",
	StatusSeen:      "SEEN",
}

func (s MessageStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("MessageStatus(%d)", int(s))
}

func (s MessageStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	return next.Valid() && next > s
}

func ParseMessageStatus(v string) (MessageStatus, error) {
	for s, n := range statusNames {
		if strings.EqualFold(n, v) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown message status %q", v)
}

func (s MessageStatus) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid message status %d", int(s))
	}
	return json.Marshal(s.String())
}

func (s *MessageStatus) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseMessageStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
