package events

import (
	"time"

	"courier/pkg/models"
)

// inbound
const (
	Authenticate    = "authenticate"
	SendMessage     = "sendMessage"
	MarkAsSeen      = "markAsSeen"
	StartTyping     = "startTyping"
	StopTyping      = "stopTyping"
	DeleteMessages  = "deleteMessages"
	ForwardMessages = "forwardMessages"
)

// outbound
const (
	MessageSent          = "messageSent"
	ReceiveMessage       = "receiveMessage"
	MessageStatusUpdated = "messageStatusUpdated"
	MessagesSeen         = "messagesSeen"
	Typing               = "typing"
	TypingStopped        = "stopTyping"
	MessagesDeleted      = "messagesDeleted"
	UserOnline           = "user_online"
	UserOffline          = "user_offline"
	MessageError         = "messageError"
)

type SendMessagePayload struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
	Type        string `json:"type,omitempty"`
	Caption     string `json:"caption,omitempty"`
	RepliedToID string `json:"repliedToId,omitempty"`
}

type MarkAsSeenPayload struct {
	SenderID string `json:"senderId"`
}

type TypingPayload struct {
	RecipientID string `json:"recipientId"`
}

type DeleteMessagesPayload struct {
	MessageIDs []string `json:"messageIds"`
}

type ForwardMessagesPayload struct {
	MessageIDs   []string `json:"messageIds"`
	RecipientIDs []string `json:"recipientIds"`
}

type StatusUpdate struct {
	MessageID string               `json:"messageId"`
	Status    models.MessageStatus `json:"status"`
}

// MessagesSeenNotice tells a sender that RecipientID has seen everything they sent.
type MessagesSeenNotice struct {
	RecipientID string `json:"recipientId"`
}

type TypingNotice struct {
	SenderID string `json:"senderId"`
}

type MessagesDeletedNotice struct {
	MessageIDs []string `json:"messageIds"`
}

type UserOfflineNotice struct {
	UserID   string    `json:"userId"`
	LastSeen time.Time `json:"lastSeen"`
}

// SendError echoes the rejected payload so the client can retry it.
type SendError struct {
	Error           string             `json:"error"`
	OriginalMessage SendMessagePayload `json:"originalMessage"`
}
