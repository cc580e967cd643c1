package models

import "time"

type Message struct {
	ID          string        `json:"id"`
	SenderID    string        `json:"senderId"`
	RecipientID string        `json:"recipientId"`
	Type        MessageType   `json:"type"`
	Content     string        `json:"content"`
	Caption     string        `json:"caption,omitempty"`
	Status      MessageStatus `json:"status"`
	RepliedToID string        `json:"repliedToId,omitempty"`
	IsForwarded bool          `json:"isForwarded"`
	IsDeleted   bool          `json:"isDeleted"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Involves reports whether userID is the sender or the recipient.
func (m Message) Involves(userID string) bool {
	return m.SenderID == userID || m.RecipientID == userID
}

// Counterpart returns the other participant from userID's point of view.
func (m Message) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// Tombstone returns m with its content cleared and the deleted flag set.
func (m Message) Tombstone() Message {
	m.IsDeleted = true
	m.Content = ""
	m.Caption = ""
	return m
}

// Quoted is the replied-to message embedded in history entries.
type Quoted struct {
	Message
	Sender UserSummary `json:"sender"`
}

// HistoryEntry is a message with the participant summaries resolved.
type HistoryEntry struct {
	Message
	Sender    UserSummary `json:"sender"`
	Recipient UserSummary `json:"recipient"`
	RepliedTo *Quoted     `json:"repliedTo,omitempty"`
}
