package models

import "time"

type User struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	ProfilePictureURL string     `json:"profilePictureUrl,omitempty"`
	LastSeen          *time.Time `json:"lastSeen,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, ProfilePictureURL: u.ProfilePictureURL}
}

// UserSummary is the projection embedded in messages and history.
type UserSummary struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
}

// ProfileUpdate carries optional profile changes; nil fields are left untouched.
type ProfileUpdate struct {
	Username          *string `json:"username,omitempty"`
	ProfilePictureURL *string `json:"profilePictureUrl,omitempty"`
}

// Presence is the user's reachability as seen by readers. LastSeen is only
// set while the user is offline.
type Presence struct {
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// PresenceView is a user summary with its presence projection.
type PresenceView struct {
	UserSummary
	Presence
}

// Contact is one row of a user's contact list.
type Contact struct {
	PresenceView
	UnreadCount int      `json:"unreadCount"`
	LastMessage *Message `json:"lastMessage,omitempty"`
}
