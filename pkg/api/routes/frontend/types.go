package frontend

import (
	"context"
	"time"

	"courier/pkg/models"
)

type Store interface {
	History(ctx context.Context, a, b string) ([]models.HistoryEntry, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	FindUsersByUsername(ctx context.Context, names []string) ([]models.User, error)
	UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (models.User, error)
	UnreadCounts(ctx context.Context, userID string) (map[string]int, error)
	LastMessage(ctx context.Context, a, b string) (*models.Message, error)
}

type Presence interface {
	IsOnline(userID string) bool
}

// Handlers serve the user-token routes.
type Handlers struct {
	store    Store
	presence Presence
	timeout  time.Duration
}

func New(s Store, p Presence, timeout time.Duration) *Handlers {
	return &Handlers{store: s, presence: p, timeout: timeout}
}

type FindContactsRequest struct {
	Usernames []string `json:"usernames"`
}

type UsersResponse struct {
	Users []models.PresenceView `json:"users"`
}

// presence projection: lastSeen is only reported while offline
func (h *Handlers) view(u models.User) models.PresenceView {
	v := models.PresenceView{UserSummary: u.Summary()}
	if h.presence.IsOnline(u.ID) {
		v.Online = true
		return v
	}
	v.LastSeen = u.LastSeen
	return v
}
