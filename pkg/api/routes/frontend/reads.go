package frontend

import (
	"sort"

	"courier/pkg/api/routes/common"
	"courier/pkg/apperr"
	"courier/pkg/models"
	"courier/pkg/router"
	"courier/pkg/store"

	"github.com/valyala/fasthttp"
)

// ReadHistory returns the caller's conversation with {userId}, oldest first.
func (h *Handlers) ReadHistory(ctx *fasthttp.RequestCtx) {
	self, tr, ok := common.SetupUserHandler(ctx, "read_history")
	if !ok {
		return
	}
	defer tr.Finish()

	other := router.PathParam(ctx, "userId")
	if err := store.ValidateID(other); err != nil {
		router.WriteError(ctx, apperr.Validation("api.read_history", "invalid userId"))
		return
	}
	c, cancel := common.Timeout(ctx, h.timeout)
	defer cancel()

	tr.Mark("load_history")
	entries, err := h.store.History(c, self, other)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	tr.Mark("encode_response")
	router.WriteJSON(ctx, fasthttp.StatusOK, entries)
}

// ReadContacts lists every other user with unread count, last message and
// presence, most recent conversation first.
func (h *Handlers) ReadContacts(ctx *fasthttp.RequestCtx) {
	self, tr, ok := common.SetupUserHandler(ctx, "read_contacts")
	if !ok {
		return
	}
	defer tr.Finish()
	c, cancel := common.Timeout(ctx, h.timeout)
	defer cancel()

	tr.Mark("list_users")
	users, err := h.store.ListUsers(c)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	unread, err := h.store.UnreadCounts(c, self)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}

	tr.Mark("last_messages")
	contacts := make([]models.Contact, 0, len(users))
	for _, u := range users {
		if u.ID == self {
			continue
		}
		last, err := h.store.LastMessage(c, self, u.ID)
		if err != nil {
			router.WriteError(ctx, err)
			return
		}
		contacts = append(contacts, models.Contact{
			PresenceView: h.view(u),
			UnreadCount:  unread[u.ID],
			LastMessage:  last,
		})
	}
	sortContacts(contacts)

	tr.Mark("encode_response")
	router.WriteJSON(ctx, fasthttp.StatusOK, contacts)
}

// contacts with a conversation come first, newest first; the rest by username
func sortContacts(cs []models.Contact) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i].LastMessage, cs[j].LastMessage
		switch {
		case a != nil && b != nil && !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.After(b.CreatedAt)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return cs[i].Username < cs[j].Username
	})
}

func (h *Handlers) ReadUser(ctx *fasthttp.RequestCtx) {
	_, tr, ok := common.SetupUserHandler(ctx, "read_user")
	if !ok {
		return
	}
	defer tr.Finish()

	id := router.PathParam(ctx, "userId")
	if err := store.ValidateID(id); err != nil {
		router.WriteError(ctx, apperr.Validation("api.read_user", "invalid userId"))
		return
	}
	c, cancel := common.Timeout(ctx, h.timeout)
	defer cancel()
	u, err := h.store.GetUser(c, id)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, h.view(u))
}

func (h *Handlers) ReadProfile(ctx *fasthttp.RequestCtx) {
	self, tr, ok := common.SetupUserHandler(ctx, "read_profile")
	if !ok {
		return
	}
	defer tr.Finish()
	c, cancel := common.Timeout(ctx, h.timeout)
	defer cancel()

	u, err := h.store.GetUser(c, self)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, u)
}
