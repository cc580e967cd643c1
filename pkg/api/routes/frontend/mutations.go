package frontend

import (
	"courier/pkg/api/routes/common"
	"courier/pkg/apperr"
	"courier/pkg/models"
	"courier/pkg/router"

	"github.com/valyala/fasthttp"
)

const maxFindUsernames = 100

// FindContacts resolves usernames to users; unknown names are skipped.
func (h *Handlers) FindContacts(ctx *fasthttp.RequestCtx) {
	_, tr, ok := common.SetupUserHandler(ctx, "find_contacts")
	if !ok {
		return
	}
	defer tr.Finish()

	var req FindContactsRequest
	if err := router.BindJSON(ctx, &req); err != nil {
		router.WriteError(ctx, err)
		return
	}
	if len(req.Usernames) == 0 {
		router.WriteError(ctx, apperr.Validation("api.find_contacts", "usernames is required"))
		return
	}
	if len(req.Usernames) > maxFindUsernames {
		router.WriteError(ctx, apperr.Validation("api.find_contacts", "too many usernames"))
		return
	}
	c, cancel := common.Timeout(ctx, h.timeout)
	defer cancel()

	users, err := h.store.FindUsersByUsername(c, req.Usernames)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	out := UsersResponse{Users: make([]models.PresenceView, 0, len(users))}
	for _, u := range users {
		out.Users = append(out.Users, h.view(u))
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, out)
}

func (h *Handlers) UpdateProfile(ctx *fasthttp.RequestCtx) {
	self, tr, ok := common.SetupUserHandler(ctx, "update_profile")
	if !ok {
		return
	}
	defer tr.Finish()

	var upd models.ProfileUpdate
	if err := router.BindJSON(ctx, &upd); err != nil {
		router.WriteError(ctx, err)
		return
	}
	if upd.Username == nil && upd.ProfilePictureURL == nil {
		router.WriteError(ctx, apperr.Validation("api.update_profile", "nothing to update"))
		return
	}
	c, cancel := common.Timeout(ctx, h.timeout)
	defer cancel()

	u, err := h.store.UpdateProfile(c, self, upd)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, u)
}
