package backend

import (
	"context"
	"time"

	"courier/pkg/api/routes/common"
	"courier/pkg/apperr"
	"courier/pkg/models"
	"courier/pkg/router"
	"courier/pkg/state/logger"
	"courier/pkg/store"

	"github.com/valyala/fasthttp"
)

type TokenIssuer interface {
	Issue(userID string) (string, time.Time, error)
}

type UserCreator interface {
	CreateUser(ctx context.Context, u models.User) (models.User, error)
}

// Handlers serve the backend-key routes: identity provisioning on behalf
// of an external identity service.
type Handlers struct {
	issuer  TokenIssuer
	users   UserCreator
	timeout time.Duration
}

func New(issuer TokenIssuer, users UserCreator, timeout time.Duration) *Handlers {
	return &Handlers{issuer: issuer, users: users, timeout: timeout}
}

type SignRequest struct {
	UserID string `json:"userId"`
}

type SignResponse struct {
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type CreateUserRequest struct {
	ID                string `json:"id,omitempty"`
	Username          string `json:"username"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
}

// Sign mints a credential token for userId.
func (h *Handlers) Sign(ctx *fasthttp.RequestCtx) {
	var req SignRequest
	if err := router.BindJSON(ctx, &req); err != nil {
		router.WriteError(ctx, err)
		return
	}
	if err := store.ValidateID(req.UserID); err != nil {
		router.WriteError(ctx, apperr.Validation("api.sign", "invalid userId"))
		return
	}
	tok, exp, err := h.issuer.Issue(req.UserID)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	logger.Info("token_issued", "user_id", req.UserID, "expires_at", exp)
	router.WriteJSON(ctx, fasthttp.StatusOK, SignResponse{UserID: req.UserID, Token: tok, ExpiresAt: exp})
}

func (h *Handlers) CreateUser(ctx *fasthttp.RequestCtx) {
	var req CreateUserRequest
	if err := router.BindJSON(ctx, &req); err != nil {
		router.WriteError(ctx, err)
		return
	}
	c, cancel := common.Timeout(ctx, h.timeout)
	defer cancel()

	u, err := h.users.CreateUser(c, models.User{ID: req.ID, Username: req.Username, ProfilePictureURL: req.ProfilePictureURL})
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	logger.Info("user_created", "user_id", u.ID, "username", u.Username)
	router.WriteJSON(ctx, fasthttp.StatusCreated, u)
}
