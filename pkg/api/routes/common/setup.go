package common

import (
	"context"
	"time"

	"courier/pkg/auth"
	"courier/pkg/router"
	"courier/pkg/telemetry"

	"github.com/valyala/fasthttp"
)

const DefaultTimeout = 5 * time.Second

// SetupUserHandler resolves the calling user and starts a trace for op.
// It writes a 401 and returns ok=false when no user is bound.
func SetupUserHandler(ctx *fasthttp.RequestCtx, op string) (string, *telemetry.Trace, bool) {
	userID := auth.UserID(ctx)
	if userID == "" {
		router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "user token required")
		return "", nil, false
	}
	return userID, telemetry.Track("api." + op), true
}

// Timeout derives a bounded context for store calls made by a handler.
func Timeout(ctx *fasthttp.RequestCtx, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}
