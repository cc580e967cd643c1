package auth

import (
	"strings"

	"courier/pkg/config"
	"courier/pkg/router"
	"courier/pkg/state/logger"

	"github.com/valyala/fasthttp"
)

// caller role
type Role int

const (
	RoleUnauth Role = iota
	RoleUser
	RoleBackend
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleBackend:
		return "backend"
	case RoleAdmin:
		return "admin"
	default:
		return "unauth"
	}
}

// security config
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	BackendKeys    map[string]struct{}
	AdminKeys      map[string]struct{}
}

func SecConfigFrom(sc config.SecurityConfig) SecConfig {
	return SecConfig{
		AllowedOrigins: sc.CORS.AllowedOrigins,
		RPS:            sc.RateLimit.RPS,
		Burst:          sc.RateLimit.Burst,
		BackendKeys:    keySet(sc.APIKeys.Backend),
		AdminKeys:      keySet(sc.APIKeys.Admin),
	}
}

func keySet(keys []string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			m[k] = struct{}{}
		}
	}
	return m
}

const (
	userValueRole = "auth.role"
	userValueUser = "auth.user"
)

// RoleOf returns the role resolved by the gateway for this request.
func RoleOf(ctx *fasthttp.RequestCtx) Role {
	if r, ok := ctx.UserValue(userValueRole).(Role); ok {
		return r
	}
	return RoleUnauth
}

// UserID returns the user bound by a verified bearer token, or "".
func UserID(ctx *fasthttp.RequestCtx) string {
	if id, ok := ctx.UserValue(userValueUser).(string); ok {
		return id
	}
	return ""
}

// RequireRole rejects requests whose role is not listed.
func RequireRole(roles ...Role) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			role := RoleOf(ctx)
			for _, r := range roles {
				if r == role {
					next(ctx)
					return
				}
			}
			logger.Warn("request_forbidden", "role", role.String(), "path", string(ctx.Path()))
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
		}
	}
}
