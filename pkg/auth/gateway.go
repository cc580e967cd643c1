package auth

import (
	"net"
	"strings"

	"courier/pkg/apperr"
	"courier/pkg/router"
	"courier/pkg/state/logger"

	"github.com/valyala/fasthttp"
)

// public endpoints; /ws authenticates in-band
var publicPaths = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
	"/ws":      {},
}

// AuthenticateRequestMiddlewareFast resolves the caller role from an API
// key or a user bearer token, applies CORS and the per-caller rate limit.
func AuthenticateRequestMiddlewareFast(cfg SecConfig, signer *Signer, limiters *LimiterPool) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			logger.LogRequestFast(ctx)

			origin := string(ctx.Request.Header.Peek("Origin"))
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
				ctx.Response.Header.Set("Vary", "Origin")
				ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
				ctx.Response.Header.Set("Access-Control-Max-Age", "600")
				ctx.Response.Header.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key")
			}
			if string(ctx.Method()) == fasthttp.MethodOptions {
				ctx.SetStatusCode(fasthttp.StatusNoContent)
				return
			}

			if _, ok := publicPaths[string(ctx.Path())]; ok && string(ctx.Method()) == fasthttp.MethodGet {
				if !limiters.Allow(clientIPFast(ctx)) {
					router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
					return
				}
				next(ctx)
				return
			}

			role, userID, limitKey, err := authenticateFast(ctx, cfg, signer)
			if err != nil {
				logger.Warn("request_unauthorized", "path", string(ctx.Path()), "remote", ctx.RemoteAddr().String(), "error", err)
				router.WriteError(ctx, err)
				return
			}
			if !limiters.Allow(limitKey) {
				logger.Warn("rate_limited", "role", role.String(), "path", string(ctx.Path()))
				router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			ctx.SetUserValue(userValueRole, role)
			if userID != "" {
				ctx.SetUserValue(userValueUser, userID)
			}
			logger.Debug("request_allowed", "method", string(ctx.Method()), "path", string(ctx.Path()), "role", role.String())
			next(ctx)
		}
	}
}

func authenticateFast(ctx *fasthttp.RequestCtx, cfg SecConfig, signer *Signer) (Role, string, string, error) {
	key := ExtractCredential(ctx)
	if key == "" {
		return RoleUnauth, "", "", apperr.Auth("auth.gateway", "unauthorized")
	}
	if _, ok := cfg.AdminKeys[key]; ok {
		return RoleAdmin, "", key, nil
	}
	if _, ok := cfg.BackendKeys[key]; ok {
		return RoleBackend, "", key, nil
	}
	if signer == nil {
		return RoleUnauth, "", "", apperr.Auth("auth.gateway", "unauthorized")
	}
	userID, err := signer.Verify(key)
	if err != nil {
		return RoleUnauth, "", "", err
	}
	return RoleUser, userID, "user:" + userID, nil
}

// ExtractCredential reads "Authorization: Bearer <x>" or X-API-Key.
func ExtractCredential(ctx *fasthttp.RequestCtx) string {
	if parts := strings.Fields(string(ctx.Request.Header.Peek("Authorization"))); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return strings.TrimSpace(string(ctx.Request.Header.Peek("X-API-Key")))
}

func clientIPFast(ctx *fasthttp.RequestCtx) string {
	host := ctx.RemoteAddr().String()
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// OriginAllowed is the websocket upgrade origin check. An empty allow
// list accepts only requests without an Origin header.
func OriginAllowed(cfg SecConfig) func(*fasthttp.RequestCtx) bool {
	return func(ctx *fasthttp.RequestCtx) bool {
		origin := string(ctx.Request.Header.Peek("Origin"))
		return origin == "" || originAllowed(origin, cfg.AllowedOrigins)
	}
}
