package api

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"courier/pkg/api/routes/admin"
	"courier/pkg/api/routes/backend"
	"courier/pkg/api/routes/frontend"
	"courier/pkg/auth"
	"courier/pkg/router"
	"courier/pkg/session"
	"courier/pkg/store"
	"courier/pkg/transport"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Deps are the engine parts exposed over HTTP.
type Deps struct {
	// Context bounds websocket sessions; cancelling it closes them.
	Context        context.Context
	Store          *store.Store
	Presence       OnlineDirectory
	Signer         *auth.Signer
	Session        session.Deps
	SessionOptions session.Options
	// Sessions, when set, tracks running websocket sessions and refuses
	// new ones once it drains.
	Sessions       *session.Group
	Upgrader       *transport.Upgrader
	Pressure       admin.Pressure
	Maintenance    admin.MaintenanceRunner
	Timeout        time.Duration
}

// OnlineDirectory is the presence view the HTTP surface reads.
type OnlineDirectory interface {
	IsOnline(userID string) bool
	Count() int
}

// wrapHTTPHandler wraps an http.Handler to work with fasthttp.
func wrapHTTPHandler(h http.Handler) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(h)
}

// RegisterRoutes wires all API routes onto the provided router.
func RegisterRoutes(r *router.Router, d Deps) {
	users := auth.RequireRole(auth.RoleUser)
	backends := auth.RequireRole(auth.RoleBackend, auth.RoleAdmin)
	admins := auth.RequireRole(auth.RoleAdmin)

	fe := frontend.New(d.Store, d.Presence, d.Timeout)
	be := backend.New(d.Signer, d.Store, d.Timeout)
	ad := admin.New(d.Store, d.Presence, d.Pressure, d.Maintenance, d.Timeout)

	// health
	r.GET("/healthz", Health)
	r.GET("/readyz", readiness(d))

	// real-time
	r.GET("/ws", websocketHandler(d))

	// user routes
	r.GET("/v1/messages/{userId}", users(fe.ReadHistory))
	r.GET("/v1/users", users(fe.ReadContacts))
	r.GET("/v1/users/{userId}", users(fe.ReadUser))
	r.POST("/v1/contacts/find", users(fe.FindContacts))
	r.GET("/v1/profile", users(fe.ReadProfile))
	r.PUT("/v1/profile", users(fe.UpdateProfile))

	// backend routes
	r.POST("/v1/users", backends(be.CreateUser))
	r.POST("/v1/sign", backends(be.Sign))

	// admin routes
	r.GET("/admin/stats", admins(ad.Stats))
	r.POST("/admin/jobs/maintenance", admins(ad.RunMaintenance))
	r.GET("/admin/debug/prometheus", admins(wrapHTTPHandler(promhttp.Handler())))
	r.GET("/admin/debug/pprof/*", admins(profiler))
}

// Handler returns the fasthttp handler for the courier API.
func Handler(d Deps) fasthttp.RequestHandler {
	r := router.New()
	RegisterRoutes(r, d)
	return r.Handler
}

func Health(ctx *fasthttp.RequestCtx) {
	router.WriteJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok", "service": "courier"})
}

func readiness(d Deps) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		switch {
		case d.Store == nil || !d.Store.Ready():
			router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "store not ready")
		case d.Pressure != nil && d.Pressure.DiskPressure():
			router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "disk pressure")
		default:
			router.WriteJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ready"})
		}
	}
}

var pprofHandlers = map[string]http.Handler{
	"":        http.HandlerFunc(pprof.Index),
	"cmdline": http.HandlerFunc(pprof.Cmdline),
	"profile": http.HandlerFunc(pprof.Profile),
	"symbol":  http.HandlerFunc(pprof.Symbol),
	"trace":   http.HandlerFunc(pprof.Trace),
}

// profiler serves net/http/pprof under /admin/debug/pprof/.
func profiler(ctx *fasthttp.RequestCtx) {
	name := router.PathParam(ctx, "*")
	h, ok := pprofHandlers[name]
	if !ok {
		h = pprof.Handler(name)
	}
	wrapHTTPHandler(h)(ctx)
}
