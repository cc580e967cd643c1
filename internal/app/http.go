package app

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"courier/pkg/api"
	"courier/pkg/auth"
	"courier/pkg/config/banner"
	"courier/pkg/router"
	"courier/pkg/session"
	"courier/pkg/transport"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

// handler builds the routed, authenticated request handler.
func (a *App) handler(sessCtx context.Context) fasthttp.RequestHandler {
	cfg := a.eff.Config
	secCfg := auth.SecConfigFrom(cfg.Security)
	ws := cfg.Server.WebSocket

	r := router.New()
	api.RegisterRoutes(r, api.Deps{
		Context:  sessCtx,
		Store:    a.store,
		Presence: a.registry,
		Signer:   a.signer,
		Session:  a.engine,
		SessionOptions: session.Options{
			OutboxCapacity: ws.OutboxCapacity,
			PingInterval:   ws.PingInterval.Duration(),
			StoreTimeout:   cfg.Store.Timeout.Duration(),
		},
		Sessions:    &a.sessions,
		Upgrader:    transport.NewUpgrader(transport.OptionsFrom(ws), auth.OriginAllowed(secCfg)),
		Pressure:    a.hwSensor,
		Maintenance: a.maint,
		Timeout:     cfg.Store.Timeout.Duration(),
	})
	return auth.AuthenticateRequestMiddlewareFast(secCfg, a.signer, a.httpLimiters)(r.Handler)
}

// startHTTP builds and starts the fasthttp server, returning a channel that delivers errors.
func (a *App) startHTTP(sessCtx context.Context) <-chan error {
	const (
		readBufferSize       = 64 * 1024        // 64 KiB read buffer per connection
		maxRequestBodySize   = 2 * 1024 * 1024  // 2 MiB max request body
		readTimeout          = 10 * time.Second // timeout for reading request
		writeTimeout         = 10 * time.Second // timeout for writing response
		idleTimeout          = 30 * time.Second // max keep-alive idle duration per connection
		maxKeepaliveDuration = 2 * time.Minute  // max duration for keep-alive connection
	)
	a.srvFast = &fasthttp.Server{
		Name:                 "courier",
		Handler:              a.handler(sessCtx),
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   maxRequestBodySize,
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	errCh := make(chan error, 1)
	go func() {
		// plain TCP; TLS terminates at a proxy
		errCh <- a.srvFast.ListenAndServe(a.eff.Addr)
	}()
	return errCh
}
