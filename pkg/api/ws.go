package api

import (
	"context"

	"courier/pkg/router"
	"courier/pkg/session"
	"courier/pkg/state/logger"
	"courier/pkg/transport"

	"github.com/valyala/fasthttp"
)

// websocketHandler upgrades /ws and runs a session on the connection.
// Authentication happens in-band with the first frame.
func websocketHandler(d Deps) fasthttp.RequestHandler {
	base := d.Context
	if base == nil {
		base = context.Background()
	}
	return func(ctx *fasthttp.RequestCtx) {
		if d.Upgrader == nil || !transport.IsWebSocketUpgrade(ctx) {
			router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "websocket upgrade required")
			return
		}
		remote := ctx.RemoteAddr().String()
		err := d.Upgrader.Upgrade(ctx, func(c *transport.Conn) {
			if d.Sessions != nil {
				if !d.Sessions.Enter() {
					_ = c.WriteClose(session.CloseGoingAway, "server shutting down")
					_ = c.Close()
					return
				}
				defer d.Sessions.Leave()
			}
			s := session.New(c, d.Session, d.SessionOptions)
			logger.Debug("session_opened", "conn_id", s.ID(), "remote", remote)
			s.Run(base)
		})
		if err != nil {
			logger.Warn("websocket_upgrade_failed", "remote", remote, "error", err)
		}
	}
}
