package app

import (
	"context"

	"courier/pkg/state/shutdown"
	"courier/pkg/telemetry"
)

// Shutdown stops accepting requests, closes live sessions so their
// lastSeen writes land, then stops background work and closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	err := shutdown.Run(ctx,
		shutdown.Step{Name: "http", Fn: func(ctx context.Context) error {
			if a.srvFast == nil {
				return nil
			}
			return a.srvFast.ShutdownWithContext(ctx)
		}},
		shutdown.Step{Name: "sessions", Fn: a.closeSessions},
		shutdown.Step{Name: "maintenance", Fn: func(context.Context) error {
			if a.maintCancel != nil {
				a.maintCancel()
			}
			return nil
		}},
		shutdown.Step{Name: "sensor", Fn: func(context.Context) error {
			a.hwSensor.Stop()
			return nil
		}},
		shutdown.Step{Name: "limiters", Fn: func(context.Context) error {
			a.httpLimiters.Stop()
			a.eventLimiters.Stop()
			return nil
		}},
		shutdown.Step{Name: "telemetry", Fn: func(context.Context) error {
			telemetry.Close()
			return nil
		}},
		shutdown.Step{Name: "store", Fn: func(context.Context) error {
			return a.store.Close()
		}},
	)
	if err == nil {
		a.state = "stopped"
	}
	return err
}

func (a *App) closeSessions(ctx context.Context) error {
	if a.sessionsCancel != nil {
		a.sessionsCancel()
	}
	return a.sessions.Drain(ctx)
}
