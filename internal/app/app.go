package app

import (
	"context"
	"fmt"

	"github.com/valyala/fasthttp"

	"courier/internal/maintenance"
	"courier/pkg/auth"
	"courier/pkg/config"
	"courier/pkg/delivery"
	"courier/pkg/moderation"
	"courier/pkg/presence"
	"courier/pkg/session"
	"courier/pkg/state"
	"courier/pkg/state/logger"
	"courier/pkg/state/sensor"
	"courier/pkg/status"
	"courier/pkg/store"
	"courier/pkg/telemetry"
	"courier/pkg/typing"
)

// App groups server state and components.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	store    *store.Store
	registry *presence.Registry
	signer   *auth.Signer
	engine   session.Deps

	httpLimiters  *auth.LimiterPool
	eventLimiters *auth.LimiterPool
	hwSensor      *sensor.Sensor
	maint         *maintenance.Manager
	maintCancel   context.CancelFunc

	srvFast        *fasthttp.Server
	sessions       session.Group
	sessionsCancel context.CancelFunc
	state          string
}

// New opens the store and builds the engine. It does not start the http
// server or background jobs; Run does.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	if err := config.ValidateConfig(eff); err != nil {
		return nil, err
	}
	cfg := eff.Config

	if state.PathsVar.Store == "" {
		return nil, fmt.Errorf("state paths not initialized")
	}
	st, err := store.Open(state.PathsVar.Store, store.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
	}
	if _, err := st.Migrate(context.Background()); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("store migration: %w", err)
	}

	if err := telemetry.Init(state.PathsVar.Tel, telemetry.Options{
		SampleRate:    cfg.Telemetry.SampleRate,
		SlowThreshold: cfg.Telemetry.SlowThreshold.Duration(),
	}); err != nil {
		logger.Warn("telemetry_unavailable", "error", err)
	}

	signer, err := auth.NewSigner(cfg.Security.SigningKeys, cfg.Security.TokenTTL.Duration(), nil)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	registry := presence.New(st, nil)
	pipeline := delivery.New(st, registry)
	eventLimiters := auth.NewLimiterPool(cfg.Security.EventsRateLimit.RPS, cfg.Security.EventsRateLimit.Burst)

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		store:     st,
		registry:  registry,
		signer:    signer,
		engine: session.Deps{
			Verifier:   signer,
			Presence:   registry,
			Delivery:   pipeline,
			Status:     status.New(st, registry),
			Typing:     typing.New(registry),
			Moderation: moderation.New(st, pipeline, registry),
			Limiter:    eventLimiters,
		},
		httpLimiters:  auth.NewLimiterPool(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst),
		eventLimiters: eventLimiters,
		maint:         maintenance.New(st, cfg.Maintenance, state.PathsVar.Maintenance),
		state:         "initialized",
	}
	mon := cfg.Sensor.Monitor
	a.hwSensor = sensor.NewSensor(sensor.MonitorConfig{
		Path:           state.PathsVar.Store,
		PollInterval:   mon.PollInterval.Duration(),
		DiskHighPct:    mon.DiskHighPct,
		DiskLowPct:     mon.DiskLowPct,
		MemHighPct:     mon.MemHighPct,
		RecoveryWindow: mon.RecoveryWindow.Duration(),
	})
	return a, nil
}

// Run starts background jobs and the http server, and blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	a.hwSensor.Start()
	a.maintCancel = a.maint.Start(ctx)

	// sessions outlive ctx until Shutdown closes them in order
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.sessionsCancel = cancel

	errCh := a.startHTTP(sessCtx)
	a.state = "running"
	logger.Info("server_started", "addr", a.eff.Addr, "db_path", a.eff.DBPath)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
