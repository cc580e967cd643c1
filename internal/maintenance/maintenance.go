// Package maintenance flushes and compacts the store on a cron schedule.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"courier/pkg/config"
	"courier/pkg/metrics"
	"courier/pkg/state/logger"
	"courier/pkg/store"
	"courier/pkg/timeutil"

	"github.com/adhocore/gronx"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

var ErrAlreadyRunning = errors.New("maintenance run already in progress")

type Store interface {
	Flush(ctx context.Context) error
	Compact(ctx context.Context) error
	Stats(ctx context.Context) (store.Stats, error)
}

// Result summarises one run. Skipped is set when another process holds
// the lease.
type Result struct {
	RunID    string        `json:"runId"`
	Skipped  bool          `json:"skipped"`
	Started  time.Time     `json:"startedAt"`
	Duration time.Duration `json:"durationNs"`
	Before   store.Stats   `json:"before"`
	After    store.Stats   `json:"after"`
}

// Reclaimed is the disk space freed by the run; negative when the store grew.
func (r Result) Reclaimed() int64 { return int64(r.Before.DiskBytes) - int64(r.After.DiskBytes) }

type Manager struct {
	store Store
	cfg   config.MaintenanceConfig
	lease *fileLease

	mu      sync.Mutex
	running bool
}

// New builds a manager whose lease file lives in dir.
func New(s Store, cfg config.MaintenanceConfig, dir string) *Manager {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = config.Duration(10 * time.Minute)
	}
	return &Manager{store: s, cfg: cfg, lease: newFileLease(dir)}
}

// Start schedules runs per the cron expression until ctx ends or the
// returned cancel func is called.
func (m *Manager) Start(ctx context.Context) context.CancelFunc {
	if !m.cfg.Enabled {
		logger.Info("maintenance_disabled")
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	logger.Info("maintenance_enabled", "cron", m.cfg.Cron)
	go m.scheduleLoop(ctx)
	return cancel
}

func (m *Manager) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(m.cfg.Cron, timeutil.Now(), false)
		if err != nil {
			logger.Error("maintenance_nexttick_failed", "cron", m.cfg.Cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		wait := time.Until(next)
		if wait < time.Second {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if _, err := m.RunNow(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				logger.Error("maintenance_run_error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunNow runs the job immediately unless a run is already in progress.
func (m *Manager) RunNow(ctx context.Context) (Result, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return Result{}, ErrAlreadyRunning
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	res, err := m.runOnce(ctx)
	switch {
	case err != nil:
		metrics.MaintenanceRuns.WithLabelValues("error").Inc()
	case res.Skipped:
		metrics.MaintenanceRuns.WithLabelValues("skipped").Inc()
	default:
		metrics.MaintenanceRuns.WithLabelValues("ok").Inc()
	}
	return res, err
}

func (m *Manager) runOnce(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString(), Started: timeutil.Now()}
	ttl := m.cfg.LockTTL.Duration()

	ok, err := m.lease.Acquire(res.RunID, ttl)
	if err != nil {
		return res, fmt.Errorf("lease acquire failed: %w", err)
	}
	if !ok {
		res.Skipped = true
		return res, nil
	}
	defer func() {
		if err := m.lease.Release(res.RunID); err != nil {
			logger.Error("maintenance_lease_release_error", "run_id", res.RunID, "error", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go m.heartbeat(runCtx, cancel, res.RunID, ttl)

	logger.Info("maintenance_run_start", "run_id", res.RunID)
	if res.Before, err = m.store.Stats(runCtx); err != nil {
		return res, fmt.Errorf("stats: %w", err)
	}
	if err := m.store.Flush(runCtx); err != nil {
		return res, fmt.Errorf("flush: %w", err)
	}
	if err := m.store.Compact(runCtx); err != nil {
		return res, fmt.Errorf("compact: %w", err)
	}
	if res.After, err = m.store.Stats(runCtx); err != nil {
		return res, fmt.Errorf("stats: %w", err)
	}
	res.Duration = timeutil.Now().Sub(res.Started)

	logger.AuditInfo("maintenance_run_done",
		"run_id", res.RunID,
		"duration", res.Duration.String(),
		"messages", humanize.Comma(int64(res.After.Messages)),
		"users", humanize.Comma(int64(res.After.Users)),
		"disk_before", humanize.IBytes(res.Before.DiskBytes),
		"disk_after", humanize.IBytes(res.After.DiskBytes),
		"compactions", res.After.Compactions,
	)
	return res, nil
}

// heartbeat renews the lease and aborts the run after repeated failures.
func (m *Manager) heartbeat(ctx context.Context, abort context.CancelFunc, owner string, ttl time.Duration) {
	const maxConsecutiveRenewFails = 3
	t := time.NewTicker(ttl / 3)
	defer t.Stop()
	var fails int
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := m.lease.Renew(owner, ttl); err != nil {
				fails++
				logger.Error("maintenance_lease_renew_failed", "run_id", owner, "error", err, "count", fails)
				if fails >= maxConsecutiveRenewFails {
					abort()
					return
				}
				continue
			}
			fails = 0
		}
	}
}
