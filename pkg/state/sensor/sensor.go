package sensor

import (
	"runtime"
	"sync"
	"time"

	"courier/pkg/metrics"
	"courier/pkg/state/logger"
	"courier/pkg/timeutil"

	"golang.org/x/sys/unix"
)

// Sensor polls disk and heap usage and raises pressure flags with
// hysteresis: a flag set above the high mark clears only after usage stays
// below the low mark for the recovery window.
type Sensor struct {
	config   MonitorConfig
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.Mutex
	diskAlert     bool
	memAlert      bool
	diskBelowFrom time.Time
	memBelowFrom  time.Time
	lastDiskPct   float64
	lastMemPct    float64

	probe probe
}

type MonitorConfig struct {
	Path           string
	PollInterval   time.Duration
	DiskHighPct    int
	DiskLowPct     int
	MemHighPct     int
	RecoveryWindow time.Duration
}

type probe interface {
	diskUsedPct(path string) (float64, error)
	memUsedPct() float64
}

type systemProbe struct{}

func (systemProbe) diskUsedPct(path string) (float64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	available := stat.Bavail * uint64(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)
	if total == 0 {
		return 0, nil
	}
	return float64(total-available) / float64(total) * 100, nil
}

func (systemProbe) memUsedPct() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapSys == 0 {
		return 0
	}
	return float64(m.HeapInuse) / float64(m.HeapSys) * 100
}

func NewSensor(config MonitorConfig) *Sensor {
	if config.Path == "" {
		config.Path = "/"
	}
	return &Sensor{config: config, stopCh: make(chan struct{}), probe: systemProbe{}}
}

func (s *Sensor) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Sensor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Sensor) run() {
	defer s.wg.Done()
	s.check()
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.check()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sensor) check() {
	now := timeutil.Now()
	used, err := s.probe.diskUsedPct(s.config.Path)
	mem := s.probe.memUsedPct()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		logger.Error("disk_stat_failed", "path", s.config.Path, "error", err)
	} else {
		s.lastDiskPct = used
		s.diskAlert, s.diskBelowFrom = s.evaluate("disk", used, s.diskAlert, s.diskBelowFrom,
			float64(s.config.DiskHighPct), float64(s.config.DiskLowPct), now)
	}

	s.lastMemPct = mem
	s.memAlert, s.memBelowFrom = s.evaluate("memory", mem, s.memAlert, s.memBelowFrom,
		float64(s.config.MemHighPct), float64(s.config.MemHighPct), now)
	metrics.ObservePressure(s.diskAlert, s.memAlert)
}

func (s *Sensor) evaluate(kind string, pct float64, alert bool, belowFrom time.Time, high, low float64, now time.Time) (bool, time.Time) {
	if pct > high {
		if !alert {
			logger.Warn(kind+"_usage_high", "usage_pct", pct, "threshold", high)
		}
		return true, time.Time{}
	}
	if !alert || pct >= low {
		return alert, time.Time{}
	}
	if belowFrom.IsZero() {
		return true, now
	}
	if now.Sub(belowFrom) >= s.config.RecoveryWindow {
		logger.Info(kind+"_usage_recovered", "usage_pct", pct, "threshold", low, "recovery_window", s.config.RecoveryWindow)
		return false, time.Time{}
	}
	return true, belowFrom
}

// DiskPressure reports whether the db volume is above the high mark.
func (s *Sensor) DiskPressure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diskAlert
}

func (s *Sensor) MemPressure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memAlert
}

// Usage returns the last sampled disk and heap percentages.
func (s *Sensor) Usage() (diskPct, memPct float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDiskPct, s.lastMemPct
}
