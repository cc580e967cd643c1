package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"
)

const (
	defaultAddress = "0.0.0.0"
	defaultPort    = 8080
	defaultDBPath  = "./.database"

	// websocket defaults
	defaultWSReadBuffer     = 4 * 1024
	defaultWSWriteBuffer    = 4 * 1024
	defaultWSMaxMessageSize = 64 * 1024
	defaultWSPingInterval   = 25 * time.Second
	defaultWSPongWait       = 60 * time.Second
	defaultWSWriteWait      = 10 * time.Second
	defaultOutboxCapacity   = 256

	// security defaults
	defaultRateRPS         = 100
	defaultRateBurst       = 100
	defaultEventsRateRPS   = 20
	defaultEventsRateBurst = 40
	defaultTokenTTL        = time.Hour

	defaultStoreTimeout = 5 * time.Second

	// maintenance defaults
	defaultMaintenanceCron    = "0 3 * * *"
	defaultMaintenanceLockTTL = 300 * time.Second

	// telemetry defaults
	defaultTelemetrySampleRate = 0.001
	defaultTelemetrySlow       = 200 * time.Millisecond

	// sensor defaults
	defaultSensorPollInterval   = 2 * time.Second
	defaultSensorDiskHighPct    = 90
	defaultSensorDiskLowPct     = 80
	defaultSensorMemHighPct     = 90
	defaultSensorRecoveryWindow = 10 * time.Second
)

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = defaultAddress
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file. A missing file keeps the
// os.ErrNotExist in its chain.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ValidateConfig applies defaults to the effective config and fails fast on
// values that cannot work.
func ValidateConfig(eff EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}
	if strings.TrimSpace(eff.DBPath) == "" {
		return fmt.Errorf("database path is empty: set --db flag, COURIER_DB_PATH env, or server.db_path in config")
	}
	cfg.applyDefaults()

	if len(cfg.Security.SigningKeys) == 0 {
		return fmt.Errorf("no signing keys configured: set security.signing_keys or COURIER_SIGNING_KEYS")
	}
	for _, k := range cfg.Security.SigningKeys {
		if len(k) < 16 {
			return fmt.Errorf("signing key too short: need at least 16 characters")
		}
	}
	if cfg.Security.TokenTTL.Duration() < time.Minute {
		return fmt.Errorf("security.token_ttl must be at least 1m")
	}

	ws := cfg.Server.WebSocket
	if ws.PongWait.Duration() <= ws.PingInterval.Duration() {
		return fmt.Errorf("server.websocket.pong_wait (%s) must exceed ping_interval (%s)", ws.PongWait.Duration(), ws.PingInterval.Duration())
	}
	if ws.OutboxCapacity <= 0 {
		return fmt.Errorf("server.websocket.outbox_capacity must be > 0")
	}

	if cfg.Maintenance.Enabled {
		if !gronx.IsValid(cfg.Maintenance.Cron) {
			return fmt.Errorf("invalid maintenance.cron: %q", cfg.Maintenance.Cron)
		}
		if cfg.Maintenance.LockTTL.Duration() < time.Minute {
			return fmt.Errorf("maintenance.lock_ttl must be at least 1m")
		}
	}

	if r := cfg.Telemetry.SampleRate; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sample_rate must be within [0,1], got %v", r)
	}

	mon := cfg.Sensor.Monitor
	if mon.DiskLowPct >= mon.DiskHighPct {
		return fmt.Errorf("sensor.monitor.disk_low_pct (%d) must be below disk_high_pct (%d)", mon.DiskLowPct, mon.DiskHighPct)
	}
	return nil
}

func (c *Config) applyDefaults() {
	ws := &c.Server.WebSocket
	if ws.ReadBufferSize <= 0 {
		ws.ReadBufferSize = defaultWSReadBuffer
	}
	if ws.WriteBufferSize <= 0 {
		ws.WriteBufferSize = defaultWSWriteBuffer
	}
	if ws.MaxMessageSize <= 0 {
		ws.MaxMessageSize = defaultWSMaxMessageSize
	}
	if ws.PingInterval <= 0 {
		ws.PingInterval = Duration(defaultWSPingInterval)
	}
	if ws.PongWait <= 0 {
		ws.PongWait = Duration(defaultWSPongWait)
	}
	if ws.WriteWait <= 0 {
		ws.WriteWait = Duration(defaultWSWriteWait)
	}
	if ws.OutboxCapacity == 0 {
		ws.OutboxCapacity = defaultOutboxCapacity
	}

	sec := &c.Security
	if sec.RateLimit.RPS <= 0 {
		sec.RateLimit.RPS = defaultRateRPS
	}
	if sec.RateLimit.Burst <= 0 {
		sec.RateLimit.Burst = defaultRateBurst
	}
	if sec.EventsRateLimit.RPS <= 0 {
		sec.EventsRateLimit.RPS = defaultEventsRateRPS
	}
	if sec.EventsRateLimit.Burst <= 0 {
		sec.EventsRateLimit.Burst = defaultEventsRateBurst
	}
	if sec.TokenTTL <= 0 {
		sec.TokenTTL = Duration(defaultTokenTTL)
	}

	if c.Store.Timeout <= 0 {
		c.Store.Timeout = Duration(defaultStoreTimeout)
	}

	if strings.TrimSpace(c.Maintenance.Cron) == "" {
		c.Maintenance.Cron = defaultMaintenanceCron
	}
	if c.Maintenance.LockTTL <= 0 {
		c.Maintenance.LockTTL = Duration(defaultMaintenanceLockTTL)
	}

	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = defaultTelemetrySampleRate
	}
	if c.Telemetry.SlowThreshold <= 0 {
		c.Telemetry.SlowThreshold = Duration(defaultTelemetrySlow)
	}

	mon := &c.Sensor.Monitor
	if mon.PollInterval <= 0 {
		mon.PollInterval = Duration(defaultSensorPollInterval)
	}
	if mon.DiskHighPct <= 0 {
		mon.DiskHighPct = defaultSensorDiskHighPct
	}
	if mon.DiskLowPct <= 0 {
		mon.DiskLowPct = defaultSensorDiskLowPct
	}
	if mon.MemHighPct <= 0 {
		mon.MemHighPct = defaultSensorMemHighPct
	}
	if mon.RecoveryWindow <= 0 {
		mon.RecoveryWindow = Duration(defaultSensorRecoveryWindow)
	}

	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}
