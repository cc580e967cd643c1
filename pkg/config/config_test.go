package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  address: 127.0.0.1
  port: 9090
  db_path: /tmp/courier-db
  websocket:
    max_message_size: 128KiB
    ping_interval: 10s
    pong_wait: 30
security:
  signing_keys: ["0123456789abcdef0123"]
  api_keys:
    backend: ["be-key"]
  token_ttl: 2h
maintenance:
  enabled: true
  cron: "*/5 * * * *"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadConfigFileParsesCustomTypes(t *testing.T) {
	cfg, err := LoadConfigFile(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
	assert.Equal(t, SizeBytes(128*1024), cfg.Server.WebSocket.MaxMessageSize)
	assert.Equal(t, 10*time.Second, cfg.Server.WebSocket.PingInterval.Duration())
	assert.Equal(t, 30*time.Second, cfg.Server.WebSocket.PongWait.Duration())
	assert.Equal(t, 2*time.Hour, cfg.Security.TokenTTL.Duration())
}

func TestParseConfigFileMissingIsNotError(t *testing.T) {
	flags, err := ParseConfigFlags([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")})
	require.NoError(t, err)
	cfg, found, err := ParseConfigFile(flags)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NotNil(t, cfg)
}

func TestValidateConfigAppliesDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Security.SigningKeys = []string{"0123456789abcdef"}
	eff := EffectiveConfigResult{Config: cfg, DBPath: "/tmp/db"}
	require.NoError(t, ValidateConfig(eff))

	assert.Equal(t, defaultOutboxCapacity, cfg.Server.WebSocket.OutboxCapacity)
	assert.Equal(t, defaultWSPingInterval, cfg.Server.WebSocket.PingInterval.Duration())
	assert.Equal(t, defaultMaintenanceCron, cfg.Maintenance.Cron)
	assert.Equal(t, float64(defaultEventsRateRPS), cfg.Security.EventsRateLimit.RPS)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidateConfigRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"no signing keys": func(c *Config) { c.Security.SigningKeys = nil },
		"short key":       func(c *Config) { c.Security.SigningKeys = []string{"short"} },
		"bad cron": func(c *Config) {
			c.Maintenance.Enabled = true
			c.Maintenance.Cron = "every day"
		},
		"pong before ping": func(c *Config) {
			c.Server.WebSocket.PingInterval = Duration(time.Minute)
			c.Server.WebSocket.PongWait = Duration(time.Second)
		},
		"sample rate": func(c *Config) { c.Telemetry.SampleRate = 2 },
		"disk pcts": func(c *Config) {
			c.Sensor.Monitor.DiskHighPct = 50
			c.Sensor.Monitor.DiskLowPct = 70
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Security.SigningKeys = []string{"0123456789abcdef"}
			mutate(cfg)
			if err := ValidateConfig(EffectiveConfigResult{Config: cfg, DBPath: "/tmp/db"}); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	if err := ValidateConfig(EffectiveConfigResult{Config: &Config{}}); err == nil {
		t.Fatalf("expected error for empty db path")
	}
}

func TestParseConfigEnvs(t *testing.T) {
	t.Setenv("COURIER_SERVER_ADDR", "10.0.0.1:7000")
	t.Setenv("COURIER_SIGNING_KEYS", "aaaaaaaaaaaaaaaa, bbbbbbbbbbbbbbbb")
	t.Setenv("COURIER_WS_MAX_MESSAGE_SIZE", "1MB")
	t.Setenv("COURIER_MAINTENANCE_ENABLED", "yes")
	t.Setenv("COURIER_TOKEN_TTL", "90")

	cfg, res := ParseConfigEnvs()
	assert.True(t, res.EnvUsed)
	assert.Equal(t, "10.0.0.1", cfg.Server.Address)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, []string{"aaaaaaaaaaaaaaaa", "bbbbbbbbbbbbbbbb"}, cfg.Security.SigningKeys)
	assert.Equal(t, SizeBytes(1000*1000), cfg.Server.WebSocket.MaxMessageSize)
	assert.True(t, cfg.Maintenance.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Security.TokenTTL.Duration())
}

func TestInvalidEnvValuesAreRejected(t *testing.T) {
	t.Setenv("COURIER_DB_PATH", "/env/db")
	t.Setenv("COURIER_WS_MAX_MESSAGE_SIZE", "lots")
	t.Setenv("COURIER_TOKEN_TTL", "soon")

	cfg, res := ParseConfigEnvs()
	assert.Equal(t, []string{`COURIER_TOKEN_TTL="soon"`, `COURIER_WS_MAX_MESSAGE_SIZE="lots"`}, res.Invalid)

	flags, _ := ParseConfigFlags(nil)
	_, err := LoadEffectiveConfig(flags, nil, false, cfg, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COURIER_WS_MAX_MESSAGE_SIZE")
}

func TestLoadEffectiveConfigPrecedence(t *testing.T) {
	fileCfg, err := LoadConfigFile(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	envCfg := &Config{}
	envCfg.Server.DBPath = "/env/db"

	// file wins over env when present
	flags, _ := ParseConfigFlags(nil)
	eff, err := LoadEffectiveConfig(flags, fileCfg, true, envCfg, EnvResult{EnvUsed: true})
	require.NoError(t, err)
	assert.Equal(t, "config", eff.Source)
	assert.Equal(t, "/tmp/courier-db", eff.DBPath)

	// flags override the chosen base
	flags, _ = ParseConfigFlags([]string{"--addr", ":7070", "--db", "/flag/db"})
	eff, err = LoadEffectiveConfig(flags, fileCfg, true, envCfg, EnvResult{EnvUsed: true})
	require.NoError(t, err)
	assert.Equal(t, "flags", eff.Source)
	assert.Equal(t, "/flag/db", eff.DBPath)
	assert.Equal(t, "0.0.0.0:7070", eff.Addr)
	assert.Equal(t, []string{"0123456789abcdef0123"}, eff.Config.Security.SigningKeys)

	// explicit --config with a missing file fails
	flags, _ = ParseConfigFlags([]string{"--config", "/missing.yaml"})
	_, err = LoadEffectiveConfig(flags, &Config{}, false, envCfg, EnvResult{})
	assert.Error(t, err)

	// nothing set: env base, labelled defaults, flag default db
	flags, _ = ParseConfigFlags(nil)
	eff, err = LoadEffectiveConfig(flags, &Config{}, false, &Config{}, EnvResult{})
	require.NoError(t, err)
	assert.Equal(t, "defaults", eff.Source)
	assert.Equal(t, defaultDBPath, eff.DBPath)
}
