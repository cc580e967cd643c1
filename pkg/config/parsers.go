package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
)

const envPrefix = "COURIER_"

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EnvResult records whether any environment override was present and
// which ones could not be parsed.
type EnvResult struct {
	EnvUsed bool
	Keys    []string
	Invalid []string
}

// EffectiveConfigResult is the merged config plus its resolved address and db path.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// ParseConfigFlags parses the three server flags from args.
func ParseConfigFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("courier", flag.ContinueOnError)
	addrPtr := fs.String("addr", ":8080", "HTTP listen address")
	dbPtr := fs.String("db", defaultDBPath, "Pebble DB path")
	cfgPtr := fs.String("config", "./config.yaml", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}, nil
}

// ResolveConfigPath prefers an explicit flag, then COURIER_CONFIG, then the flag default.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG")); p != "" {
		return p
	}
	return flagPath
}

// ParseConfigFile loads the config file; a missing file is not an error.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs loads COURIER_* variables into a new Config.
func ParseConfigEnvs() (*Config, EnvResult) {
	envs := map[string]string{}
	for _, k := range []string{
		"SERVER_ADDR", "ADDR", "SERVER_ADDRESS", "SERVER_PORT", "DB_PATH",
		"CORS_ORIGINS", "RATE_RPS", "RATE_BURST", "EVENTS_RATE_RPS", "EVENTS_RATE_BURST",
		"API_BACKEND_KEYS", "API_ADMIN_KEYS", "SIGNING_KEYS", "TOKEN_TTL",
		"WS_MAX_MESSAGE_SIZE", "WS_PING_INTERVAL", "WS_PONG_WAIT", "WS_WRITE_WAIT", "WS_OUTBOX_CAPACITY",
		"STORE_TIMEOUT",
		"MAINTENANCE_ENABLED", "MAINTENANCE_CRON", "MAINTENANCE_LOCK_TTL",
		"TELEMETRY_SAMPLE_RATE", "TELEMETRY_SLOW_THRESHOLD",
		"SENSOR_MONITOR_POLL_INTERVAL", "SENSOR_MONITOR_DISK_HIGH_PCT", "SENSOR_MONITOR_DISK_LOW_PCT",
		"SENSOR_MONITOR_MEM_HIGH_PCT", "SENSOR_MONITOR_RECOVERY_WINDOW",
		"LOG_LEVEL",
	} {
		if v := os.Getenv(envPrefix + k); v != "" {
			envs[k] = v
		}
	}

	res := EnvResult{EnvUsed: len(envs) > 0}
	for k := range envs {
		res.Keys = append(res.Keys, envPrefix+k)
	}
	res.Invalid = invalidEnvs(envs)
	envCfg := &Config{}

	parseList := func(v string) []string {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}
	parseBool := func(v string) bool {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			return true
		default:
			return false
		}
	}
	parseInt := func(v string) int {
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	parseFloat := func(v string) float64 {
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	}
	parseDur := func(v string) Duration {
		d, _ := parseDuration(v)
		return d
	}

	applyAddr := func(v string) {
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			envCfg.Server.Port = parseInt(p)
			return
		}
		envCfg.Server.Address = v
	}
	if v := envs["SERVER_ADDR"]; v != "" {
		applyAddr(v)
	} else if v := envs["ADDR"]; v != "" {
		applyAddr(v)
	} else {
		if host := envs["SERVER_ADDRESS"]; host != "" {
			envCfg.Server.Address = host
		}
		if port := envs["SERVER_PORT"]; port != "" {
			envCfg.Server.Port = parseInt(port)
		}
	}
	if v := envs["DB_PATH"]; v != "" {
		envCfg.Server.DBPath = v
	}

	if v := envs["CORS_ORIGINS"]; v != "" {
		envCfg.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v := envs["RATE_RPS"]; v != "" {
		envCfg.Security.RateLimit.RPS = parseFloat(v)
	}
	if v := envs["RATE_BURST"]; v != "" {
		envCfg.Security.RateLimit.Burst = parseInt(v)
	}
	if v := envs["EVENTS_RATE_RPS"]; v != "" {
		envCfg.Security.EventsRateLimit.RPS = parseFloat(v)
	}
	if v := envs["EVENTS_RATE_BURST"]; v != "" {
		envCfg.Security.EventsRateLimit.Burst = parseInt(v)
	}
	if v := envs["API_BACKEND_KEYS"]; v != "" {
		envCfg.Security.APIKeys.Backend = parseList(v)
	}
	if v := envs["API_ADMIN_KEYS"]; v != "" {
		envCfg.Security.APIKeys.Admin = parseList(v)
	}
	if v := envs["SIGNING_KEYS"]; v != "" {
		envCfg.Security.SigningKeys = parseList(v)
	}
	if v := envs["TOKEN_TTL"]; v != "" {
		envCfg.Security.TokenTTL = parseDur(v)
	}

	ws := &envCfg.Server.WebSocket
	if v := envs["WS_MAX_MESSAGE_SIZE"]; v != "" {
		ws.MaxMessageSize, _ = parseSize(v)
	}
	if v := envs["WS_PING_INTERVAL"]; v != "" {
		ws.PingInterval = parseDur(v)
	}
	if v := envs["WS_PONG_WAIT"]; v != "" {
		ws.PongWait = parseDur(v)
	}
	if v := envs["WS_WRITE_WAIT"]; v != "" {
		ws.WriteWait = parseDur(v)
	}
	if v := envs["WS_OUTBOX_CAPACITY"]; v != "" {
		ws.OutboxCapacity = parseInt(v)
	}

	if v := envs["STORE_TIMEOUT"]; v != "" {
		envCfg.Store.Timeout = parseDur(v)
	}

	if v := envs["MAINTENANCE_ENABLED"]; v != "" {
		envCfg.Maintenance.Enabled = parseBool(v)
	}
	if v := envs["MAINTENANCE_CRON"]; v != "" {
		envCfg.Maintenance.Cron = v
	}
	if v := envs["MAINTENANCE_LOCK_TTL"]; v != "" {
		envCfg.Maintenance.LockTTL = parseDur(v)
	}

	if v := envs["TELEMETRY_SAMPLE_RATE"]; v != "" {
		envCfg.Telemetry.SampleRate = parseFloat(v)
	}
	if v := envs["TELEMETRY_SLOW_THRESHOLD"]; v != "" {
		envCfg.Telemetry.SlowThreshold = parseDur(v)
	}

	mon := &envCfg.Sensor.Monitor
	if v := envs["SENSOR_MONITOR_POLL_INTERVAL"]; v != "" {
		mon.PollInterval = parseDur(v)
	}
	if v := envs["SENSOR_MONITOR_DISK_HIGH_PCT"]; v != "" {
		mon.DiskHighPct = parseInt(v)
	}
	if v := envs["SENSOR_MONITOR_DISK_LOW_PCT"]; v != "" {
		mon.DiskLowPct = parseInt(v)
	}
	if v := envs["SENSOR_MONITOR_MEM_HIGH_PCT"]; v != "" {
		mon.MemHighPct = parseInt(v)
	}
	if v := envs["SENSOR_MONITOR_RECOVERY_WINDOW"]; v != "" {
		mon.RecoveryWindow = parseDur(v)
	}

	if v := envs["LOG_LEVEL"]; v != "" {
		envCfg.Logging.Level = v
	}
	return envCfg, res
}

var envKinds = map[string]string{
	"SERVER_PORT":                    "int",
	"RATE_RPS":                       "float",
	"RATE_BURST":                     "int",
	"EVENTS_RATE_RPS":                "float",
	"EVENTS_RATE_BURST":              "int",
	"TOKEN_TTL":                      "duration",
	"WS_MAX_MESSAGE_SIZE":            "size",
	"WS_PING_INTERVAL":               "duration",
	"WS_PONG_WAIT":                   "duration",
	"WS_WRITE_WAIT":                  "duration",
	"WS_OUTBOX_CAPACITY":             "int",
	"STORE_TIMEOUT":                  "duration",
	"MAINTENANCE_LOCK_TTL":           "duration",
	"TELEMETRY_SAMPLE_RATE":          "float",
	"TELEMETRY_SLOW_THRESHOLD":       "duration",
	"SENSOR_MONITOR_POLL_INTERVAL":   "duration",
	"SENSOR_MONITOR_DISK_HIGH_PCT":   "int",
	"SENSOR_MONITOR_DISK_LOW_PCT":    "int",
	"SENSOR_MONITOR_MEM_HIGH_PCT":    "int",
	"SENSOR_MONITOR_RECOVERY_WINDOW": "duration",
}

// lists typed variables whose values do not parse, sorted by name
func invalidEnvs(envs map[string]string) []string {
	var bad []string
	for k, kind := range envKinds {
		v, ok := envs[k]
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		var err error
		switch kind {
		case "int":
			_, err = strconv.Atoi(v)
		case "float":
			_, err = strconv.ParseFloat(v, 64)
		case "duration":
			_, err = parseDuration(v)
		case "size":
			_, err = parseSize(v)
		}
		if err != nil {
			bad = append(bad, fmt.Sprintf("%s%s=%q", envPrefix, k, v))
		}
	}
	sort.Strings(bad)
	return bad
}

// LoadEffectiveConfig decides which source wins. An explicit --config uses
// the file only. Otherwise the file (if present) or env supplies the base and
// --addr/--db override it.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		return resolved(fileCfg, "config"), nil
	}

	base, source := envCfg, "env"
	if !envRes.EnvUsed {
		source = "defaults"
	}
	if fileExists {
		base, source = fileCfg, "config"
	} else if len(envRes.Invalid) > 0 {
		return res, fmt.Errorf("invalid environment values: %s", strings.Join(envRes.Invalid, ", "))
	}
	if base == nil {
		base = &Config{}
	}

	if flags.Set["addr"] || flags.Set["db"] {
		if flags.Set["addr"] {
			host, port, err := net.SplitHostPort(flags.Addr)
			if err != nil {
				return res, fmt.Errorf("invalid --addr %q: %w", flags.Addr, err)
			}
			base.Server.Address = host
			base.Server.Port = parsePortFromAddr(flags.Addr)
			if port == "" {
				return res, fmt.Errorf("invalid --addr %q: missing port", flags.Addr)
			}
		}
		if flags.Set["db"] {
			base.Server.DBPath = flags.DB
		}
		source = "flags"
	}
	if strings.TrimSpace(base.Server.DBPath) == "" {
		base.Server.DBPath = flags.DB
	}
	return resolved(base, source), nil
}

func resolved(cfg *Config, source string) EffectiveConfigResult {
	return EffectiveConfigResult{Config: cfg, Addr: cfg.Addr(), DBPath: cfg.Server.DBPath, Source: source}
}

// extracts port integer from host:port string
func parsePortFromAddr(a string) int {
	if a == "" {
		return 0
	}
	if _, p, err := net.SplitHostPort(a); err == nil {
		if pi, err := strconv.Atoi(p); err == nil {
			return pi
		}
	}
	return 0
}
