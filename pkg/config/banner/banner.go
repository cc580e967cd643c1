package banner

import (
	"fmt"

	"courier/pkg/config"
)

const banner = `
  ___ ___  _   _ ___ ___ ___ ___ 
 / __/ _ \| | | | _ \_ _| __| _ \
| (_| (_) | |_| |   /| || _||   /
 \___\___/ \___/|_|_\___|___|_|_\
`

// PrintWithEff prints the banner and a production readiness checklist.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	if eff.Config == nil {
		return
	}
	cfg := eff.Config
	fmt.Println("\n== Production? =================================================")
	if n := len(cfg.Security.APIKeys.Backend); n > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", n)
	} else {
		fmt.Println("- Backend API keys: MISSING (required to create users and mint tokens)")
	}
	if n := len(cfg.Security.APIKeys.Admin); n > 0 {
		fmt.Printf("- Admin API keys: OK (%d)\n", n)
	} else {
		fmt.Println("- Admin API keys: MISSING (admin stats and metrics disabled)")
	}
	fmt.Printf("- Signing keys: %d (token ttl %s)\n", len(cfg.Security.SigningKeys), cfg.Security.TokenTTL.Duration())
	fmt.Printf("- WebSocket: max frame %s, outbox %d\n", cfg.Server.WebSocket.MaxMessageSize, cfg.Server.WebSocket.OutboxCapacity)
	if cfg.Maintenance.Enabled {
		fmt.Printf("- Maintenance: enabled (cron=%s)\n", cfg.Maintenance.Cron)
	} else {
		fmt.Println("- Maintenance: disabled")
	}
	fmt.Println()
}
