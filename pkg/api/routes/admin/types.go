package admin

import (
	"context"

	"courier/internal/maintenance"
	"courier/pkg/store"
)

type StatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
}

type Pressure interface {
	DiskPressure() bool
	MemPressure() bool
}

type OnlineCounter interface {
	Count() int
}

type MaintenanceRunner interface {
	RunNow(ctx context.Context) (maintenance.Result, error)
}

type StatsResponse struct {
	store.Stats
	Online       int    `json:"online"`
	Disk         string `json:"disk"`
	DiskPressure bool   `json:"diskPressure"`
	MemPressure  bool   `json:"memPressure"`
}

type MaintenanceResponse struct {
	RunID     string `json:"runId"`
	Skipped   bool   `json:"skipped"`
	Duration  string `json:"duration,omitempty"`
	Reclaimed string `json:"reclaimed,omitempty"`
	Messages  string `json:"messages,omitempty"`
}
