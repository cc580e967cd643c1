package admin

import (
	"errors"

	"courier/internal/maintenance"
	"courier/pkg/router"
	"courier/pkg/state/logger"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"
)

// RunMaintenance triggers a flush and compaction outside the schedule.
func (h *Handlers) RunMaintenance(ctx *fasthttp.RequestCtx) {
	if h.jobs == nil {
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "maintenance not configured")
		return
	}
	res, err := h.jobs.RunNow(ctx)
	switch {
	case errors.Is(err, maintenance.ErrAlreadyRunning):
		router.WriteJSONError(ctx, fasthttp.StatusConflict, err.Error())
		return
	case err != nil:
		logger.Error("maintenance_trigger_failed", "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "maintenance failed")
		return
	}

	out := MaintenanceResponse{RunID: res.RunID, Skipped: res.Skipped}
	if !res.Skipped {
		out.Duration = res.Duration.String()
		out.Messages = humanize.Comma(int64(res.After.Messages))
		if n := res.Reclaimed(); n >= 0 {
			out.Reclaimed = humanize.IBytes(uint64(n))
		} else {
			out.Reclaimed = "-" + humanize.IBytes(uint64(-n))
		}
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, out)
}
