package admin

import (
	"time"

	"courier/pkg/api/routes/common"
	"courier/pkg/router"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"
)

type Handlers struct {
	stats    StatsSource
	online   OnlineCounter
	pressure Pressure
	jobs     MaintenanceRunner
	timeout  time.Duration
}

// New builds the admin handlers; pressure and jobs may be nil.
func New(stats StatsSource, online OnlineCounter, pressure Pressure, jobs MaintenanceRunner, timeout time.Duration) *Handlers {
	return &Handlers{stats: stats, online: online, pressure: pressure, jobs: jobs, timeout: timeout}
}

func (h *Handlers) Stats(ctx *fasthttp.RequestCtx) {
	c, cancel := common.Timeout(ctx, h.timeout)
	defer cancel()
	st, err := h.stats.Stats(c)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	out := StatsResponse{Stats: st, Online: h.online.Count(), Disk: humanize.IBytes(st.DiskBytes)}
	if h.pressure != nil {
		out.DiskPressure = h.pressure.DiskPressure()
		out.MemPressure = h.pressure.MemPressure()
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, out)
}
