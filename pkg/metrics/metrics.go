package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "courier"

// label values for MessagesRouted
const (
	RouteOnline  = "online"
	RouteOffline = "offline"
)

var (
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "online_users",
		Help:      "Users with a registered connection.",
	})

	Sessions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions",
		Help:      "Open websocket sessions by state.",
	}, []string{"state"})

	MessagesRouted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_routed_total",
		Help:      "Persisted messages by whether the recipient was online.",
	}, []string{"route"})

	StatusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "Message status advances by target status.",
	}, []string{"status"})

	SendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "send_failures_total",
		Help:      "Sends that failed to persist.",
	})

	MessagesDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_deleted_total",
		Help:      "Messages tombstoned by global delete.",
	})

	MessagesForwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_forwarded_total",
		Help:      "Forward copies by outcome.",
	}, []string{"outcome"})

	DroppedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_events_total",
		Help:      "Inbound events dropped before reaching a handler.",
	}, []string{"reason"})

	OutboxOverflows = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_overflows_total",
		Help:      "Connections closed because their outbound queue filled.",
	})

	DiskPressure = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "disk_pressure",
		Help:      "1 while the sensor reports disk pressure.",
	})

	MemPressure = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mem_pressure",
		Help:      "1 while the sensor reports memory pressure.",
	})

	MaintenanceRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "maintenance_runs_total",
		Help:      "Maintenance job runs by result.",
	}, []string{"result"})

	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heap_alloc_bytes",
			Help:      "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)

	gcPauseTotal = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gc_pause_total_ns",
			Help:      "Total GC pause time in nanoseconds.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.PauseTotalNs)
		},
	)
)

func init() {
	prometheus.MustRegister(
		OnlineUsers,
		Sessions,
		MessagesRouted,
		StatusTransitions,
		SendFailures,
		MessagesDeleted,
		MessagesForwarded,
		DroppedEvents,
		OutboxOverflows,
		DiskPressure,
		MemPressure,
		MaintenanceRuns,
		heapAlloc,
		gcPauseTotal,
	)
}

// ObservePressure mirrors sensor flags into gauges.
func ObservePressure(disk, mem bool) {
	DiskPressure.Set(boolGauge(disk))
	MemPressure.Set(boolGauge(mem))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
