package upload

import (
	"github.com/berthd/berth/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chunksReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "berth",
		Subsystem: "upload",
		Name:      "chunks_received_total",
		Help:      "Total number of chunk writes accepted",
	})

	bytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "berth",
		Subsystem: "upload",
		Name:      "bytes_received_total",
		Help:      "Total bytes written to part files",
	})

	mergesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "berth",
		Subsystem: "upload",
		Name:      "merges_total",
		Help:      "Total number of merge attempts",
	}, []string{"status"}) // status: "completed", "missing_chunk", "failed"

	mergeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "berth",
		Subsystem: "upload",
		Name:      "merge_duration_seconds",
		Help:      "Time spent assembling final artifacts",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	activeUploads = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "berth",
		Subsystem: "upload",
		Name:      "active_uploads",
		Help:      "Number of in-flight permit-holding operations",
	})

	lockRegistrySize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "berth",
		Subsystem: "upload",
		Name:      "file_locks",
		Help:      "Current number of entries in the file lock registry",
	})

	janitorRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "berth",
		Subsystem: "janitor",
		Name:      "runs_total",
		Help:      "Total number of janitor passes",
	})

	janitorFilesCleaned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "berth",
		Subsystem: "janitor",
		Name:      "temp_files_cleaned_total",
		Help:      "Total number of expired temp files deleted",
	})

	janitorBytesReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "berth",
		Subsystem: "janitor",
		Name:      "bytes_reclaimed_total",
		Help:      "Total bytes reclaimed by temp file cleanup",
	})
)

func init() {
	debug.Registry().MustRegister(
		chunksReceived,
		bytesReceived,
		mergesTotal,
		mergeDuration,
		activeUploads,
		lockRegistrySize,
		janitorRuns,
		janitorFilesCleaned,
		janitorBytesReclaimed,
	)
}
