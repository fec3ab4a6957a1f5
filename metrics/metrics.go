// Package metrics records download and version table metrics for one CLI
// run and can dump them in the node-exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Download statuses used as the status label.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Recorder owns a private registry. A nil *Recorder discards everything.
type Recorder struct {
	reg *prometheus.Registry

	downloadsTotal         *prometheus.CounterVec
	downloadBytesTotal     prometheus.Counter
	tableRefreshDuration   prometheus.Histogram
	tableEntries           prometheus.Gauge
	tableRefreshErrorTotal prometheus.Counter
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		reg: reg,
		downloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vsmm_downloads_total",
				Help: "Mod downloads by outcome",
			},
			[]string{"status"},
		),
		downloadBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vsmm_download_bytes_total",
				Help: "Bytes of mod archives downloaded",
			},
		),
		tableRefreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vsmm_table_refresh_duration_seconds",
				Help:    "Time to fetch the game version table",
				Buckets: prometheus.DefBuckets,
			},
		),
		tableEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vsmm_table_entries",
				Help: "Rows in the current game version table",
			},
		),
		tableRefreshErrorTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vsmm_table_refresh_errors_total",
				Help: "Failed game version table refreshes",
			},
		),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

func (r *Recorder) RecordDownload(status string, bytes int) {
	if r == nil {
		return
	}
	r.downloadsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		r.downloadBytesTotal.Add(float64(bytes))
	}
}

func (r *Recorder) RecordTableRefresh(d time.Duration, entries int, err error) {
	if r == nil {
		return
	}
	r.tableRefreshDuration.Observe(d.Seconds())
	if err != nil {
		r.tableRefreshErrorTotal.Inc()
		return
	}
	r.tableEntries.Set(float64(entries))
}

// SetTableEntries reports the size of a table loaded from cache.
func (r *Recorder) SetTableEntries(n int) {
	if r == nil {
		return
	}
	r.tableEntries.Set(float64(n))
}

// WriteTextfile writes every metric to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
