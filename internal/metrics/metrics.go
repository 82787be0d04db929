package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the relay's metrics, registered on its own registry.
type Collector struct {
	registry *prometheus.Registry

	ReadingsTotal      *prometheus.CounterVec
	ReadingsRejected   *prometheus.CounterVec
	UploadsTotal       *prometheus.CounterVec
	UploadDuration     prometheus.Histogram
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPRequestSeconds *prometheus.HistogramVec
	RetentionDeleted   prometheus.Counter
}

func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		ReadingsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "readings_processed_total",
				Help:      "Raw readings turned into observations, by station and source",
			},
			[]string{"station", "source"},
		),
		ReadingsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "readings_rejected_total",
				Help:      "Raw readings refused, by reason",
			},
			[]string{"reason"},
		),
		UploadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Weather network uploads by status",
			},
			[]string{"status"},
		),
		UploadDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_duration_seconds",
				Help:      "Weather network upload latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method and status",
			},
			[]string{"method", "status"},
		),
		HTTPRequestSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method"},
		),
		RetentionDeleted: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retention_deleted_total",
				Help:      "Observations removed by the retention job",
			},
		),
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) RecordReading(station, source string) {
	c.ReadingsTotal.WithLabelValues(station, source).Inc()
}

func (c *Collector) RecordRejected(reason string) {
	c.ReadingsRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordUpload(status string, d time.Duration) {
	c.UploadsTotal.WithLabelValues(status).Inc()
	c.UploadDuration.Observe(d.Seconds())
}

func (c *Collector) RecordHTTP(method string, status int, d time.Duration) {
	c.HTTPRequestsTotal.WithLabelValues(method, http.StatusText(status)).Inc()
	c.HTTPRequestSeconds.WithLabelValues(method).Observe(d.Seconds())
}

func (c *Collector) RecordRetention(deleted int64) {
	c.RetentionDeleted.Add(float64(deleted))
}
