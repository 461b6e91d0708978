package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Requests           *prometheus.CounterVec
	ProcessingSeconds  prometheus.Histogram
	Detections         prometheus.Counter
	UploadBytes        prometheus.Histogram
	DetectorInflight   prometheus.Gauge
	AdmissionWait      prometheus.Histogram
	AnalyticsEntries   prometheus.Gauge
	AnalyticsEvictions prometheus.Counter
	FeedClients        prometheus.Gauge

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyze_requests_total",
			Help:      "Footage analysis requests by outcome.",
		}, []string{"outcome"}),
		ProcessingSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detector_processing_seconds",
			Help:      "Wall-clock time spent in the detector per session.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		Detections: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debris_detections_total",
			Help:      "Debris boxes reported by the detector.",
		}),
		UploadBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_bytes",
			Help:      "Size of accepted uploads in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1<<20, 2, 9),
		}),
		DetectorInflight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "detector_inflight",
			Help:      "Detector invocations currently running.",
		}),
		AdmissionWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detector_admission_wait_seconds",
			Help:      "Time spent waiting for a detector slot.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		AnalyticsEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "analytics_entries",
			Help:      "Sessions currently held in the analytics store.",
		}),
		AnalyticsEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_evictions_total",
			Help:      "Analytics entries evicted by retention or size bound.",
		}),
		FeedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "analytics_feed_clients",
			Help:      "Connected analytics websocket clients.",
		}),
		stages: newStageWindow(256),
	}
}

func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) ObserveProcessing(d time.Duration, detections int) {
	if m == nil {
		return
	}
	m.ProcessingSeconds.Observe(d.Seconds())
	if detections > 0 {
		m.Detections.Add(float64(detections))
	}
}

func (m *Metrics) ObserveAdmissionWait(d time.Duration) {
	if m == nil {
		return
	}
	m.AdmissionWait.Observe(d.Seconds())
	m.stages.Observe(StageAdmissionWait, float64(d.Microseconds())/1000)
}

func (m *Metrics) DetectorStarted() {
	if m == nil {
		return
	}
	m.DetectorInflight.Inc()
}

func (m *Metrics) DetectorFinished() {
	if m == nil {
		return
	}
	m.DetectorInflight.Dec()
}

func (m *Metrics) ObserveUpload(bytes int64) {
	if m == nil {
		return
	}
	m.UploadBytes.Observe(float64(bytes))
}

func (m *Metrics) SetAnalyticsEntries(n int) {
	if m == nil {
		return
	}
	m.AnalyticsEntries.Set(float64(n))
}

func (m *Metrics) AnalyticsEvicted() {
	if m == nil {
		return
	}
	m.AnalyticsEvictions.Inc()
}

func (m *Metrics) FeedConnected() {
	if m == nil {
		return
	}
	m.FeedClients.Inc()
}

func (m *Metrics) FeedDisconnected() {
	if m == nil {
		return
	}
	m.FeedClients.Dec()
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	}
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
