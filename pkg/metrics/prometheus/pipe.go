package prometheus

import (
	"time"

	"github.com/marmos91/turbopipe/pkg/metrics"
	"github.com/marmos91/turbopipe/pkg/pipe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pipeMetrics is the Prometheus implementation of pipe.Metrics.
type pipeMetrics struct {
	submitWait    prometheus.Histogram
	jobs          *prometheus.CounterVec
	queueWait     prometheus.Histogram
	writeDuration prometheus.Histogram
	jobBytes      prometheus.Histogram
	bytesWritten  prometheus.Counter
	queueDepth    prometheus.Gauge
	inFlight      prometheus.Gauge
	state         prometheus.Gauge
}

// latencyBuckets cover a fast local pipe through a stalled encoder.
var latencyBuckets = []float64{
	0.05, // 50us - queue slot free
	0.1,  // 100us
	0.5,  // 500us
	1,    // 1ms
	5,    // 5ms
	16,   // one frame at 60fps
	33,   // one frame at 30fps
	100,  // 100ms
	500,  // 500ms - encoder falling behind
	1000, // 1s
}

// NewPipeMetrics creates Prometheus-backed pipe engine metrics on the
// global registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called). Pass the
// result straight to pipe.New; a nil value disables collection.
func NewPipeMetrics() pipe.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return NewPipeMetricsWith(metrics.GetRegistry())
}

// NewPipeMetricsWith registers pipe engine metrics on reg.
func NewPipeMetricsWith(reg prometheus.Registerer) pipe.Metrics {
	return &pipeMetrics{
		submitWait: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "turbopipe_submit_wait_milliseconds",
				Help:    "Time Pipe blocked waiting for the buffer and a queue slot",
				Buckets: latencyBuckets,
			},
		),
		jobs: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "turbopipe_jobs_total",
				Help: "Total number of completed jobs by status",
			},
			[]string{"status"}, // "ok", "error"
		),
		queueWait: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "turbopipe_queue_wait_milliseconds",
				Help:    "Time jobs spent in the work queue before a worker picked them up",
				Buckets: latencyBuckets,
			},
		),
		writeDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "turbopipe_write_duration_milliseconds",
				Help:    "Time spent writing a job to its destination",
				Buckets: latencyBuckets,
			},
		),
		jobBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "turbopipe_job_bytes",
				Help: "Distribution of job sizes",
				Buckets: []float64{
					4096,     // 4KB
					65536,    // 64KB
					1048576,  // 1MB
					2764800,  // 720p RGB
					6220800,  // 1080p RGB
					8294400,  // 1080p RGBA
					24883200, // 4K RGB
					33177600, // 4K RGBA
				},
			},
		),
		bytesWritten: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "turbopipe_bytes_written_total",
				Help: "Total bytes accepted by destinations",
			},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "turbopipe_queue_depth",
				Help: "Jobs waiting in the work queue",
			},
		),
		inFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "turbopipe_in_flight_buffers",
				Help: "Buffers with a live in-flight registration",
			},
		),
		state: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "turbopipe_engine_state",
				Help: "Engine lifecycle state (0=uninitialized, 1=running, 2=draining, 3=stopped)",
			},
		),
	}
}

func (m *pipeMetrics) ObserveSubmit(wait time.Duration) {
	if m == nil {
		return
	}
	m.submitWait.Observe(milliseconds(wait))
}

func (m *pipeMetrics) ObserveWrite(bytes int, queueWait, duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	m.jobs.WithLabelValues(status).Inc()
	m.queueWait.Observe(milliseconds(queueWait))
	m.writeDuration.Observe(milliseconds(duration))

	if bytes > 0 {
		m.jobBytes.Observe(float64(bytes))
		m.bytesWritten.Add(float64(bytes))
	}
}

func (m *pipeMetrics) RecordQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *pipeMetrics) RecordInFlight(count int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(count))
}

func (m *pipeMetrics) RecordState(state pipe.State) {
	if m == nil {
		return
	}
	m.state.Set(float64(state))
}

func milliseconds(d time.Duration) float64 {
	return d.Seconds() * 1000
}
