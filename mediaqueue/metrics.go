package mediaqueue

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes queue occupancy to Prometheus. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	concurrency *prometheus.GaugeVec
	active      *prometheus.GaugeVec
	pending     *prometheus.GaugeVec
	jobs        *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewMetrics creates and registers the queue metrics
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		concurrency: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tutti_queue_concurrency",
				Help: "Maximum number of concurrently running jobs",
			},
			[]string{"queue"},
		),
		active: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tutti_queue_active_jobs",
				Help: "Number of running jobs",
			},
			[]string{"queue"},
		),
		pending: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tutti_queue_pending_jobs",
				Help: "Number of jobs waiting for a free slot",
			},
			[]string{"queue"},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutti_queue_jobs_total",
				Help: "Total number of finished jobs",
			},
			[]string{"queue", "status"},
		),
	}
	m.collectors = []prometheus.Collector{m.concurrency, m.active, m.pending, m.jobs}

	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

func (m *Metrics) setConcurrency(queue string, n int) {
	if m == nil {
		return
	}
	m.concurrency.WithLabelValues(queue).Set(float64(n))
}

func (m *Metrics) setOccupancy(queue string, active, pending int) {
	if m == nil {
		return
	}
	m.active.WithLabelValues(queue).Set(float64(active))
	m.pending.WithLabelValues(queue).Set(float64(pending))
}

func (m *Metrics) observeJob(queue string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.jobs.WithLabelValues(queue, status).Inc()
}
