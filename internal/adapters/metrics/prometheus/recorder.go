// Package prometheus expõe os eventos dos limitadores como métricas Prometheus.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JeanGrijp/identity-gate/internal/core/domain"
	"github.com/JeanGrijp/identity-gate/internal/core/ports"
)

const namespace = "identity_gate"

// Recorder implementa ports.MetricsRecorder e o observador de latência do store.
type Recorder struct {
	registry     *prometheus.Registry
	decisions    *prometheus.CounterVec
	storeFaults  *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec
}

var _ ports.MetricsRecorder = (*Recorder)(nil)

// NewRecorder registra as métricas em registry. Com registry nil cria um registro
// próprio já com os coletores de processo e runtime.
func NewRecorder(registry *prometheus.Registry) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	r := &Recorder{
		registry: registry,
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admission_decisions_total",
				Help:      "Admission decisions by limiter and outcome.",
			},
			[]string{"limiter", "outcome"},
		),
		storeFaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_faults_total",
				Help:      "Counter store failures observed by each limiter.",
			},
			[]string{"limiter"},
		),
		storeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_latency_seconds",
				Help:      "Latency of counter store calls.",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"op"},
		),
	}

	registry.MustRegister(r.decisions, r.storeFaults, r.storeLatency)
	return r
}

func (r *Recorder) Decision(limiter string, outcome domain.Outcome) {
	r.decisions.WithLabelValues(limiter, outcome.String()).Inc()
}

func (r *Recorder) StoreFault(limiter string) {
	r.storeFaults.WithLabelValues(limiter).Inc()
}

func (r *Recorder) ObserveStoreLatency(op string, d time.Duration) {
	r.storeLatency.WithLabelValues(op).Observe(d.Seconds())
}

// Handler serve o registro no formato de exposição do Prometheus.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
