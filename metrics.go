package memd

import (
	"time"

	"github.com/pior/memd/mcbp"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder observes the dispatch pipeline.
type Recorder interface {
	// ObserveDispatch is called for every response before it is decoded.
	// latency is zero when the request has no start time.
	ObserveDispatch(opcode mcbp.Opcode, latency time.Duration)

	// ObserveResult is called for every delivered result.
	ObserveResult(cbtype CallbackType, kind ErrorKind)
}

type nopRecorder struct{}

func (nopRecorder) ObserveDispatch(mcbp.Opcode, time.Duration) {}
func (nopRecorder) ObserveResult(CallbackType, ErrorKind)      {}

// PrometheusRecorder exports dispatch latency per opcode and delivered
// results per callback type and status.
type PrometheusRecorder struct {
	latency *prometheus.HistogramVec
	results *prometheus.CounterVec
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates the collectors and registers them with reg.
func NewPrometheusRecorder(reg prometheus.Registerer, namespace string) *PrometheusRecorder {
	r := &PrometheusRecorder{
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_latency_seconds",
				Help:      "Time from request start to response dispatch",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"opcode"},
		),
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "results_total",
				Help:      "Total results delivered to continuations",
			},
			[]string{"callback", "status"},
		),
	}

	reg.MustRegister(r.latency, r.results)
	return r
}

func (r *PrometheusRecorder) ObserveDispatch(opcode mcbp.Opcode, latency time.Duration) {
	if latency <= 0 {
		return
	}
	r.latency.WithLabelValues(opcode.String()).Observe(latency.Seconds())
}

func (r *PrometheusRecorder) ObserveResult(cbtype CallbackType, kind ErrorKind) {
	r.results.WithLabelValues(cbtype.String(), kind.String()).Inc()
}
