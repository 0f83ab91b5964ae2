package proxy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 転送結果の分類。
const (
	outcomeResponse = "response"
	outcomeTimeout  = "timeout"
	outcomeError    = "error"
)

// Metrics はバックエンドへの転送を記録するPrometheusメトリクス。
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics はメトリクスを生成して reg に登録する。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_requests_total",
				Help: "Total number of requests forwarded to backends",
			},
			[]string{"target", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_upstream_request_duration_seconds",
				Help:    "Time spent waiting for backend responses",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"target"},
		),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

func (m *Metrics) observe(target, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(target, outcome).Inc()
	m.duration.WithLabelValues(target).Observe(elapsed.Seconds())
}
