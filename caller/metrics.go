package caller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 调用器的 prometheus 指标。nil 的 *Metrics 不记录任何指标。
type Metrics struct {
	attempts *prometheus.CounterVec
	retries  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics 创建指标并注册到 reg，reg 为 nil 时不注册。
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caller_attempts_total",
			Help:      "Total number of call attempts by outcome.",
		}, []string{"caller", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caller_retries_total",
			Help:      "Total number of retries scheduled after a failed attempt.",
		}, []string{"caller"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "caller_attempt_duration_seconds",
			Help:      "Duration of individual call attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"caller"}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.retries, m.latency)
	}
	return m
}

func (m *Metrics) observe(name string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.attempts.WithLabelValues(name, outcome).Inc()
	m.latency.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) retry(name string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(name).Inc()
}
