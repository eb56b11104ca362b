package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace        = "cloudfiles_http_gw"
	stateSubsystem   = "state"
	proxySubsystem   = "proxy"
	backendSubsystem = "backend"
	authSubsystem    = "auth"

	resultSuccess = "success"
	resultFailure = "failure"
)

// GateMetrics collects gateway metrics. It observes the proxy, the backend
// transport and the authenticator.
type GateMetrics struct {
	stateMetrics
	proxyMetrics
	backendMetrics
	authMetrics
}

type (
	stateMetrics struct {
		healthCheck prometheus.Gauge
	}

	proxyMetrics struct {
		requests *prometheus.CounterVec
	}

	backendMetrics struct {
		duration *prometheus.HistogramVec
	}

	authMetrics struct {
		attempts *prometheus.CounterVec
	}
)

// NewGateMetrics creates gateway metrics and registers them in reg.
func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	m := &GateMetrics{
		stateMetrics: stateMetrics{
			healthCheck: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: stateSubsystem,
				Name:      "health",
				Help:      "Current HTTP gateway state",
			}),
		},
		proxyMetrics: proxyMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: proxySubsystem,
				Name:      "requests_total",
				Help:      "Proxied requests by method and response code",
			}, []string{"method", "code"}),
		},
		backendMetrics: backendMetrics{
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: backendSubsystem,
				Name:      "request_duration_seconds",
				Help:      "Backend round trips by operation and status, status 0 is a transport failure",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation", "status"}),
		},
		authMetrics: authMetrics{
			attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: authSubsystem,
				Name:      "attempts_total",
				Help:      "Auth exchanges by result",
			}, []string{"result"}),
		},
	}

	reg.MustRegister(
		m.healthCheck,
		m.requests,
		m.duration,
		m.attempts)

	return m
}

// SetHealth sets the health gauge.
func (m stateMetrics) SetHealth(s int32) {
	m.healthCheck.Set(float64(s))
}

// ObserveProxy counts an answered proxy request.
func (m proxyMetrics) ObserveProxy(method string, code int) {
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// ObserveRequest records a backend round trip.
func (m backendMetrics) ObserveRequest(op string, status int, elapsed time.Duration) {
	m.duration.WithLabelValues(op, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// ObserveAuth counts an auth exchange.
func (m authMetrics) ObserveAuth(err error) {
	result := resultSuccess
	if err != nil {
		result = resultFailure
	}
	m.attempts.WithLabelValues(result).Inc()
}
