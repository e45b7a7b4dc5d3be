package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const OutcomeOK = "ok"

var (
	registerOnce sync.Once

	clientRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "maga",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Client requests by outcome.",
		},
		[]string{"outcome"},
	)
	clientDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "maga",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Client request duration in seconds, encode to simplified result.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	serverDecodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "maga",
			Subsystem: "server",
			Name:      "decodes_total",
			Help:      "Inbound envelopes decoded by outcome.",
		},
		[]string{"outcome"},
	)
	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "maga",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Gateway HTTP requests by status.",
		},
		[]string{"status"},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(clientRequests, clientDuration, serverDecodes, gatewayRequests)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

func RecordClientRequest(outcome string, duration time.Duration) {
	Register()
	clientRequests.WithLabelValues(outcome).Inc()
	clientDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordServerDecode(outcome string) {
	Register()
	serverDecodes.WithLabelValues(outcome).Inc()
}

func RecordGatewayRequest(status int) {
	Register()
	gatewayRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}
