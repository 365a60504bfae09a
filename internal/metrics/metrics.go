package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counters groups every collector the checkout exposes. Each binary owns one
// instance registered against its own registry.
type Counters struct {
	registry        *prometheus.Registry
	relayRequests   *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	pollOutcomes    *prometheus.CounterVec
	pollChecks      prometheus.Counter
}

// New builds and registers the collectors.
func New() *Counters {
	c := &Counters{
		registry: prometheus.NewRegistry(),
		relayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stkpay",
			Name:      "relay_requests_total",
			Help:      "Relay requests by endpoint and response code.",
		}, []string{"endpoint", "code"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stkpay",
			Name:      "gateway_call_duration_seconds",
			Help:      "Latency of gateway calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		pollOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stkpay",
			Name:      "poll_outcomes_total",
			Help:      "Terminal statuses reached by the status poller.",
		}, []string{"status"}),
		pollChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stkpay",
			Name:      "poll_checks_total",
			Help:      "Status checks issued by the poller.",
		}),
	}
	c.registry.MustRegister(c.relayRequests, c.gatewayDuration, c.pollOutcomes, c.pollChecks)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Counters) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Counters) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Counters) ObserveRelay(endpoint string, code int) {
	if c == nil {
		return
	}
	c.relayRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}

func (c *Counters) ObserveGateway(operation string, start time.Time, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.gatewayDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

func (c *Counters) IncPollCheck() {
	if c == nil {
		return
	}
	c.pollChecks.Inc()
}

func (c *Counters) IncPollOutcome(status string) {
	if c == nil {
		return
	}
	c.pollOutcomes.WithLabelValues(status).Inc()
}
