// Package metrics provides Prometheus metrics collection and exposure.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the auth counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder is the metrics interface used by the auth service, the password
// hasher and the HTTP middleware.
type Recorder interface {
	RecordLogin(outcome string)
	RecordRegistration()
	RecordResetRequested()
	RecordResetCompleted(outcome string)
	RecordSessionRejected()
	RecordHashDuration(op string, d time.Duration)
	RecordHTTPRequest(method, route string, status int, d time.Duration)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	logins           *prometheus.CounterVec
	registrations    prometheus.Counter
	resetsRequested  prometheus.Counter
	resetsCompleted  *prometheus.CounterVec
	sessionsRejected prometheus.Counter
	hashDuration     *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockroom_auth_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockroom_auth_registrations_total",
			Help: "Accounts created.",
		}),
		resetsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockroom_auth_password_resets_requested_total",
			Help: "Password reset tokens issued.",
		}),
		resetsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockroom_auth_password_resets_completed_total",
			Help: "Password reset redemptions by outcome.",
		}, []string{"outcome"}),
		sessionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockroom_auth_sessions_rejected_total",
			Help: "Requests turned away by the auth gateway.",
		}),
		hashDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockroom_auth_hash_duration_seconds",
			Help:    "Time spent in password hashing, including waiting for a slot.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"op"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockroom_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockroom_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.logins,
		c.registrations,
		c.resetsRequested,
		c.resetsCompleted,
		c.sessionsRejected,
		c.hashDuration,
		c.httpRequests,
		c.httpDuration,
	)

	return c
}

// RecordLogin counts a login attempt.
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordRegistration counts a created account.
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordResetRequested counts an issued reset token.
func (c *Collector) RecordResetRequested() {
	c.resetsRequested.Inc()
}

// RecordResetCompleted counts a reset redemption attempt.
func (c *Collector) RecordResetCompleted(outcome string) {
	c.resetsCompleted.WithLabelValues(outcome).Inc()
}

// RecordSessionRejected counts a 401 from the auth gateway.
func (c *Collector) RecordSessionRejected() {
	c.sessionsRejected.Inc()
}

// RecordHashDuration observes one hash or verify call.
func (c *Collector) RecordHashDuration(op string, d time.Duration) {
	c.hashDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordHTTPRequest counts and times one HTTP request. route is the matched
// route pattern, not the raw path, to keep cardinality bounded.
func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every measurement. Used in tests and when metrics are off.
type Nop struct{}

func (Nop) RecordLogin(string)                                   {}
func (Nop) RecordRegistration()                                  {}
func (Nop) RecordResetRequested()                                {}
func (Nop) RecordResetCompleted(string)                          {}
func (Nop) RecordSessionRejected()                               {}
func (Nop) RecordHashDuration(string, time.Duration)             {}
func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
