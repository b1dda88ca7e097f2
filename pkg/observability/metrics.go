// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the ausweis identity service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels shared by the flow counters. "denied" is the opaque
// authentication failure, "invalid" a disclosed validation problem or
// undecodable request, "fault" an internal error.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeInvalid = "invalid"
	OutcomeFault   = "fault"
)

// AuthBuckets defines histogram buckets suited for credential endpoints,
// where password hashing dominates latency, ranging from 5ms to 2.5s.
var AuthBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

var (
	// RequestsTotal counts all HTTP requests by route, method, and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ausweis_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ausweis_http_request_duration_seconds",
			Help:    "Request duration",
			Buckets: AuthBuckets,
		},
		[]string{"route"},
	)

	// SignInAttempts counts sign-in attempts by flow (password, external,
	// refresh) and outcome. The outcome label carries exactly the four
	// values above; the reason behind a denial is never a label.
	SignInAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ausweis_signin_attempts_total",
			Help: "Sign-in attempts",
		},
		[]string{"flow", "outcome"},
	)

	// Registrations counts account registrations by outcome.
	Registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ausweis_registrations_total",
			Help: "Account registrations",
		},
		[]string{"outcome"},
	)

	// Confirmations counts email confirmation attempts by outcome.
	Confirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ausweis_confirmations_total",
			Help: "Email confirmations",
		},
		[]string{"outcome"},
	)

	// RateLimitRejected counts requests rejected by the rate limiter.
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ausweis_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		SignInAttempts,
		Registrations,
		Confirmations,
		RateLimitRejected,
	)
}
