package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Middleware wraps an HTTP handler to record request metrics.
//
// It captures:
//   - ausweis_http_requests_total (counter): incremented per request with
//     route, method, and status class labels
//   - ausweis_http_request_duration_seconds (histogram): request duration
//     with the route label
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := NormalizeRoute(r.URL.Path)
		statusClass := strconv.Itoa(sw.status/100) + "xx"

		RequestsTotal.WithLabelValues(route, r.Method, statusClass).Inc()
		RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// NormalizeRoute maps a request path onto its route pattern so the route
// label stays low-cardinality. Provider names collapse into one pattern,
// and unknown paths collapse into "other".
func NormalizeRoute(path string) string {
	switch path {
	case "/identity/register", "/identity/login", "/identity/refresh", "/identity/confirmEmail",
		"/healthz", "/readyz", "/metrics":
		return path
	}
	if strings.HasPrefix(path, "/identity/login/") {
		return "/identity/login/{provider}"
	}
	return "other"
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

// WriteHeader captures the status code and delegates to the underlying writer.
func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

// Write delegates to the underlying writer and marks the status as written.
func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter, enabling
// http.ResponseController and similar utilities to access the original writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
