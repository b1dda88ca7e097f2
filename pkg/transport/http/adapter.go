package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/ausweis/pkg/api"
	"github.com/rhuss/ausweis/pkg/identity"
	"github.com/rhuss/ausweis/pkg/observability"
	"github.com/rhuss/ausweis/pkg/transport"
)

// The orchestrator is the only production implementation of the
// transport contract.
var _ transport.Service = (*identity.Flows)(nil)

// ReadyFunc reports whether the service's collaborators are reachable.
// A nil ReadyFunc means always ready.
type ReadyFunc func(ctx context.Context) error

// Adapter serves the identity API over HTTP. It routes requests to the
// flow orchestrator and maps each outcome onto the wire shapes: 200 for
// success, an empty 400 for denials, a 400 problem document where
// disclosure is safe, and an opaque 500 for faults.
type Adapter struct {
	svc     transport.Service
	logger  *slog.Logger
	mux     *http.ServeMux
	tracker *transport.Tracker
	limiter *transport.ClientLimiter
	ready   ReadyFunc
	config  Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize    int64
	MetricsEnabled bool
	RateLimitRPM   int // per client per minute on /identity routes; 0 disables
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:    1 << 20, // 1 MB; identity payloads are tiny
		MetricsEnabled: true,
	}
}

// NewAdapter creates an HTTP adapter over the given Service. The ready
// check is optional; when nil, /readyz succeeds unless the server is
// draining.
func NewAdapter(svc transport.Service, cfg Config, logger *slog.Logger, ready ReadyFunc) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adapter{
		svc:     svc,
		logger:  logger,
		mux:     http.NewServeMux(),
		tracker: transport.NewTracker(),
		ready:   ready,
		config:  cfg,
	}
	if cfg.RateLimitRPM > 0 {
		a.limiter = transport.NewClientLimiter(cfg.RateLimitRPM)
	}

	a.mux.HandleFunc("POST /identity/register", a.handleRegister)
	a.mux.HandleFunc("POST /identity/login", a.handlePasswordLogin)
	a.mux.HandleFunc("POST /identity/login/{provider}", a.handleExternalLogin)
	a.mux.HandleFunc("POST /identity/refresh", a.handleRefresh)
	a.mux.HandleFunc("POST /identity/confirmEmail", a.handleConfirmEmail)
	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.HandleFunc("GET /readyz", a.handleReadyz)
	if cfg.MetricsEnabled {
		a.mux.Handle("GET /metrics", promhttp.Handler())
	}

	return a
}

// Handler returns the http.Handler for this adapter, wrapped in the full
// middleware chain. Use this to integrate with an http.Server or to test
// with httptest. Recovery sits innermost so logging and metrics observe
// the 500 a recovered panic produces.
func (a *Adapter) Handler() http.Handler {
	return transport.Chain(
		transport.RequestID(),
		transport.Logging(a.logger),
		observability.Middleware,
		transport.RateLimit(a.limiter),
		transport.Track(a.tracker),
		transport.Recovery(a.logger),
	)(a.mux)
}

// Tracker exposes the in-flight tracker so the server can flip it to
// draining before shutdown.
func (a *Adapter) Tracker() *transport.Tracker {
	return a.tracker
}

// handleRegister handles POST /identity/register.
// Success is a bare 200; failures disclose a problem document.
func (a *Adapter) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !acceptJSON(w, r) {
		return
	}
	count := func(outcome string) {
		observability.Registrations.WithLabelValues(outcome).Inc()
	}

	var info api.PasswordLoginInfo
	if err := a.decode(w, r, &info); err != nil {
		count(observability.OutcomeInvalid)
		badBody(w, err, true)
		return
	}
	if p := info.Validate(); p != nil {
		count(observability.OutcomeInvalid)
		transport.WriteValidationProblem(w, p)
		return
	}

	if err := a.svc.Register(r.Context(), info); err != nil {
		a.writeDisclosed(w, r, err, count)
		return
	}
	count(observability.OutcomeSuccess)
	w.WriteHeader(http.StatusOK)
}

// handlePasswordLogin handles POST /identity/login.
// Every failure is the empty 400, whatever its cause.
func (a *Adapter) handlePasswordLogin(w http.ResponseWriter, r *http.Request) {
	if !acceptJSON(w, r) {
		return
	}
	count := func(outcome string) {
		observability.SignInAttempts.WithLabelValues("password", outcome).Inc()
	}

	var info api.PasswordLoginInfo
	if err := a.decode(w, r, &info); err != nil {
		count(observability.OutcomeInvalid)
		badBody(w, err, false)
		return
	}
	if info.Validate() != nil {
		count(observability.OutcomeInvalid)
		transport.WriteDenied(w)
		return
	}

	pair, err := a.svc.PasswordLogin(r.Context(), info)
	if err != nil {
		a.writeOpaque(w, r, err, count)
		return
	}
	count(observability.OutcomeSuccess)
	transport.WriteJSON(w, http.StatusOK, pair)
}

// handleExternalLogin handles POST /identity/login/{provider}.
// The provider in the route is authoritative.
func (a *Adapter) handleExternalLogin(w http.ResponseWriter, r *http.Request) {
	if !acceptJSON(w, r) {
		return
	}
	count := func(outcome string) {
		observability.SignInAttempts.WithLabelValues("external", outcome).Inc()
	}

	var info api.ExternalUserInfo
	if err := a.decode(w, r, &info); err != nil {
		count(observability.OutcomeInvalid)
		badBody(w, err, true)
		return
	}
	if p := info.Validate(); p != nil {
		count(observability.OutcomeInvalid)
		transport.WriteValidationProblem(w, p)
		return
	}

	pair, err := a.svc.ExternalLogin(r.Context(), r.PathValue("provider"), info)
	if err != nil {
		a.writeDisclosed(w, r, err, count)
		return
	}
	count(observability.OutcomeSuccess)
	transport.WriteJSON(w, http.StatusOK, pair)
}

// handleRefresh handles POST /identity/refresh.
// Every failure is the empty 400, whatever its cause.
func (a *Adapter) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !acceptJSON(w, r) {
		return
	}
	count := func(outcome string) {
		observability.SignInAttempts.WithLabelValues("refresh", outcome).Inc()
	}

	var req api.RefreshRequest
	if err := a.decode(w, r, &req); err != nil {
		count(observability.OutcomeInvalid)
		badBody(w, err, false)
		return
	}
	if req.Validate() != nil {
		count(observability.OutcomeInvalid)
		transport.WriteDenied(w)
		return
	}

	pair, err := a.svc.RefreshTokens(r.Context(), req)
	if err != nil {
		a.writeOpaque(w, r, err, count)
		return
	}
	count(observability.OutcomeSuccess)
	transport.WriteJSON(w, http.StatusOK, pair)
}

// handleConfirmEmail handles POST /identity/confirmEmail.
// Success is a bare 200; failures are the empty 400. An undecodable code
// comes back from the orchestrator as a fault and turns into a 500.
func (a *Adapter) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	if !acceptJSON(w, r) {
		return
	}
	count := func(outcome string) {
		observability.Confirmations.WithLabelValues(outcome).Inc()
	}

	var conf api.EmailConfirmation
	if err := a.decode(w, r, &conf); err != nil {
		count(observability.OutcomeInvalid)
		badBody(w, err, false)
		return
	}
	if conf.Validate() != nil {
		count(observability.OutcomeInvalid)
		transport.WriteDenied(w)
		return
	}

	if err := a.svc.ConfirmEmail(r.Context(), conf); err != nil {
		a.writeOpaque(w, r, err, count)
		return
	}
	count(observability.OutcomeSuccess)
	w.WriteHeader(http.StatusOK)
}

// handleHealthz reports process liveness.
func (a *Adapter) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

// handleReadyz reports readiness to take traffic: not draining and, when
// a ready check is configured, collaborators reachable.
func (a *Adapter) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.tracker.Draining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if a.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.ready(ctx); err != nil {
			a.logger.LogAttrs(r.Context(), slog.LevelWarn, "readiness check failed",
				slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.Write([]byte("ok"))
}

// decode reads the JSON body into dst, enforcing the size cap.
func (a *Adapter) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeDisclosed maps an orchestrator error for the routes whose failure
// shape is the problem document (register, external login).
func (a *Adapter) writeDisclosed(w http.ResponseWriter, r *http.Request, err error, count func(string)) {
	var verr *identity.ValidationError
	switch {
	case errors.As(err, &verr):
		count(observability.OutcomeInvalid)
		transport.WriteValidationProblem(w, problemFrom(verr))
	case errors.Is(err, identity.ErrDenied):
		count(observability.OutcomeDenied)
		transport.WriteDenied(w)
	default:
		count(observability.OutcomeFault)
		a.logFault(r, err)
		transport.WriteServerError(w)
	}
}

// writeOpaque maps an orchestrator error for the routes whose failure
// shape is the empty 400 (password login, refresh, confirm email). A
// validation error collapses into the denial too; these routes never
// disclose reasons.
func (a *Adapter) writeOpaque(w http.ResponseWriter, r *http.Request, err error, count func(string)) {
	var verr *identity.ValidationError
	switch {
	case errors.Is(err, identity.ErrDenied):
		count(observability.OutcomeDenied)
		transport.WriteDenied(w)
	case errors.As(err, &verr):
		count(observability.OutcomeDenied)
		transport.WriteDenied(w)
	default:
		count(observability.OutcomeFault)
		a.logFault(r, err)
		transport.WriteServerError(w)
	}
}

func (a *Adapter) logFault(r *http.Request, err error) {
	a.logger.LogAttrs(r.Context(), slog.LevelError, "request fault",
		slog.String("request_id", transport.RequestIDFromContext(r.Context())),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}

// problemFrom converts the orchestrator's validation error into the wire
// problem document, preserving the store's reporting order.
func problemFrom(verr *identity.ValidationError) *api.ValidationProblem {
	p := api.NewValidationProblem()
	for _, e := range verr.Errors {
		p.Add(e.Code, e.Description)
	}
	return p
}

// badBody answers a request whose body could not be decoded. Oversized
// bodies get 413 on every route; otherwise the route's failure shape
// decides between a problem document and the empty denial.
func badBody(w http.ResponseWriter, err error, disclose bool) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}
	if disclose {
		p := api.NewValidationProblem()
		p.Add(api.CodeInvalidRequest, "request body is not valid JSON")
		transport.WriteValidationProblem(w, p)
		return
	}
	transport.WriteDenied(w)
}

// acceptJSON rejects bodies declared as anything other than JSON.
func acceptJSON(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return false
	}
	return true
}
