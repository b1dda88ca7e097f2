package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/ausweis/pkg/api"
	"github.com/rhuss/ausweis/pkg/identity"
	"github.com/rhuss/ausweis/pkg/store"
	"github.com/rhuss/ausweis/pkg/transport"
)

// fakeService scripts the orchestrator responses and records what the
// adapter passed through.
type fakeService struct {
	registerErr error
	loginPair   *api.AuthTokens
	loginErr    error
	externalFn  func(provider string, info api.ExternalUserInfo) (*api.AuthTokens, error)
	refreshFn   func(req api.RefreshRequest) (*api.AuthTokens, error)
	confirmErr  error

	lastRegister api.PasswordLoginInfo
	lastLogin    api.PasswordLoginInfo
	lastConfirm  api.EmailConfirmation
}

var _ transport.Service = (*fakeService)(nil)

func (f *fakeService) Register(ctx context.Context, info api.PasswordLoginInfo) error {
	f.lastRegister = info
	return f.registerErr
}

func (f *fakeService) PasswordLogin(ctx context.Context, info api.PasswordLoginInfo) (*api.AuthTokens, error) {
	f.lastLogin = info
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginPair, nil
}

func (f *fakeService) ExternalLogin(ctx context.Context, provider string, info api.ExternalUserInfo) (*api.AuthTokens, error) {
	if f.externalFn != nil {
		return f.externalFn(provider, info)
	}
	return nil, identity.ErrDenied
}

func (f *fakeService) RefreshTokens(ctx context.Context, req api.RefreshRequest) (*api.AuthTokens, error) {
	if f.refreshFn != nil {
		return f.refreshFn(req)
	}
	return nil, identity.ErrDenied
}

func (f *fakeService) ConfirmEmail(ctx context.Context, conf api.EmailConfirmation) error {
	f.lastConfirm = conf
	return f.confirmErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAdapter(svc transport.Service, mutate ...func(*Config)) *Adapter {
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	return NewAdapter(svc, cfg, testLogger(), nil)
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) *api.ValidationProblem {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
	var p api.ValidationProblem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decoding problem document: %v", err)
	}
	return &p
}

func TestRegisterSuccess(t *testing.T) {
	svc := &fakeService{}
	h := newTestAdapter(svc).Handler()

	rec := post(t, h, "/identity/register", `{"username":"alice","password":"Passw0rd!"}`)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
	if svc.lastRegister.Username != "alice" {
		t.Errorf("service saw username %q", svc.lastRegister.Username)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc := &fakeService{registerErr: &identity.ValidationError{Errors: []store.ResultError{
		store.DuplicateUsername("alice"),
	}}}
	h := newTestAdapter(svc).Handler()

	rec := post(t, h, "/identity/register", `{"username":"alice","password":"Passw0rd!"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	p := decodeProblem(t, rec)
	if !p.Has(api.CodeDuplicateUsername) {
		t.Errorf("problem = %v, want %s", p.Errors, api.CodeDuplicateUsername)
	}
}

func TestRegisterMalformedJSON(t *testing.T) {
	h := newTestAdapter(&fakeService{}).Handler()

	rec := post(t, h, "/identity/register", `{"username":`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	p := decodeProblem(t, rec)
	if !p.Has(api.CodeInvalidRequest) {
		t.Errorf("problem = %v, want %s", p.Errors, api.CodeInvalidRequest)
	}
}

func TestRegisterMissingUsername(t *testing.T) {
	h := newTestAdapter(&fakeService{}).Handler()

	rec := post(t, h, "/identity/register", `{"username":"","password":"Passw0rd!"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	p := decodeProblem(t, rec)
	if !p.Has(api.CodeInvalidUsername) {
		t.Errorf("problem = %v, want %s", p.Errors, api.CodeInvalidUsername)
	}
}

func TestPasswordLoginSuccess(t *testing.T) {
	svc := &fakeService{loginPair: &api.AuthTokens{AccessToken: "acc", RefreshToken: "ref"}}
	h := newTestAdapter(svc).Handler()

	rec := post(t, h, "/identity/login", `{"username":"alice","password":"Passw0rd!"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var pair api.AuthTokens
	if err := json.Unmarshal(rec.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if pair.AccessToken != "acc" || pair.RefreshToken != "ref" {
		t.Errorf("pair = %+v", pair)
	}
}

func TestPasswordLoginDenied(t *testing.T) {
	svc := &fakeService{loginErr: identity.ErrDenied}
	h := newTestAdapter(svc).Handler()

	rec := post(t, h, "/identity/login", `{"username":"alice","password":"wrong"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "" {
		t.Errorf("Content-Type = %q, want none", ct)
	}
}

// A denied login, a login with missing fields, and a login with a
// malformed body must be indistinguishable on the wire.
func TestPasswordLoginFailuresShareOneShape(t *testing.T) {
	svc := &fakeService{loginErr: identity.ErrDenied}
	h := newTestAdapter(svc).Handler()

	responses := []*httptest.ResponseRecorder{
		post(t, h, "/identity/login", `{"username":"ghost","password":"whatever"}`),
		post(t, h, "/identity/login", `{"username":"","password":""}`),
		post(t, h, "/identity/login", `not json at all`),
	}

	for i, rec := range responses {
		if rec.Code != http.StatusBadRequest {
			t.Errorf("response %d: status = %d, want 400", i, rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("response %d: body = %q, want empty", i, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "" {
			t.Errorf("response %d: Content-Type = %q, want none", i, ct)
		}
	}
}

func TestPasswordLoginFaultIsOpaque(t *testing.T) {
	svc := &fakeService{loginErr: errors.New("pgx: connection refused")}
	h := newTestAdapter(svc).Handler()

	rec := post(t, h, "/identity/login", `{"username":"alice","password":"Passw0rd!"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "pgx") {
		t.Errorf("fault detail leaked to the client: %s", rec.Body.String())
	}
}

func TestExternalLoginRoutesProvider(t *testing.T) {
	var gotProvider string
	svc := &fakeService{externalFn: func(provider string, info api.ExternalUserInfo) (*api.AuthTokens, error) {
		gotProvider = provider
		return &api.AuthTokens{AccessToken: "acc", RefreshToken: "ref"}, nil
	}}
	h := newTestAdapter(svc).Handler()

	rec := post(t, h, "/identity/login/github", `{"key":"gh-1","username":"alice"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if gotProvider != "github" {
		t.Errorf("provider = %q, want github", gotProvider)
	}
}

func TestExternalLoginValidationProblem(t *testing.T) {
	svc := &fakeService{externalFn: func(string, api.ExternalUserInfo) (*api.AuthTokens, error) {
		return nil, &identity.ValidationError{Errors: []store.ResultError{
			{Code: api.CodeInvalidProvider, Description: "provider mismatch"},
		}}
	}}
	h := newTestAdapter(svc).Handler()

	rec := post(t, h, "/identity/login/github", `{"provider":"gitlab","key":"k","username":"alice"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	p := decodeProblem(t, rec)
	if !p.Has(api.CodeInvalidProvider) {
		t.Errorf("problem = %v, want %s", p.Errors, api.CodeInvalidProvider)
	}
}

func TestExternalLoginMalformedJSON(t *testing.T) {
	h := newTestAdapter(&fakeService{}).Handler()

	rec := post(t, h, "/identity/login/github", `{{`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	p := decodeProblem(t, rec)
	if !p.Has(api.CodeInvalidRequest) {
		t.Errorf("problem = %v, want %s", p.Errors, api.CodeInvalidRequest)
	}
}

func TestRefreshSuccess(t *testing.T) {
	svc := &fakeService{refreshFn: func(req api.RefreshRequest) (*api.AuthTokens, error) {
		if req.RefreshToken != "old" {
			return nil, identity.ErrDenied
		}
		return &api.AuthTokens{AccessToken: "acc2", RefreshToken: "ref2"}, nil
	}}
	h := newTestAdapter(svc).Handler()

	rec := post(t, h, "/identity/refresh", `{"refresh_token":"old"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var pair api.AuthTokens
	json.Unmarshal(rec.Body.Bytes(), &pair)
	if pair.RefreshToken != "ref2" {
		t.Errorf("pair = %+v", pair)
	}
}

func TestRefreshDeniedAndMissingTokenShareOneShape(t *testing.T) {
	h := newTestAdapter(&fakeService{}).Handler()

	denied := post(t, h, "/identity/refresh", `{"refresh_token":"consumed"}`)
	missing := post(t, h, "/identity/refresh", `{}`)

	for name, rec := range map[string]*httptest.ResponseRecorder{"denied": denied, "missing": missing} {
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("%s: body = %q, want empty", name, rec.Body.String())
		}
	}
}

func TestConfirmEmailSuccess(t *testing.T) {
	svc := &fakeService{}
	h := newTestAdapter(svc).Handler()

	rec := post(t, h, "/identity/confirmEmail", `{"user_id":"u-1","code":"dG9rZW4"}`)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
	if svc.lastConfirm.UserID != "u-1" || svc.lastConfirm.Code != "dG9rZW4" {
		t.Errorf("service saw %+v", svc.lastConfirm)
	}
}

func TestConfirmEmailDenied(t *testing.T) {
	svc := &fakeService{confirmErr: identity.ErrDenied}
	h := newTestAdapter(svc).Handler()

	rec := post(t, h, "/identity/confirmEmail", `{"user_id":"u-1","code":"dG9rZW4"}`)

	if rec.Code != http.StatusBadRequest || rec.Body.Len() != 0 {
		t.Errorf("status = %d body = %q, want empty 400", rec.Code, rec.Body.String())
	}
}

func TestConfirmEmailFaultIsServerError(t *testing.T) {
	svc := &fakeService{confirmErr: errors.New("decoding confirmation code: illegal base64 data")}
	h := newTestAdapter(svc).Handler()

	rec := post(t, h, "/identity/confirmEmail", `{"user_id":"u-1","code":"!!!"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "base64") {
		t.Errorf("fault detail leaked to the client: %s", rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestAdapter(&fakeService{}).Handler()

	req := httptest.NewRequest("GET", "/identity/login", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	h := newTestAdapter(&fakeService{}).Handler()

	rec := post(t, h, "/identity/unknown", `{}`)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestUnsupportedMediaType(t *testing.T) {
	h := newTestAdapter(&fakeService{}).Handler()

	req := httptest.NewRequest("POST", "/identity/login", strings.NewReader("username=alice"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

func TestOversizedBody(t *testing.T) {
	h := newTestAdapter(&fakeService{}, func(c *Config) { c.MaxBodySize = 64 }).Handler()

	big := `{"username":"alice","password":"` + strings.Repeat("x", 200) + `"}`
	rec := post(t, h, "/identity/login", big)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestRequestIDEchoedOnResponse(t *testing.T) {
	h := newTestAdapter(&fakeService{}).Handler()

	req := httptest.NewRequest("POST", "/identity/login", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", "trace-me-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "trace-me-42" {
		t.Errorf("X-Request-Id = %q, want echo of client value", got)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestAdapter(&fakeService{}).Handler()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	a := newTestAdapter(&fakeService{})
	h := a.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	a.Tracker().SetDraining()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status while draining = %d, want 503", rec.Code)
	}
}

func TestReadyzChecksCollaborators(t *testing.T) {
	down := errors.New("redis unreachable")
	a := NewAdapter(&fakeService{}, DefaultConfig(), testLogger(), func(ctx context.Context) error {
		return down
	})

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "redis") {
		t.Errorf("readiness detail leaked to the client: %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestAdapter(&fakeService{}).Handler()

	// Serve one identity request so the counters exist.
	post(t, h, "/identity/login", `{}`)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ausweis_http_requests_total") {
		t.Error("metrics output missing ausweis_http_requests_total")
	}
}

func TestMetricsEndpointDisabled(t *testing.T) {
	h := newTestAdapter(&fakeService{}, func(c *Config) { c.MetricsEnabled = false }).Handler()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRateLimitOnIdentityRoutes(t *testing.T) {
	h := newTestAdapter(&fakeService{loginPair: &api.AuthTokens{AccessToken: "a", RefreshToken: "r"}},
		func(c *Config) { c.RateLimitRPM = 2 }).Handler()

	body := `{"username":"alice","password":"Passw0rd!"}`
	post(t, h, "/identity/login", body)
	post(t, h, "/identity/login", body)
	rec := post(t, h, "/identity/login", body)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", rec.Code)
	}
}
