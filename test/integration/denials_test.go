package integration

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/rhuss/ausweis/pkg/api"
)

// denialShape is everything a client can observe about a rejection, minus
// per-request headers such as the request id and date.
type denialShape struct {
	status      int
	contentType string
	body        string
}

func captureShape(t *testing.T, resp *http.Response) denialShape {
	t.Helper()
	return denialShape{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        readBody(t, resp),
	}
}

// TestLoginDenialsAreByteIdentical verifies that every 400-class login
// failure looks exactly the same on the wire, whatever the cause. A
// client cannot tell an unknown user from a wrong password from a
// request that never parsed.
func TestLoginDenialsAreByteIdentical(t *testing.T) {
	registerUser(t, testEnv, "gina", "p4ssw0rd-gina")

	url := testEnv.BaseURL() + "/identity/login"

	shapes := map[string]denialShape{}

	resp := postJSON(t, url, api.PasswordLoginInfo{Username: "nobody-here", Password: "p4ssw0rd-gina"})
	shapes["unknown user"] = captureShape(t, resp)

	resp = postJSON(t, url, api.PasswordLoginInfo{Username: "gina", Password: "wrong"})
	shapes["wrong password"] = captureShape(t, resp)

	resp = postJSON(t, url, api.PasswordLoginInfo{Username: "gina"})
	shapes["missing password"] = captureShape(t, resp)

	resp = postJSON(t, url, map[string]any{})
	shapes["empty object"] = captureShape(t, resp)

	raw, err := http.Post(url, "application/json", bytes.NewReader([]byte(`{not json`)))
	if err != nil {
		t.Fatalf("POST malformed: %v", err)
	}
	shapes["malformed JSON"] = captureShape(t, raw)

	want := denialShape{status: http.StatusBadRequest, contentType: "", body: ""}
	for cause, got := range shapes {
		if got != want {
			t.Errorf("%s: response shape %+v, want %+v", cause, got, want)
		}
	}
}

// TestOpaqueRoutesMatchLoginShape verifies that refresh and confirmEmail
// denials are indistinguishable from login denials.
func TestOpaqueRoutesMatchLoginShape(t *testing.T) {
	registerUser(t, testEnv, "henry", "p4ssw0rd-henry")

	loginResp := postJSON(t, testEnv.BaseURL()+"/identity/login", api.PasswordLoginInfo{
		Username: "henry",
		Password: "wrong",
	})
	want := captureShape(t, loginResp)

	resp := postJSON(t, testEnv.BaseURL()+"/identity/refresh", api.RefreshRequest{
		RefreshToken: "gibberish.token",
	})
	if got := captureShape(t, resp); got != want {
		t.Errorf("refresh denial shape %+v, want %+v", got, want)
	}

	resp = postJSON(t, testEnv.BaseURL()+"/identity/refresh", api.RefreshRequest{})
	if got := captureShape(t, resp); got != want {
		t.Errorf("empty refresh denial shape %+v, want %+v", got, want)
	}

	// A decodable but wrong confirmation code is denied the same way.
	code := base64.RawURLEncoding.EncodeToString([]byte("wrong-token-bytes"))
	resp = postJSON(t, testEnv.BaseURL()+"/identity/confirmEmail", api.EmailConfirmation{
		UserID: "b2f6dc0e-0000-0000-0000-000000000000",
		Code:   code,
	})
	if got := captureShape(t, resp); got != want {
		t.Errorf("confirmEmail denial shape %+v, want %+v", got, want)
	}
}

// TestDisclosingRoutesReturnProblemDocuments verifies that register and
// the external login route answer malformed bodies with a validation
// problem rather than a silent denial.
func TestDisclosingRoutesReturnProblemDocuments(t *testing.T) {
	for _, path := range []string{"/identity/register", "/identity/login/github"} {
		resp, err := http.Post(testEnv.BaseURL()+path, "application/json",
			bytes.NewReader([]byte(`{not json`)))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", path, resp.StatusCode)
		}
		var problem api.ValidationProblem
		decodeJSON(t, resp, &problem)
		if !problem.Has(api.CodeInvalidRequest) {
			t.Errorf("%s: problem %+v missing %s", path, problem, api.CodeInvalidRequest)
		}
	}
}

func TestUnsupportedContentType(t *testing.T) {
	resp, err := http.Post(
		testEnv.BaseURL()+"/identity/login",
		"application/x-www-form-urlencoded",
		bytes.NewReader([]byte(`username=x&password=y`)),
	)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	resp := getURL(t, testEnv.BaseURL()+"/identity/login")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}
