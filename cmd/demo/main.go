// Command demo walks the ausweis identity flows end to end against a
// running server. Start one first:
//
//	AUSWEIS_TOKEN_SECRET=0123456789abcdef0123456789abcdef go run ./cmd/server
//
// Then:
//
//	go run ./cmd/demo -addr http://localhost:8080
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/rhuss/ausweis/pkg/api"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "base URL of a running ausweis server")
	username := flag.String("username", "", "username to register (default: random)")
	password := flag.String("password", "correct horse battery staple", "password to register with")
	flag.Parse()

	if *username == "" {
		*username = "demo-" + uuid.NewString()[:8]
	}

	c := &client{base: *addr, http: &http.Client{Timeout: 10 * time.Second}}

	fmt.Println("=== ausweis identity flow demo ===")
	fmt.Println()

	// 1. Register a fresh account.
	status, body := c.post("/identity/register", api.PasswordLoginInfo{
		Username: *username,
		Password: *password,
	})
	if status != http.StatusOK {
		fail("register", status, body)
	}
	fmt.Printf("[1] Registered %q (status %d, empty body)\n", *username, status)

	// 2. A wrong password is rejected with an empty 400. The response
	// gives away nothing about why.
	status, body = c.post("/identity/login", api.PasswordLoginInfo{
		Username: *username,
		Password: "wrong-" + *password,
	})
	if status != http.StatusBadRequest || len(body) != 0 {
		fail("login with wrong password", status, body)
	}
	fmt.Printf("[2] Wrong password rejected (status %d, empty body)\n", status)

	// 3. An unknown user fails with the exact same shape.
	status, body = c.post("/identity/login", api.PasswordLoginInfo{
		Username: "no-such-user-" + uuid.NewString()[:8],
		Password: *password,
	})
	if status != http.StatusBadRequest || len(body) != 0 {
		fail("login with unknown user", status, body)
	}
	fmt.Printf("[3] Unknown user rejected identically (status %d, empty body)\n", status)

	// 4. The right credentials produce a token pair.
	status, body = c.post("/identity/login", api.PasswordLoginInfo{
		Username: *username,
		Password: *password,
	})
	if status != http.StatusOK {
		fail("login", status, body)
	}
	var pair api.AuthTokens
	mustUnmarshal(body, &pair)
	fmt.Printf("[4] Logged in, access token %s...\n", head(pair.AccessToken))

	// 5. Refresh rotates the pair.
	status, body = c.post("/identity/refresh", api.RefreshRequest{RefreshToken: pair.RefreshToken})
	if status != http.StatusOK {
		fail("refresh", status, body)
	}
	var next api.AuthTokens
	mustUnmarshal(body, &next)
	if next.RefreshToken == pair.RefreshToken {
		fail("refresh returned the same refresh token", status, body)
	}
	fmt.Printf("[5] Refreshed, new refresh token %s...\n", head(next.RefreshToken))

	// 6. The consumed refresh token is dead.
	status, body = c.post("/identity/refresh", api.RefreshRequest{RefreshToken: pair.RefreshToken})
	if status != http.StatusBadRequest || len(body) != 0 {
		fail("reused refresh token", status, body)
	}
	fmt.Printf("[6] Reused refresh token rejected (status %d, empty body)\n", status)

	// 7. Email confirmation is just as opaque: a well-formed code for an
	// unknown user is denied without explanation.
	status, body = c.post("/identity/confirmEmail", api.EmailConfirmation{
		UserID: uuid.NewString(),
		Code:   base64.RawURLEncoding.EncodeToString([]byte("not the delivered code")),
	})
	if status != http.StatusBadRequest || len(body) != 0 {
		fail("confirm email for unknown user", status, body)
	}
	fmt.Printf("[7] Wrong confirmation rejected opaquely (status %d, empty body)\n", status)

	// 8. Validation problems on the register route are disclosed.
	status, body = c.post("/identity/register", api.PasswordLoginInfo{
		Username: *username,
		Password: *password,
	})
	if status != http.StatusBadRequest {
		fail("duplicate register", status, body)
	}
	var problem api.ValidationProblem
	mustUnmarshal(body, &problem)
	fmt.Println("[8] Duplicate register discloses a problem document:")
	for code, descriptions := range problem.Errors {
		for _, d := range descriptions {
			fmt.Printf("      %s: %s\n", code, d)
		}
	}

	fmt.Println()
	fmt.Println("=== demo complete ===")
}

type client struct {
	base string
	http *http.Client
}

// post sends v as JSON and returns the status code and raw body.
func (c *client) post(path string, v any) (int, []byte) {
	data, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshaling request: %v\n", err)
		os.Exit(1)
	}

	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "POST %s: %v\n", path, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading response: %v\n", err)
		os.Exit(1)
	}
	return resp.StatusCode, body
}

func mustUnmarshal(data []byte, v any) {
	if err := json.Unmarshal(data, v); err != nil {
		fmt.Fprintf(os.Stderr, "unexpected response %q: %v\n", data, err)
		os.Exit(1)
	}
}

// head returns a short prefix safe to print.
func head(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

func fail(step string, status int, body []byte) {
	fmt.Fprintf(os.Stderr, "%s: unexpected status %d, body %q\n", step, status, body)
	os.Exit(1)
}
