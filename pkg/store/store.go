package store

import (
	"context"
	"crypto/rand"
	"strings"
	"unicode/utf8"
)

// MinPasswordLength is the shortest password any store accepts.
const MinPasswordLength = 8

// MaxUsernameLength is the longest username any store accepts, in bytes.
const MaxUsernameLength = 64

// User is an opaque handle to a credential record. Implementations keep
// whatever they need behind it (confirmation flags, password hash);
// callers see only the identifier and the username.
type User interface {
	ID() string
	Username() string
}

// SignInPolicy is the store-owned policy consulted during password login.
type SignInPolicy struct {
	RequireConfirmedEmail bool
	RequireConfirmedPhone bool
}

// CredentialStore is the capability interface over the system of record
// for users, passwords, linked external logins, and confirmation state.
//
// Write operations report their outcome through [Result] rather than
// error, so the caller receives the full ordered set of (code,
// description) pairs the store observed. Plain errors are reserved for
// lookups (ErrNotFound) and infrastructure faults.
//
// Uniqueness of usernames (case-insensitive) and of (provider, key)
// pairs is enforced at the store's write path. Under concurrent writes
// the constraint, not any earlier lookup, decides the winner; the loser
// receives a failed Result with the matching duplicate code.
type CredentialStore interface {
	// CreateUser creates a user with the given username. On failure the
	// returned User is nil and the Result carries the reasons.
	CreateUser(ctx context.Context, username string) (User, Result)

	// SetPassword hashes and stores a new password for the user.
	SetPassword(ctx context.Context, user User, password string) Result

	// AddLogin links the external (provider, key) identity to the user.
	AddLogin(ctx context.Context, user User, provider, key string) Result

	// ConfirmEmail consumes a decoded confirmation token, marking the
	// user's email confirmed when the token matches the outstanding one.
	// A token never matches twice.
	ConfirmEmail(ctx context.Context, user User, token []byte) Result

	// FindByUsername resolves a user by username (case-insensitive).
	// Returns ErrNotFound when no such user exists.
	FindByUsername(ctx context.Context, username string) (User, error)

	// FindByLogin resolves the user linked to (provider, key).
	// Returns ErrNotFound when no user is linked.
	FindByLogin(ctx context.Context, provider, key string) (User, error)

	// FindByID resolves a user by identifier.
	// Returns ErrNotFound when no such user exists.
	FindByID(ctx context.Context, id string) (User, error)

	// CheckPassword verifies the password against the user's stored hash
	// in constant time. A user without a password never verifies.
	CheckPassword(user User, password string) bool

	// EmailConfirmed reports the user's email confirmation state as of
	// the handle's load.
	EmailConfirmed(user User) bool

	// PhoneConfirmed reports the user's phone confirmation state as of
	// the handle's load.
	PhoneConfirmed(user User) bool

	// Policy returns the sign-in policy this store was configured with.
	Policy() SignInPolicy
}

// NormalizeUsername returns the form under which usernames are compared
// and stored for uniqueness. Display casing is preserved separately by
// the implementations.
func NormalizeUsername(name string) string {
	return strings.ToLower(name)
}

// ValidateUsername checks the username rules shared by all store
// implementations. It returns nil when the name is acceptable.
func ValidateUsername(name string) *ResultError {
	switch {
	case name == "":
		e := InvalidUsername("must not be empty")
		return &e
	case len(name) > MaxUsernameLength:
		e := InvalidUsername("too long")
		return &e
	case strings.TrimSpace(name) != name:
		e := InvalidUsername("must not start or end with whitespace")
		return &e
	case !utf8.ValidString(name):
		e := InvalidUsername("must be valid UTF-8")
		return &e
	}
	return nil
}

// ValidatePassword checks the password rules shared by all store
// implementations. It returns nil when the password is acceptable.
func ValidatePassword(password string) *ResultError {
	if len(password) < MinPasswordLength {
		e := PasswordTooShort(MinPasswordLength)
		return &e
	}
	return nil
}

// NewEmailToken generates the random confirmation token attached to a
// freshly created user. Only its URL-safe base64 encoding ever leaves
// the store.
func NewEmailToken() ([]byte, error) {
	tok := make([]byte, 32)
	if _, err := rand.Read(tok); err != nil {
		return nil, err
	}
	return tok, nil
}
