// Package memory provides an in-memory implementation of
// store.CredentialStore for testing and single-node deployments.
// Records are lost when the process restarts.
package memory

import (
	"context"
	"crypto/subtle"
	"sync"

	"github.com/google/uuid"

	"github.com/rhuss/ausweis/pkg/store"
	"github.com/rhuss/ausweis/pkg/store/password"
)

// user is the concrete credential record. Handles returned by lookups are
// snapshots; the canonical record only changes under the store mutex.
type user struct {
	id             string
	username       string // display form; uniqueness uses the normalized form
	passwordHash   string // PHC format, empty until SetPassword
	emailConfirmed bool
	phoneConfirmed bool
	emailToken     []byte // outstanding confirmation token, nil once consumed
}

func (u *user) ID() string       { return u.id }
func (u *user) Username() string { return u.username }

type loginKey struct {
	provider string
	key      string
}

// Store is an in-memory CredentialStore.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*user
	byName  map[string]*user // keyed by normalized username
	byLogin map[loginKey]*user
	hasher  *password.Hasher
	policy  store.SignInPolicy
}

// Ensure Store implements store.CredentialStore at compile time.
var _ store.CredentialStore = (*Store)(nil)

// New creates an empty in-memory store with the given password hasher and
// sign-in policy.
func New(hasher *password.Hasher, policy store.SignInPolicy) *Store {
	return &Store{
		byID:    make(map[string]*user),
		byName:  make(map[string]*user),
		byLogin: make(map[loginKey]*user),
		hasher:  hasher,
		policy:  policy,
	}
}

// CreateUser creates a user with the given username. The username must be
// unique under case-insensitive comparison; the map insert under the
// mutex arbitrates concurrent creations.
func (s *Store) CreateUser(ctx context.Context, username string) (store.User, store.Result) {
	if e := store.ValidateUsername(username); e != nil {
		return nil, store.Fail(*e)
	}

	token, err := store.NewEmailToken()
	if err != nil {
		return nil, store.Fail(store.StorageFailure())
	}

	u := &user{
		id:         uuid.NewString(),
		username:   username,
		emailToken: token,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	norm := store.NormalizeUsername(username)
	if _, exists := s.byName[norm]; exists {
		return nil, store.Fail(store.DuplicateUsername(username))
	}

	s.byID[u.id] = u
	s.byName[norm] = u
	return snapshot(u), store.OK()
}

// SetPassword hashes and stores a new password for the user.
func (s *Store) SetPassword(ctx context.Context, su store.User, pw string) store.Result {
	if e := store.ValidatePassword(pw); e != nil {
		return store.Fail(*e)
	}

	// Hash outside the lock; argon2 is deliberately expensive.
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return store.Fail(store.StorageFailure())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[su.ID()]
	if !ok {
		return store.Fail(store.StorageFailure())
	}
	u.passwordHash = hash
	return store.OK()
}

// AddLogin links the external (provider, key) identity to the user. The
// map insert under the mutex is the uniqueness arbiter for concurrent
// first logins racing on the same identity.
func (s *Store) AddLogin(ctx context.Context, su store.User, provider, key string) store.Result {
	if provider == "" {
		return store.Fail(store.InvalidLogin("provider must not be empty"))
	}
	if key == "" {
		return store.Fail(store.InvalidLogin("key must not be empty"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[su.ID()]
	if !ok {
		return store.Fail(store.StorageFailure())
	}

	lk := loginKey{provider: provider, key: key}
	if _, exists := s.byLogin[lk]; exists {
		return store.Fail(store.DuplicateLogin(provider))
	}

	s.byLogin[lk] = u
	return store.OK()
}

// ConfirmEmail consumes a decoded confirmation token. The comparison is
// constant-time and a token never matches twice.
func (s *Store) ConfirmEmail(ctx context.Context, su store.User, token []byte) store.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[su.ID()]
	if !ok || u.emailToken == nil {
		return store.Fail(store.InvalidToken())
	}
	if subtle.ConstantTimeCompare(token, u.emailToken) != 1 {
		return store.Fail(store.InvalidToken())
	}

	u.emailConfirmed = true
	u.emailToken = nil
	return store.OK()
}

// FindByUsername resolves a user by case-insensitive username.
func (s *Store) FindByUsername(ctx context.Context, username string) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byName[store.NormalizeUsername(username)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return snapshot(u), nil
}

// FindByLogin resolves the user linked to (provider, key).
func (s *Store) FindByLogin(ctx context.Context, provider, key string) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byLogin[loginKey{provider: provider, key: key}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return snapshot(u), nil
}

// FindByID resolves a user by identifier.
func (s *Store) FindByID(ctx context.Context, id string) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return snapshot(u), nil
}

// CheckPassword verifies the password against the handle's stored hash.
// Users without a password never verify.
func (s *Store) CheckPassword(su store.User, pw string) bool {
	u, ok := su.(*user)
	if !ok || u.passwordHash == "" {
		return false
	}
	match, err := s.hasher.Verify(pw, u.passwordHash)
	return err == nil && match
}

// EmailConfirmed reports the confirmation state as of the handle's load.
func (s *Store) EmailConfirmed(su store.User) bool {
	u, ok := su.(*user)
	return ok && u.emailConfirmed
}

// PhoneConfirmed reports the confirmation state as of the handle's load.
func (s *Store) PhoneConfirmed(su store.User) bool {
	u, ok := su.(*user)
	return ok && u.phoneConfirmed
}

// Policy returns the sign-in policy the store was configured with.
func (s *Store) Policy() store.SignInPolicy {
	return s.policy
}

// EmailToken returns the user's outstanding confirmation token, or nil if
// it has been consumed. This is not part of store.CredentialStore; it
// exists for delivery tooling and tests.
func (s *Store) EmailToken(ctx context.Context, su store.User) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[su.ID()]
	if !ok {
		return nil, store.ErrNotFound
	}
	if u.emailToken == nil {
		return nil, nil
	}
	out := make([]byte, len(u.emailToken))
	copy(out, u.emailToken)
	return out, nil
}

// MarkPhoneConfirmed flips the phone confirmation flag directly. Like
// EmailToken it is outside the CredentialStore interface; phone
// verification delivery is not part of this service.
func (s *Store) MarkPhoneConfirmed(ctx context.Context, su store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[su.ID()]
	if !ok {
		return store.ErrNotFound
	}
	u.phoneConfirmed = true
	return nil
}

// snapshot copies a record for use as a handle outside the mutex. The
// confirmation token never travels with a handle.
func snapshot(u *user) *user {
	c := *u
	c.emailToken = nil
	return &c
}
