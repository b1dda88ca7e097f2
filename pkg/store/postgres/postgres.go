// Package postgres provides a PostgreSQL implementation of
// store.CredentialStore. It uses pgx/v5 for connection pooling and relies
// on unique constraints to arbitrate concurrent registration and login
// linking.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/ausweis/pkg/store"
	"github.com/rhuss/ausweis/pkg/store/password"
)

// user is the loaded credential record behind a store.User handle. Flags
// and hash reflect the row as of the load.
type user struct {
	id             string
	username       string
	passwordHash   string
	emailConfirmed bool
	phoneConfirmed bool
}

func (u *user) ID() string       { return u.id }
func (u *user) Username() string { return u.username }

// Store is a PostgreSQL-backed CredentialStore.
type Store struct {
	pool   *pgxpool.Pool
	hasher *password.Hasher
	policy store.SignInPolicy
}

// Ensure Store implements store.CredentialStore at compile time.
var _ store.CredentialStore = (*Store)(nil)

// New creates a PostgreSQL store with the given configuration. If
// MigrateOnStart is set, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config, hasher *password.Hasher, policy store.SignInPolicy) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, hasher: hasher, policy: policy}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// CreateUser inserts a user row. The unique index on the normalized
// username arbitrates concurrent registrations; the loser receives a
// DuplicateUsername result.
func (s *Store) CreateUser(ctx context.Context, username string) (store.User, store.Result) {
	if e := store.ValidateUsername(username); e != nil {
		return nil, store.Fail(*e)
	}

	token, err := store.NewEmailToken()
	if err != nil {
		return nil, store.Fail(store.StorageFailure())
	}

	id := uuid.NewString()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (id, username, username_norm, email_token)
		VALUES ($1, $2, $3, $4)
	`, id, username, store.NormalizeUsername(username), token)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.Fail(store.DuplicateUsername(username))
		}
		return nil, store.Fail(store.StorageFailure())
	}

	return &user{id: id, username: username}, store.OK()
}

// SetPassword hashes and stores a new password for the user.
func (s *Store) SetPassword(ctx context.Context, su store.User, pw string) store.Result {
	if e := store.ValidatePassword(pw); e != nil {
		return store.Fail(*e)
	}

	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return store.Fail(store.StorageFailure())
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1 WHERE id = $2`, hash, su.ID())
	if err != nil || tag.RowsAffected() == 0 {
		return store.Fail(store.StorageFailure())
	}
	return store.OK()
}

// AddLogin links the external (provider, key) identity to the user. The
// primary key on (provider, provider_key) arbitrates concurrent linking.
func (s *Store) AddLogin(ctx context.Context, su store.User, provider, key string) store.Result {
	if provider == "" {
		return store.Fail(store.InvalidLogin("provider must not be empty"))
	}
	if key == "" {
		return store.Fail(store.InvalidLogin("key must not be empty"))
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_logins (provider, provider_key, user_id)
		VALUES ($1, $2, $3)
	`, provider, key, su.ID())

	if err != nil {
		if isUniqueViolation(err) {
			return store.Fail(store.DuplicateLogin(provider))
		}
		return store.Fail(store.StorageFailure())
	}
	return store.OK()
}

// ConfirmEmail consumes the outstanding confirmation token. The guarded
// UPDATE makes match, flag flip, and token consumption a single atomic
// step; zero rows affected covers unknown user, wrong token, and
// already-consumed token alike.
func (s *Store) ConfirmEmail(ctx context.Context, su store.User, token []byte) store.Result {
	if len(token) == 0 {
		return store.Fail(store.InvalidToken())
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET email_confirmed = TRUE, email_token = NULL
		WHERE id = $1 AND email_token = $2
	`, su.ID(), token)

	if err != nil || tag.RowsAffected() == 0 {
		return store.Fail(store.InvalidToken())
	}
	return store.OK()
}

const userColumns = `id, username, COALESCE(password_hash, ''), email_confirmed, phone_confirmed`

// FindByUsername resolves a user by case-insensitive username.
func (s *Store) FindByUsername(ctx context.Context, username string) (store.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username_norm = $1`,
		store.NormalizeUsername(username))
	return scanUser(row)
}

// FindByLogin resolves the user linked to (provider, key).
func (s *Store) FindByLogin(ctx context.Context, provider, key string) (store.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT u.id, u.username, COALESCE(u.password_hash, ''), u.email_confirmed, u.phone_confirmed
		FROM users u
		JOIN user_logins l ON l.user_id = u.id
		WHERE l.provider = $1 AND l.provider_key = $2
	`, provider, key)
	return scanUser(row)
}

// FindByID resolves a user by identifier. Identifiers that are not UUIDs
// cannot match any row and are reported as not found rather than as a
// database error.
func (s *Store) FindByID(ctx context.Context, id string) (store.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// CheckPassword verifies the password against the handle's loaded hash.
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
// it has been consumed. Not part of store.CredentialStore; it exists for
// delivery tooling and tests.
func (s *Store) EmailToken(ctx context.Context, su store.User) ([]byte, error) {
	var token []byte
	err := s.pool.QueryRow(ctx,
		`SELECT email_token FROM users WHERE id = $1`, su.ID()).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying email token: %w", err)
	}
	return token, nil
}

// MarkPhoneConfirmed flips the phone confirmation flag directly. Phone
// verification delivery is not part of this service.
func (s *Store) MarkPhoneConfirmed(ctx context.Context, su store.User) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET phone_confirmed = TRUE WHERE id = $1`, su.ID())
	if err != nil {
		return fmt.Errorf("updating phone confirmation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanUser(row pgx.Row) (store.User, error) {
	var u user
	err := row.Scan(&u.id, &u.username, &u.passwordHash, &u.emailConfirmed, &u.phoneConfirmed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}

// isUniqueViolation checks for a PostgreSQL unique violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
