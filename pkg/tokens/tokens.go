package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rhuss/ausweis/pkg/store"
)

// Default token lifetimes, applied when the Config leaves them zero.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// ErrInvalidToken covers every refresh token the service will not
// honor. Callers answering users must treat the whole class as one
// opaque failure; the wrapped reasons below exist for stores and tests.
var ErrInvalidToken = errors.New("invalid refresh token")

// Reasons a refresh token is rejected. All wrap ErrInvalidToken so the
// class can be matched with a single errors.Is.
var (
	ErrTokenNotFound  = fmt.Errorf("%w: unknown token", ErrInvalidToken)
	ErrTokenExpired   = fmt.Errorf("%w: token expired", ErrInvalidToken)
	ErrSecretMismatch = fmt.Errorf("%w: secret mismatch", ErrInvalidToken)
	ErrTokenReused    = fmt.Errorf("%w: token already used", ErrInvalidToken)
)

// Service mints token pairs for authenticated users and redeems
// refresh tokens. Implementations must be safe for concurrent use.
type Service interface {
	// IssueAccessToken returns a signed short-lived access token for
	// the given user.
	IssueAccessToken(ctx context.Context, user store.User) (string, error)

	// IssueRefreshToken returns a fresh single-use refresh token for
	// the given user and opens a new token family for it.
	IssueRefreshToken(ctx context.Context, user store.User) (string, error)

	// Refresh exchanges a live refresh token for a new access/refresh
	// pair, consuming the presented token. Every rejection reason is
	// reported as (or wrapped in) ErrInvalidToken; any other error is
	// an infrastructure fault.
	Refresh(ctx context.Context, refreshToken string) (access, refresh string, err error)
}

// Record is the stored form of a refresh token. The random secret from
// the wire form never reaches the store; only its SHA-256 digest does.
type Record struct {
	ID         string
	UserID     string
	Username   string
	Family     string
	SecretHash [32]byte
	ExpiresAt  time.Time

	// Consumed marks a record that was redeemed. Consumed records are
	// kept until natural expiry so that replay of an old token is
	// observable instead of looking like an unknown token.
	Consumed bool
}

// RefreshStore persists refresh token records. Implementations must be
// safe for concurrent use; Rotate in particular must behave atomically
// when the same token is presented concurrently.
type RefreshStore interface {
	// Save persists a freshly issued record.
	Save(ctx context.Context, rec Record) error

	// Rotate redeems the record stored under id: it verifies the
	// presented secret digest, marks the record consumed, and installs
	// next as its successor. next's UserID, Username, and Family are
	// taken from the consumed record; the returned Record is the
	// completed successor.
	//
	// Failures are ErrTokenNotFound, ErrTokenExpired,
	// ErrSecretMismatch, or ErrTokenReused. A reused token revokes its
	// whole family before Rotate returns.
	Rotate(ctx context.Context, id string, presented [32]byte, next Record) (Record, error)

	// RevokeFamily invalidates every live record of a token family. It
	// is idempotent and succeeds for unknown families.
	RevokeFamily(ctx context.Context, family string) error
}
