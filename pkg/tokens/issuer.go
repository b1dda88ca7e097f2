package tokens

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rhuss/ausweis/pkg/store"
)

// refreshSecretLen is the byte length of the random refresh secret.
const refreshSecretLen = 32

// minSigningSecretLen is the smallest accepted HS256 key. Anything
// shorter than the hash width weakens the MAC.
const minSigningSecretLen = 32

// Config carries the static token parameters of an Issuer.
type Config struct {
	// Issuer and Audience are stamped into every access token and
	// enforced when one is parsed back.
	Issuer   string
	Audience string

	// Secret is the HS256 signing key, at least 32 bytes.
	Secret []byte

	// AccessTTL and RefreshTTL fall back to DefaultAccessTTL and
	// DefaultRefreshTTL when zero.
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Issuer implements Service with HS256-signed access tokens and opaque
// single-use refresh tokens backed by a RefreshStore.
type Issuer struct {
	cfg   Config
	store RefreshStore

	// now is replaced in tests.
	now func() time.Time
}

var _ Service = (*Issuer)(nil)

// NewIssuer validates cfg, applies TTL defaults, and returns an Issuer
// backed by the given store.
func NewIssuer(cfg Config, rs RefreshStore) (*Issuer, error) {
	if rs == nil {
		return nil, errors.New("tokens: refresh store must not be nil")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("tokens: issuer must not be empty")
	}
	if len(cfg.Secret) < minSigningSecretLen {
		return nil, fmt.Errorf("tokens: signing secret must be at least %d bytes", minSigningSecretLen)
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &Issuer{cfg: cfg, store: rs, now: time.Now}, nil
}

// IssueAccessToken mints a signed access token for user.
func (i *Issuer) IssueAccessToken(ctx context.Context, user store.User) (string, error) {
	return i.mintAccess(user.ID(), user.Username())
}

// IssueRefreshToken mints a refresh token for user, opens a new token
// family, and persists the record.
func (i *Issuer) IssueRefreshToken(ctx context.Context, user store.User) (string, error) {
	id := uuid.NewString()
	secret, err := newRefreshSecret()
	if err != nil {
		return "", err
	}
	rec := Record{
		ID:         id,
		UserID:     user.ID(),
		Username:   user.Username(),
		Family:     uuid.NewString(),
		SecretHash: sha256.Sum256(secret),
		ExpiresAt:  i.now().Add(i.cfg.RefreshTTL),
	}
	if err := i.store.Save(ctx, rec); err != nil {
		return "", fmt.Errorf("saving refresh token: %w", err)
	}
	return encodeRefreshToken(id, secret), nil
}

// Refresh redeems refreshToken and returns a new pair. The presented
// token is consumed whether or not minting the successor pair succeeds.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	id, secret, err := parseRefreshToken(refreshToken)
	if err != nil {
		return "", "", ErrInvalidToken
	}

	nextSecret, err := newRefreshSecret()
	if err != nil {
		return "", "", err
	}
	next := Record{
		ID:         uuid.NewString(),
		SecretHash: sha256.Sum256(nextSecret),
		ExpiresAt:  i.now().Add(i.cfg.RefreshTTL),
	}

	rec, err := i.store.Rotate(ctx, id, sha256.Sum256(secret), next)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return "", "", err
		}
		return "", "", fmt.Errorf("rotating refresh token: %w", err)
	}

	access, err := i.mintAccess(rec.UserID, rec.Username)
	if err != nil {
		return "", "", err
	}
	return access, encodeRefreshToken(rec.ID, nextSecret), nil
}

func newRefreshSecret() ([]byte, error) {
	secret := make([]byte, refreshSecretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating refresh secret: %w", err)
	}
	return secret, nil
}

// encodeRefreshToken builds the wire form "<id>.<secret>". The id is a
// UUID and therefore free of dots; the secret is unpadded URL-safe
// base64.
func encodeRefreshToken(id string, secret []byte) string {
	return id + "." + base64.RawURLEncoding.EncodeToString(secret)
}

// parseRefreshToken splits and decodes the wire form. It rejects
// anything that is not a UUID, a dot, and a secret of the expected
// length, so that undecodable garbage never reaches the store.
func parseRefreshToken(token string) (string, []byte, error) {
	id, enc, ok := strings.Cut(token, ".")
	if !ok {
		return "", nil, errors.New("tokens: malformed refresh token")
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", nil, fmt.Errorf("tokens: malformed refresh token id: %w", err)
	}
	secret, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", nil, fmt.Errorf("tokens: undecodable refresh secret: %w", err)
	}
	if len(secret) != refreshSecretLen {
		return "", nil, errors.New("tokens: refresh secret has wrong length")
	}
	return id, secret, nil
}
