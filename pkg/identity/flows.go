package identity

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/rhuss/ausweis/pkg/api"
	"github.com/rhuss/ausweis/pkg/store"
	"github.com/rhuss/ausweis/pkg/tokens"
)

// Flows orchestrates the account operations over a credential store and
// a token service. It is stateless and safe for concurrent use.
type Flows struct {
	users  store.CredentialStore
	tokens tokens.Service
}

// New creates the flow orchestrator. Both collaborators are required.
func New(users store.CredentialStore, ts tokens.Service) (*Flows, error) {
	if users == nil {
		return nil, fmt.Errorf("identity: credential store must not be nil")
	}
	if ts == nil {
		return nil, fmt.Errorf("identity: token service must not be nil")
	}
	return &Flows{users: users, tokens: ts}, nil
}

// Register provisions a password account: it creates the user, then
// sets the password. Registration does not sign the user in; no tokens
// are issued. Store rejections of either step come back unchanged as a
// ValidationError.
func (f *Flows) Register(ctx context.Context, info api.PasswordLoginInfo) error {
	user, res := f.users.CreateUser(ctx, info.Username)
	if !res.Succeeded() {
		return newValidationError(res)
	}
	if res := f.users.SetPassword(ctx, user, info.Password); !res.Succeeded() {
		return newValidationError(res)
	}
	return nil
}

// PasswordLogin authenticates a username/password pair and issues a
// token pair. The pipeline short-circuits on ErrDenied at every gate,
// in a fixed order: user lookup, email policy, phone policy, password.
func (f *Flows) PasswordLogin(ctx context.Context, info api.PasswordLoginInfo) (*api.AuthTokens, error) {
	user, err := f.users.FindByUsername(ctx, info.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDenied
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	policy := f.users.Policy()
	if policy.RequireConfirmedEmail && !f.users.EmailConfirmed(user) {
		return nil, ErrDenied
	}
	if policy.RequireConfirmedPhone && !f.users.PhoneConfirmed(user) {
		return nil, ErrDenied
	}

	if !f.users.CheckPassword(user, info.Password) {
		return nil, ErrDenied
	}

	return f.issuePair(ctx, user)
}

// ExternalLogin signs in a federated identity, provisioning a local
// user on first use. The provider argument comes from the route and is
// authoritative; a body provider that disagrees with it is rejected.
// The sign-in policy does not apply here: the external provider already
// vouched for the identity.
//
// Provisioning is check-then-act. Two racing first logins both miss the
// lookup and both try to create; the store's uniqueness constraints
// arbitrate, and the loser retries the lookup once before surfacing the
// store's errors.
func (f *Flows) ExternalLogin(ctx context.Context, provider string, info api.ExternalUserInfo) (*api.AuthTokens, error) {
	if info.Provider != "" && info.Provider != provider {
		return nil, &ValidationError{Errors: []store.ResultError{{
			Code:        api.CodeInvalidProvider,
			Description: fmt.Sprintf("body names provider %q but the request addressed %q", info.Provider, provider),
		}}}
	}

	user, err := f.users.FindByLogin(ctx, provider, info.Key)
	if err == nil {
		return f.issuePair(ctx, user)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up external login: %w", err)
	}

	created, res := f.users.CreateUser(ctx, info.Username)
	if res.Succeeded() {
		if res = f.users.AddLogin(ctx, created, provider, info.Key); res.Succeeded() {
			return f.issuePair(ctx, created)
		}
	}

	// A conflict here usually means we lost the race and the identity
	// exists now; one fresh lookup resolves that case.
	user, err = f.users.FindByLogin(ctx, provider, info.Key)
	if err == nil {
		return f.issuePair(ctx, user)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up external login: %w", err)
	}
	return nil, newValidationError(res)
}

// RefreshTokens exchanges a refresh token for a fresh pair. Malformed,
// unknown, expired, and consumed tokens are all answered with ErrDenied.
func (f *Flows) RefreshTokens(ctx context.Context, req api.RefreshRequest) (*api.AuthTokens, error) {
	if req.RefreshToken == "" {
		return nil, ErrDenied
	}

	access, refresh, err := f.tokens.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, tokens.ErrInvalidToken) {
			return nil, ErrDenied
		}
		return nil, fmt.Errorf("refreshing tokens: %w", err)
	}
	if access == "" || refresh == "" {
		return nil, ErrDenied
	}

	return &api.AuthTokens{AccessToken: access, RefreshToken: refresh}, nil
}

// ConfirmEmail redeems an emailed confirmation code. Absent fields,
// unknown users, and rejected tokens are all answered with ErrDenied.
// An undecodable code is different: it cannot come from a legitimate
// confirmation mail, so it propagates as a fault instead of a denial.
func (f *Flows) ConfirmEmail(ctx context.Context, conf api.EmailConfirmation) error {
	if conf.UserID == "" || conf.Code == "" {
		return ErrDenied
	}

	user, err := f.users.FindByID(ctx, conf.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDenied
		}
		return fmt.Errorf("looking up user: %w", err)
	}

	token, err := base64.RawURLEncoding.DecodeString(conf.Code)
	if err != nil {
		return fmt.Errorf("decoding confirmation code: %w", err)
	}

	if res := f.users.ConfirmEmail(ctx, user, token); !res.Succeeded() {
		return ErrDenied
	}
	return nil
}

func (f *Flows) issuePair(ctx context.Context, user store.User) (*api.AuthTokens, error) {
	access, err := f.tokens.IssueAccessToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}
	refresh, err := f.tokens.IssueRefreshToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("issuing refresh token: %w", err)
	}
	return &api.AuthTokens{AccessToken: access, RefreshToken: refresh}, nil
}
