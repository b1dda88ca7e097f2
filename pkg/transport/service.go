package transport

import (
	"context"

	"github.com/rhuss/ausweis/pkg/api"
)

// Service is the contract between the HTTP surface and the identity flow
// orchestrator. Implementations signal failure through the error: an
// identity.ErrDenied collapses to the empty 400 shape, a
// *identity.ValidationError becomes a validation problem, and anything
// else is a fault the adapter answers with an opaque 500.
type Service interface {
	// Register provisions a password account. Success carries no tokens.
	Register(ctx context.Context, info api.PasswordLoginInfo) error

	// PasswordLogin authenticates a username/password pair.
	PasswordLogin(ctx context.Context, info api.PasswordLoginInfo) (*api.AuthTokens, error)

	// ExternalLogin signs in a federated identity, provisioning a local
	// user on first use. The provider comes from the route.
	ExternalLogin(ctx context.Context, provider string, info api.ExternalUserInfo) (*api.AuthTokens, error)

	// RefreshTokens exchanges a single-use refresh token for a new pair.
	RefreshTokens(ctx context.Context, req api.RefreshRequest) (*api.AuthTokens, error)

	// ConfirmEmail redeems an emailed confirmation code.
	ConfirmEmail(ctx context.Context, conf api.EmailConfirmation) error
}
