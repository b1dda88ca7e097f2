package api

// PasswordLoginInfo carries the credentials for registration and password
// login. The payload is transient: it exists for the duration of a single
// call and is never persisted or logged.
type PasswordLoginInfo struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ExternalUserInfo carries a federated identity during external login:
// the provider-issued subject key and a suggested username used when the
// identity is seen for the first time. Provider is optional in the body;
// the route segment is authoritative.
type ExternalUserInfo struct {
	Provider string `json:"provider,omitempty"`
	Key      string `json:"key"`
	Username string `json:"username"`
}

// RefreshRequest wraps a single opaque refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// EmailConfirmation carries a user identifier and the URL-safe base64
// confirmation code delivered by a confirmation email.
type EmailConfirmation struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

// AuthTokens is the success payload of the login and refresh endpoints.
// Both tokens are opaque to clients. The refresh token is single-use:
// presenting it to the refresh endpoint invalidates it and yields a new
// pair.
type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
