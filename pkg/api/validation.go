package api

// Validate checks the request for missing fields. It returns a
// ValidationProblem describing every failure, or nil if the request is
// complete. Content rules (length, uniqueness) are the credential
// store's business, not the transport's.
func (r PasswordLoginInfo) Validate() *ValidationProblem {
	p := NewValidationProblem()
	if r.Username == "" {
		p.Add(CodeInvalidUsername, "username is required")
	}
	if r.Password == "" {
		p.Add(CodePasswordTooShort, "password is required")
	}
	if len(p.Errors) == 0 {
		return nil
	}
	return p
}

// Validate checks the external login payload for missing fields. The
// provider field is optional: the route segment names the provider, and
// agreement between the two is checked downstream.
func (r ExternalUserInfo) Validate() *ValidationProblem {
	p := NewValidationProblem()
	if r.Key == "" {
		p.Add(CodeInvalidLogin, "key is required")
	}
	if r.Username == "" {
		p.Add(CodeInvalidUsername, "username is required")
	}
	if len(p.Errors) == 0 {
		return nil
	}
	return p
}

// Validate reports whether a refresh token is present. Whether it is
// well-formed or live is the token service's decision.
func (r RefreshRequest) Validate() *ValidationProblem {
	if r.RefreshToken == "" {
		p := NewValidationProblem()
		p.Add(CodeInvalidRequest, "refresh_token is required")
		return p
	}
	return nil
}

// Validate checks the confirmation payload for missing fields. The code
// is treated as an opaque string here; decoding happens downstream.
func (r EmailConfirmation) Validate() *ValidationProblem {
	p := NewValidationProblem()
	if r.UserID == "" {
		p.Add(CodeInvalidRequest, "user_id is required")
	}
	if r.Code == "" {
		p.Add(CodeInvalidToken, "code is required")
	}
	if len(p.Errors) == 0 {
		return nil
	}
	return p
}
