package store

import (
	"fmt"

	"github.com/rhuss/ausweis/pkg/api"
)

// ResultError is a single failure reported by a store write: a
// machine-readable code and a human-readable description.
type ResultError struct {
	Code        string
	Description string
}

// Result is the outcome of a store write. It carries a success flag and,
// on failure, the ordered set of failures the store observed. The zero
// value is a failed Result with no reasons; use OK or Fail.
type Result struct {
	ok     bool
	errors []ResultError
}

// OK returns a successful Result.
func OK() Result {
	return Result{ok: true}
}

// Fail returns a failed Result carrying the given errors in order.
func Fail(errs ...ResultError) Result {
	return Result{errors: errs}
}

// Succeeded reports whether the write succeeded.
func (r Result) Succeeded() bool {
	return r.ok
}

// Errors returns the failures in the order the store reported them.
// It is empty on success.
func (r Result) Errors() []ResultError {
	return r.errors
}

// DuplicateUsername reports that the username is already taken.
func DuplicateUsername(name string) ResultError {
	return ResultError{
		Code:        api.CodeDuplicateUsername,
		Description: fmt.Sprintf("username %q is already taken", name),
	}
}

// InvalidUsername reports a username that fails the store's rules.
func InvalidUsername(reason string) ResultError {
	return ResultError{Code: api.CodeInvalidUsername, Description: "invalid username: " + reason}
}

// PasswordTooShort reports a password below the minimum length.
func PasswordTooShort(min int) ResultError {
	return ResultError{
		Code:        api.CodePasswordTooShort,
		Description: fmt.Sprintf("password must be at least %d characters", min),
	}
}

// DuplicateLogin reports that the (provider, key) pair is already linked
// to a user.
func DuplicateLogin(provider string) ResultError {
	return ResultError{
		Code:        api.CodeDuplicateLogin,
		Description: fmt.Sprintf("a %s login is already linked to an account", provider),
	}
}

// InvalidLogin reports a malformed external login.
func InvalidLogin(reason string) ResultError {
	return ResultError{Code: api.CodeInvalidLogin, Description: "invalid external login: " + reason}
}

// InvalidToken reports a confirmation token that did not match.
func InvalidToken() ResultError {
	return ResultError{Code: api.CodeInvalidToken, Description: "invalid confirmation token"}
}

// StorageFailure reports an infrastructure fault during a write. The
// description stays generic; details belong in the store's own logs.
func StorageFailure() ResultError {
	return ResultError{Code: api.CodeStorageFailure, Description: "the operation could not be completed"}
}
