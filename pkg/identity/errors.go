package identity

import (
	"errors"
	"strings"

	"github.com/rhuss/ausweis/pkg/store"
)

// ErrDenied is the single rejection value for authentication-style
// failures. Every denial reason collapses into this one value so that
// callers cannot tell them apart; transports map it to an empty 400.
var ErrDenied = errors.New("identity: denied")

// ValidationError reports the data-integrity failures of a registration
// or login-linking attempt. Unlike ErrDenied it is safe to disclose:
// client UIs are expected to render the descriptions.
type ValidationError struct {
	Errors []store.ResultError
}

// Error lists the failure codes. Descriptions stay out of the error
// string; they are wire payload, not log material.
func (e *ValidationError) Error() string {
	codes := make([]string, len(e.Errors))
	for i, re := range e.Errors {
		codes[i] = re.Code
	}
	return "identity: validation failed: " + strings.Join(codes, ", ")
}

// newValidationError wraps the failures of a store write.
func newValidationError(res store.Result) *ValidationError {
	return &ValidationError{Errors: res.Errors()}
}
