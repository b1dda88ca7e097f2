package api

// Well-known validation codes. They appear as keys of
// ValidationProblem.Errors, so clients key on the exact strings.
const (
	CodeDuplicateUsername = "DuplicateUsername"
	CodeInvalidUsername   = "InvalidUsername"
	CodePasswordTooShort  = "PasswordTooShort"
	CodeDuplicateLogin    = "DuplicateLogin"
	CodeInvalidLogin      = "InvalidLogin"
	CodeInvalidProvider   = "InvalidProvider"
	CodeInvalidToken      = "InvalidToken"
	CodeInvalidRequest    = "InvalidRequest"
	CodeStorageFailure    = "StorageFailure"
)

// ValidationProblem is the structured failure body for data-integrity
// failures during account creation and login linking: a mapping from a
// machine-readable error code to one or more human-readable descriptions.
//
// It is the only failure shape that carries content. Everything
// authentication-flavored (unknown user, wrong password, denied refresh)
// is answered with an empty 400 instead, so no handler may extend this
// type into a general-purpose error envelope.
type ValidationProblem struct {
	Errors map[string][]string `json:"errors"`
}

// NewValidationProblem returns an empty problem ready for Add.
func NewValidationProblem() *ValidationProblem {
	return &ValidationProblem{Errors: make(map[string][]string)}
}

// Add appends a description under the given error code, preserving the
// order in which descriptions for that code were reported.
func (p *ValidationProblem) Add(code, description string) {
	p.Errors[code] = append(p.Errors[code], description)
}

// Has reports whether the problem contains the given error code.
func (p *ValidationProblem) Has(code string) bool {
	_, ok := p.Errors[code]
	return ok
}
