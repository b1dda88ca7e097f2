// Package api defines the wire types for the Ausweis identity service.
//
// This package provides the request and response payloads for the five
// identity endpoints (register, password login, external login, token
// refresh, email confirmation) together with the validation-problem
// failure shape.
//
// The package has zero external dependencies (Go standard library only)
// and performs no I/O.
//
// Failure bodies are deliberately constrained: apart from
// [ValidationProblem] there is no structured error payload. The opaque
// endpoints answer every authentication-style failure with an empty 400
// so that distinct causes are indistinguishable on the wire (see
// pkg/identity for the rationale).
package api
