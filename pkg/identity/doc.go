// Package identity orchestrates the five account flows: registration,
// password login, external (federated) login, refresh-token rotation,
// and email confirmation.
//
// The orchestrator is deliberately thin. All durable state lives in its
// two collaborators, a credential store (pkg/store) and a token service
// (pkg/tokens); each flow is a short, strictly sequential decision
// pipeline over them. Flows hold no per-call state, never retry, and
// never log.
//
// Outcomes follow a closed contract. A flow returns nil (or a token
// pair) on success, [ErrDenied] for every authentication-style
// rejection, a [*ValidationError] for disclosure-safe data-integrity
// failures, and any other error only for infrastructure faults. The
// single ErrDenied value is load-bearing: "no such user", "wrong
// password", "unconfirmed email", and "dead refresh token" must remain
// indistinguishable to callers, which is what blunts user-enumeration
// probes. Transports map these three classes to the wire and must not
// subdivide them further.
package identity
