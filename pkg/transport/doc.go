// Package transport defines the handler contract and middleware chain for
// the ausweis HTTP surface.
//
// The transport layer bridges external clients and the identity flow
// orchestrator. It deserializes incoming requests into the payload types
// defined in pkg/api, dispatches them through the Service interface, and
// maps each outcome onto one of the closed set of response shapes.
//
// # Response Shapes
//
// Exactly two client-error shapes exist, and no handler may invent a third:
//
//   - An empty 400 with no body, written by WriteDenied. Every
//     authentication-style failure uses it so a caller cannot tell an
//     unknown account from a wrong password or an unmet sign-in policy.
//   - A 400 validation problem (code to descriptions), written by
//     WriteValidationProblem. Only account creation and linking use it,
//     where disclosure is expected by client UIs.
//
// Faults (collaborator outages, undecodable confirmation codes) become an
// opaque 500; the detail goes to the log, never to the client.
//
// # Middleware
//
// Middleware here is plain net/http middleware composed with Chain. The
// built-ins cover panic recovery, request ID assignment (X-Request-Id),
// structured request logging via log/slog, a per-client rate limit on the
// /identity routes, and in-flight tracking for draining shutdowns.
package transport
