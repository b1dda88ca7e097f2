// Package tokens mints and rotates the token pairs handed out by the
// sign-in flows.
//
// Access tokens are short-lived HS256-signed JWTs carrying the user id
// as subject. Refresh tokens are opaque strings of the form
// "<id>.<secret>": the id locates a stored [Record], the secret is
// random and stored only as a SHA-256 digest. A refresh token is
// single-use. Redeeming it consumes the record and installs a successor
// in the same token family; presenting a consumed token again revokes
// the entire family, on the assumption that the token leaked.
//
// The [RefreshStore] interface isolates persistence. Two
// implementations ship with the service: an in-memory store
// (pkg/tokens/memory) for tests and single-node setups, and a Redis
// store (pkg/tokens/redis) that rotates atomically through a Lua
// script.
package tokens
