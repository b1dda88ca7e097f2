// Package store defines the credential-store capability interface consumed
// by the identity flows, the Result type stores use to report write
// outcomes, and the sentinel errors and validation rules shared across
// store implementations (memory, postgres).
//
// The orchestration layer depends only on the [CredentialStore] interface
// and the opaque [User] handle, never on a concrete record shape, so any
// implementation satisfying the interface is substitutable.
package store
