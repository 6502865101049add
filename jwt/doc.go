// Package jwt reads expiry information from bearer tokens and issues HS256 tokens for
// the local stub backend.
//
// The client never holds the backend's signing key, so [Inspect] and [ExpiresAt] read
// claims without verifying the signature. They are scheduling hints only; the server
// remains the authority on token validity.
package jwt
