// Package goCartes is the client side of the cartes inventory: an HTTP client for
// the inventory backend plus the operator session that authorizes it.
//
// A [Client] is built once through [Builder.Build] and is safe for concurrent use.
// It keeps one session at a time. Login stores the bearer token and the operator
// record, schedules a token refresh ahead of expiry, and drops every cached read.
// A 401 on any authenticated call ends the session exactly once and emits
// [EventSessionExpired]; a 403 leaves the session in place.
//
// # Architecture boundaries
//
// goCartes is the public surface. It exposes [Client], [Builder], [Config], the
// inventory value types and the error kinds. Transport lives in api, the read
// cache in cache, credentials in session and role checks in permission. Flow
// orchestration and event delivery live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Call the backend or emit events while holding the session lock.
//   - Let a refresh or restore started under one session alter a later one.
//   - Retry a request that failed with 401 or 403.
//   - Import any sub-package that re-imports goCartes (no import cycles).
package goCartes
