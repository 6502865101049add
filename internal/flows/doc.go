// Package flows contains the request/response halves of every session transition.
//
// Each flow function (RunLogin, RunLogout, RunRefresh, RunRestore) accepts a typed
// dependency struct, performs its backend call through [Caller] and returns a
// result. Flows never touch the credential store, the refresh timer or the event
// dispatcher; the root client applies results under its session lock.
//
// # Architecture boundaries
//
// Flow functions coordinate the API client and token inspection. Ownership of
// session state stays with the root client.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goCartes (to avoid import cycles).
//   - Write credentials or emit notifications.
package flows
