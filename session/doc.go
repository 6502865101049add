// Package session provides the credential store: persistence of the bearer token and
// the serialized user record behind a small key-value [Storage] abstraction.
//
// # Storage backends
//
// [MemoryStorage] keeps values in process memory, [FileStorage] persists a single JSON
// document on disk (the CLI's equivalent of browser local storage), and [RedisStorage]
// shares credentials between processes through Redis.
//
// # Architecture boundaries
//
// This package owns the [Store] (token + user pairing) and the [User] model. It does
// NOT talk to the remote API, schedule refreshes, or evaluate permissions; those
// responsibilities belong to the Client.
//
// # What this package must NOT do
//
//   - Import goCartes, api, or permission (no upward imports).
//   - Expose a state where the token is present without the user, or the reverse.
//   - Log or print credential values.
package session
