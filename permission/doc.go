// Package permission maps role names to permission sets backed by 64-bit masks.
//
// # Model
//
// Permission names are registered once in a [Registry] and receive a stable bit.
// A [RoleManager] composes those bits into one [Mask64] per role. The highest bit is
// reserved as the wildcard: a role registered with [RoleManager.RegisterWildcard]
// passes every check, including for names that were never registered.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. The cartes role table
// lives in [DefaultPolicy]; callers may build their own.
//
// # What this package must NOT do
//
//   - Access storage or the network.
//   - Import goCartes, api, or session.
//   - Change role masks after Freeze.
package permission
