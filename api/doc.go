// Package api is the single point of outbound HTTP traffic to the cartes backend.
//
// # Pipeline
//
// Every request is built against <BaseURL>/api, carries the client identification
// headers and a request id, and gets the bearer token when one is set. Every response
// is classified: 2xx decodes into the caller's target, 404 is a soft success with no
// data, and every failure becomes an [*Error] whose Kind belongs to a closed taxonomy
// ([KindSessionExpired], [KindPermissionDenied], [KindNetwork], [KindTimeout], ...).
// Raw transport errors never escape this package.
//
// # Hooks
//
// 401, 403, network and timeout failures call the matching [Hooks] function so the
// session layer can react (clear credentials, notify subscribers). Anonymous requests
// (login, password reset) map 401/403 to credential errors instead and skip the hooks.
//
// # Retry
//
// [Retry] and [RetryValue] run an operation up to N times with exponential backoff
// computed by the pure [Backoff] function. Authentication and validation failures are
// never retried.
//
// # What this package must NOT do
//
//   - Import goCartes, session, or cache.
//   - Clear credentials or emit notifications itself.
//   - Retry implicitly; only callers that opt in through [Retry] retry.
package api
