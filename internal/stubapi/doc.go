// Package stubapi is an in-memory stand-in for the cartes backend.
//
// It serves the same routes under /api as the real service, issues HS256 bearer
// tokens, hashes account passwords with argon2id, keeps an editable inventory and
// recomputes statistics from it on every read. Tests drive it through
// [Server.FailNext], [Server.Revoke] and [Server.SetExpiresIn] and observe it
// through [Server.Hits].
//
// Spreadsheet imports are read as semicolon-separated text; the stub does not
// decode real workbooks.
package stubapi
