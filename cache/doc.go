// Package cache holds dashboard reads in memory for a fixed TTL.
//
// Entries are keyed by logical name (stats_globales, cartes_all, ...). An entry whose
// age reaches the TTL is never returned; the next [Cache.Read] fetches again. Writers
// call [Cache.Invalidate] for the keys their change affects.
//
// # What this package must NOT do
//
//   - Persist entries or share them across processes.
//   - Cache failed fetches.
//   - Know which keys a given write affects; that mapping belongs to the caller.
package cache
