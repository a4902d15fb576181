// Package storage is the small persistence layer behind the local completion cache.
//
// It offers:
//   - a key/value space with an atomic read-modify-write (Update)
//   - an append-only audit trail of recorded completions
//
// Two drivers exist: "file" (snapshot + JSON Lines journal) and "sqlite".
package storage
