// Package cache implements the bounded local asset cache.
//
// A Store keeps one blob per asset variant on a core.FS, an in-memory
// index keyed by the variant's digest, and a Journal that persists the
// index between runs. The sum of entry sizes never exceeds the policy's
// MaxTotalSize: a Put that would overflow first evicts other entries, and
// an entry that can never fit is rejected with QUOTA_EXCEEDED before
// anything is written.
//
// # Layout
//
//	<root>/
//	  .temp/<uuid>            in-flight writes, renamed into place
//	  blobs/<d[:2]>/<digest>  one file per entry
//	  index.jsonl             default journal
//
// Each blob starts with a header line holding the SHA-256 of the logical
// bytes and the at-rest encoding, so a torn or tampered file is detected
// on read and treated as a miss.
//
// # Eviction
//
// Entries whose CreatedAt is older than MaxAge are always removed first.
// The rest are ranked by Score, a pure function of access count and
// recency, and removed lowest first until enough space is reclaimed.
//
// # Lifecycle
//
// Initialize must succeed before any other call. Close stops the
// background cleanup scheduler and flushes the journal; every call after
// Close fails with NOT_INITIALIZED.
package cache
