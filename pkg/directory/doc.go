// Package directory stores users durably in PostgreSQL behind a
// cache-aside layer keyed by internal id, Google id, and email.
//
// # Consistency
//
// The backing store is authoritative. Cache writes across the three keys
// are not atomic: after an update a reader may see one key refreshed while
// another still holds the previous value, bounded by the time the three
// writes take plus the per-key TTL (one hour by default). Cache backend
// failures never surface to callers; they degrade to store reads.
//
// # Concurrent upserts
//
// The users table carries a uniqueness constraint on google_id. When two
// logins race to insert the same identity, the losing insert is retried
// as an update against the winner's row, so exactly one row exists per
// external id and neither login observes an error.
package directory
