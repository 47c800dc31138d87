// Package login orchestrates one login completion: resolve identity,
// upsert the user, record the attempt, and emit a two-variant result.
package login
