// Package cache provides the generic key/value TTL cache used by the user
// directory.
//
// Two backends implement the Store interface: RedisStore for shared
// deployments and MemoryStore (an expirable LRU) for single-node setups and
// tests. Callers treat any backend error as a miss, so the directory stays
// correct with the cache degraded or absent.
package cache
