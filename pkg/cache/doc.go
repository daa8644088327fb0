// Package cache stores GitHub API responses in Redis keyed by request
// URL and credential fingerprint, enabling ETag conditional requests.
//
// GitHub serves strong ETags on most GET endpoints and a 304 Not
// Modified response does not count against the rate limit, so
// revalidating through this cache stretches the hourly quota
// considerably for read-heavy workloads.
//
// Example usage:
//
//	manager := cache.NewManager(redisClient, cache.DefaultConfig())
//	entry, err := manager.Get(ctx, key)
//	if err == nil {
//		cache.ApplyConditionalHeaders(req, entry)
//	}
//
// Entries are scoped by a credential fingerprint so responses fetched
// with one token are never replayed to a caller holding another.
package cache
