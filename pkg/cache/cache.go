// Package cache provides response caching for registry metadata fetches.
//
// Planning a publish run issues one metadata fetch per package in the
// closure; on large workspaces that is hundreds of requests against a
// rate-limited registry. Caching keeps repeated planning passes (plan,
// then publish) cheap and polite.
//
// Backends:
//   - FileCache: directory-backed, for CLI usage
//   - RedisCache: shared backend for CI runners
//   - NullCache: disables caching
package cache

import (
	"context"
	"time"
)

// TTLRegistry is the lifetime of cached registry metadata responses.
// Deliberately short: a stale "latest version" answer is exactly the
// race the executor's pre-publish check exists to catch, so there is
// no point caching it for long.
const TTLRegistry = 5 * time.Minute

// Cache is the storage interface for registry response caching.
// Implementations must be safe for concurrent use: classification
// fetches different packages in parallel.
type Cache interface {
	// Get retrieves a value. The second return reports whether the key
	// was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the backend.
	Close() error
}

// RegistryKey builds the cache key for a package's registry metadata.
// The registry URL is part of the key so that switching registries
// (e.g. a staging instance) never serves answers from another one.
func RegistryKey(registryURL, pkg string) string {
	return hashKey("registry", registryURL, pkg)
}
