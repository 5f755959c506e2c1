package consql

import (
	"context"
	"time"
)

// Cache stores encoded listing pages. The store writes pages after a
// successful listing and drops every page of a table with DeletePrefix
// when one of its rows is saved or removed. Any shared cache (Redis,
// Memcached, an in-process map) can back it.
type Cache interface {
	// Get returns the page stored under key, or nil when there is none.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores a page. A zero ttl keeps it until deleted.
	Set(ctx context.Context, key string, page []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// CacheKey identifies a cached listing.
type CacheKey struct {
	Table     string
	Statement string
	Digest    string // blake2b of the rendered query and args
}

// Prefix returns the prefix shared by every listing of the table.
func (k CacheKey) Prefix() string {
	return "consql:" + k.Table + ":"
}

// String renders the key as "consql:<table>:<statement>:<digest>".
func (k CacheKey) String() string {
	return k.Prefix() + k.Statement + ":" + k.Digest
}
