package platform

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedSearcher keeps successful results of the wrapped searcher for a short
// TTL so that a chat quote followed by a track command hits the platform once.
// Errors are never cached.
type CachedSearcher struct {
	inner Searcher
	cache *expirable.LRU[string, []Listing]
}

func NewCachedSearcher(inner Searcher, size int, ttl time.Duration) *CachedSearcher {
	if size <= 0 {
		size = 256
	}
	return &CachedSearcher{
		inner: inner,
		cache: expirable.NewLRU[string, []Listing](size, nil, ttl),
	}
}

func (c *CachedSearcher) Name() string { return c.inner.Name() }

func (c *CachedSearcher) Search(ctx context.Context, productName string) ([]Listing, error) {
	key := strings.ToLower(strings.Join(strings.Fields(productName), " "))
	if listings, ok := c.cache.Get(key); ok {
		return listings, nil
	}

	listings, err := c.inner.Search(ctx, productName)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, listings)
	return listings, nil
}
