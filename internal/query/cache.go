package query

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes FetchBalances per Key for a TTL. Concurrent lookups of the
// same key share one fetch.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time

	group   singleflight.Group
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	wallet   string
	balances []Balance
	expires  time.Time
}

func NewCache(fetcher Fetcher, ttl time.Duration) *Cache {
	return &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Balances returns the cached balances for key, fetching them when missing
// or expired. key.Endpoint defaults to the fetcher's endpoint.
func (c *Cache) Balances(ctx context.Context, key Key) ([]Balance, error) {
	if key.Endpoint == "" {
		key.Endpoint = c.fetcher.Endpoint()
	}
	id := key.String()

	c.mu.Lock()
	entry, ok := c.entries[id]
	c.mu.Unlock()
	if ok && c.now().Before(entry.expires) {
		return entry.balances, nil
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		c.mu.Lock()
		entry, ok := c.entries[id]
		c.mu.Unlock()
		if ok && c.now().Before(entry.expires) {
			return entry.balances, nil
		}

		balances, err := FetchBalances(ctx, c.fetcher, key)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[id] = cacheEntry{wallet: key.Wallet, balances: balances, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return balances, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Balance), nil
}

// Invalidate drops every entry for wallet, e.g. after a transaction from it
// succeeded.
func (c *Cache) Invalidate(wallet string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, entry := range c.entries {
		if entry.wallet == wallet {
			delete(c.entries, id)
		}
	}
}
