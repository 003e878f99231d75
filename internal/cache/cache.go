// Package cache is the short-lived read cache in front of the session store.
// Pages of listed sessions are cached for a few minutes under a key derived
// from the owner, page size, filter signature, and cursor. Any write to an
// owner's data proactively evicts every cached page for that owner, so the
// TTL only ever covers reads that raced no writes.
package cache

import (
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/noorhq/go-history-backend/internal/pagination"
)

var (
	// cacheHits / cacheMisses count page-cache lookups by outcome.
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "history_cache_hits_total",
		Help: "Total number of session page cache hits.",
	})
	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "history_cache_misses_total",
		Help: "Total number of session page cache misses.",
	})

	// cacheEvictions counts pages dropped by owner-scoped invalidation.
	cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "history_cache_evictions_total",
		Help: "Total number of cached pages evicted on write.",
	})
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMisses, cacheEvictions)
}

// PageCache caches shaped session pages per owner with a fixed TTL. It keeps
// a side index of keys per owner so a write can evict all of an owner's
// pages without touching anyone else's.
type PageCache struct {
	ttl   time.Duration
	store *gocache.Cache

	mu    sync.Mutex
	owned map[string]map[string]struct{} // owner -> live cache keys
	gens  map[string]uint64              // owner -> invalidation epoch
}

// New builds a PageCache with the given entry TTL. Expired entries are
// reaped twice per TTL so the owner index never drifts far from the store.
func New(ttl time.Duration) *PageCache {
	c := &PageCache{
		ttl:   ttl,
		store: gocache.New(ttl, ttl/2),
		owned: make(map[string]map[string]struct{}),
		gens:  make(map[string]uint64),
	}
	c.store.OnEvicted(func(key string, _ any) { c.forget(key) })
	return c
}

// Key derives the cache key for one page request. filterSig comes from
// filter.Filter.Signature; cursor is the raw opaque cursor ("" for page one).
func Key(owner string, pageSize int, filterSig, cursor string) string {
	return fmt.Sprintf("%s|%d|%s|%s", owner, pageSize, filterSig, cursor)
}

// Get returns the cached page for key, if present and unexpired.
func (c *PageCache) Get(key string) (pagination.Page, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		cacheMisses.Inc()
		return pagination.Page{}, false
	}
	cacheHits.Inc()
	return v.(pagination.Page), true
}

// Generation reports the owner's current invalidation epoch. Callers snapshot
// it before computing a page and hand it back to Set, which drops any page
// whose epoch an invalidation has since moved past.
func (c *PageCache) Generation(owner string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[owner]
}

// Set stores a page for owner under key, recording the key in the owner
// index so InvalidateOwner can find it later. gen must be the value
// Generation returned before the page was computed: if the owner has been
// invalidated since, the page predates a write and is discarded instead of
// cached. The index insert and the store insert happen under one lock
// acquisition, so an invalidation can never slip between them and leave the
// stored page orphaned from the index. go-cache's Set never fires OnEvicted,
// so holding mu here cannot deadlock with forget.
func (c *PageCache) Set(owner string, gen uint64, key string, page pagination.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[owner] != gen {
		return
	}
	keys, ok := c.owned[owner]
	if !ok {
		keys = make(map[string]struct{})
		c.owned[owner] = keys
	}
	keys[key] = struct{}{}
	c.store.Set(key, page, c.ttl)
}

// InvalidateOwner drops every cached page belonging to owner and advances the
// owner's epoch so in-flight page computations cannot cache pre-write data.
// Called after any write touching the owner's sessions; other owners' entries
// are untouched. Store deletes happen outside mu because go-cache's Delete
// fires OnEvicted, which calls forget.
func (c *PageCache) InvalidateOwner(owner string) {
	c.mu.Lock()
	c.gens[owner]++
	keys := c.owned[owner]
	delete(c.owned, owner)
	c.mu.Unlock()

	for key := range keys {
		c.store.Delete(key)
		cacheEvictions.Inc()
	}
}

// Purge drops every entry. Used on shutdown and in tests. Every known epoch
// advances so in-flight Sets are dropped too.
func (c *PageCache) Purge() {
	c.mu.Lock()
	c.owned = make(map[string]map[string]struct{})
	for owner := range c.gens {
		c.gens[owner]++
	}
	c.mu.Unlock()
	c.store.Flush()
}

// forget removes an expired key from the owner index. The owner prefix is
// recoverable from the key shape, but scanning is simpler and eviction is
// rare, so walk the small index instead.
func (c *PageCache) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for owner, keys := range c.owned {
		if _, ok := keys[key]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.owned, owner)
			}
			return
		}
	}
}
