package offsets

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/clock"
)

// SnapshotKey is the cache key of a tenant's period snapshot
func SnapshotKey(tenantID uuid.UUID, period string) string {
	return tenantPrefix(tenantID) + period
}

func tenantPrefix(tenantID uuid.UUID) string {
	return tenantID.String() + ":"
}

// SnapshotCache keeps derived period snapshots in memory.
//
// Reads run in parallel. Rebuilds of the same key are collapsed into one
// writer, and a rebuild that started before an invalidation of its key is
// not stored.
type SnapshotCache struct {
	data   map[string]*cacheEntry
	gen    map[string]uint64
	ttl    time.Duration
	clock  clock.Clock
	group  singleflight.Group
	mu     sync.RWMutex
	hits   int64
	misses int64

	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once
}

type cacheEntry struct {
	value      *PeriodSnapshot
	expiration time.Time
}

// CacheStats reports cache usage
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// NewSnapshotCache creates a cache whose entries expire after ttl
func NewSnapshotCache(ttl time.Duration, c clock.Clock) *SnapshotCache {
	if c == nil {
		c = clock.SystemClock{}
	}
	cache := &SnapshotCache{
		data:    make(map[string]*cacheEntry),
		gen:     make(map[string]uint64),
		ttl:     ttl,
		clock:   c,
		cleanup: time.NewTicker(time.Minute),
		done:    make(chan struct{}),
	}

	go cache.cleanupLoop()

	return cache
}

// Get returns the cached snapshot if present and not expired
func (c *SnapshotCache) Get(tenantID uuid.UUID, period string) (*PeriodSnapshot, bool) {
	key := SnapshotKey(tenantID, period)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	entry, ok := c.data[key]
	if !ok || now.After(entry.expiration) || entry.value.ExpiredAt(now) {
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.value, true
}

// Set stores a snapshot
func (c *SnapshotCache) Set(snap *PeriodSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[SnapshotKey(snap.TenantID, snap.Period)] = c.newEntry(snap)
}

// newEntry expires at the TTL or the snapshot's override boundary,
// whichever comes first. Callers hold c.mu.
func (c *SnapshotCache) newEntry(snap *PeriodSnapshot) *cacheEntry {
	expiration := c.clock.Now().Add(c.ttl)
	if snap.ValidUntil != nil && snap.ValidUntil.Before(expiration) {
		expiration = *snap.ValidUntil
	}
	return &cacheEntry{value: snap, expiration: expiration}
}

// Invalidate drops a tenant's period snapshot and fences in-flight rebuilds
func (c *SnapshotCache) Invalidate(tenantID uuid.UUID, period string) {
	key := SnapshotKey(tenantID, period)

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	c.gen[key]++
}

// InvalidateTenant drops every snapshot of a tenant
func (c *SnapshotCache) InvalidateTenant(tenantID uuid.UUID) {
	prefix := tenantPrefix(tenantID)

	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
	// gen also holds keys whose rebuild is still in flight
	for key := range c.gen {
		if strings.HasPrefix(key, prefix) {
			c.gen[key]++
		}
	}
}

// GetOrRefresh returns the cached snapshot or rebuilds it with build.
// The boolean reports a cache hit.
func (c *SnapshotCache) GetOrRefresh(tenantID uuid.UUID, period string, build func() (*PeriodSnapshot, error)) (*PeriodSnapshot, bool, error) {
	if snap, ok := c.Get(tenantID, period); ok {
		return snap, true, nil
	}
	snap, err := c.Refresh(tenantID, period, build)
	return snap, false, err
}

// Refresh rebuilds a snapshot and stores it. Concurrent refreshes of the
// same key and generation share one build call; a refresh issued after an
// invalidation starts its own build.
func (c *SnapshotCache) Refresh(tenantID uuid.UUID, period string, build func() (*PeriodSnapshot, error)) (*PeriodSnapshot, error) {
	key := SnapshotKey(tenantID, period)

	c.mu.Lock()
	gen := c.gen[key]
	c.gen[key] = gen
	c.mu.Unlock()

	v, err, _ := c.group.Do(fmt.Sprintf("%s#%d", key, gen), func() (interface{}, error) {
		snap, err := build()
		if err != nil {
			return nil, err
		}
		if snap == nil {
			return nil, fmt.Errorf("snapshot build for %s returned nil", key)
		}

		c.mu.Lock()
		if c.gen[key] == gen {
			c.data[key] = c.newEntry(snap)
		}
		c.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*PeriodSnapshot), nil
}

// Size returns the number of entries, including expired ones not yet swept
func (c *SnapshotCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.data)
}

// Stats returns cache statistics
func (c *SnapshotCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:    len(c.data),
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: hitRate,
	}
}

func (c *SnapshotCache) cleanupLoop() {
	for {
		select {
		case <-c.cleanup.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *SnapshotCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for key, entry := range c.data {
		if now.After(entry.expiration) {
			delete(c.data, key)
		}
	}
}

// Stop stops the cleanup goroutine
func (c *SnapshotCache) Stop() {
	c.once.Do(func() {
		c.cleanup.Stop()
		close(c.done)
	})
}
