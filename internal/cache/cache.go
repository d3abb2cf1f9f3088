// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cache implements the two-tier fingerprint→artifact cache: an
// in-process LRU with single-flight build coalescing, optionally backed by
// a shared durable store. Eviction is the cache's sole responsibility.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/girishdigge/dreamscapes-sub008/internal/dream"
)

// Entry is one cached artifact plus its bookkeeping fields.
type Entry struct {
	Fingerprint  string
	Artifact     *dream.Artifact
	CreatedAt    time.Time
	TTL          time.Duration
	Source       dream.Source
	QualityScore *float64
	Hits         int64
	lastAccess   time.Time
	approxBytes  int64
}

func (e *Entry) expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// Stats is the aggregate counter snapshot published by the metrics surface.
type Stats struct {
	Size               int
	MaxSize            int
	HitRate            float64
	Evictions          int64
	AverageGetLatency  time.Duration
	SourceDistribution map[dream.Source]int64
	MemoryEstimate     int64
}

// TTLPolicy maps a quality tier to its TTL, per the cache contract.
type TTLPolicy struct {
	Draft     time.Duration
	Standard  time.Duration
	High      time.Duration
	Cinematic time.Duration
}

// DefaultTTLPolicy matches the defaults named in the cache contract.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Draft:     5 * time.Minute,
		Standard:  30 * time.Minute,
		High:      time.Hour,
		Cinematic: 2 * time.Hour,
	}
}

// TTLFor resolves the TTL for a quality tier.
func (p TTLPolicy) TTLFor(q dream.Quality) time.Duration {
	switch q {
	case dream.QualityDraftReq:
		return p.Draft
	case dream.QualityHighReq:
		return p.High
	case dream.QualityCinematicReq:
		return p.Cinematic
	default:
		return p.Standard
	}
}

// SharedBackend is the optional second cache tier; failures here must never
// block the in-process path, per the write-through/best-effort contract.
type SharedBackend interface {
	Get(ctx context.Context, fingerprint string) (*Entry, bool, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, fingerprint string) error
}

// Cache is the in-process LRU, guarded by one mutex so a reader either
// sees the previous entry or the new one, never a partial write; the
// single-flight table keeps its own lock.
type Cache struct {
	mu       sync.RWMutex
	maxSize  int
	ttl      TTLPolicy
	index    map[string]*list.Element
	order    *list.List // front = most recently used
	group    singleflight.Group
	shared   SharedBackend

	hits       int64
	misses     int64
	evictions  int64
	sourceDist map[dream.Source]int64

	getCount   int64
	getLatency time.Duration
	approxSize int64
}

// New constructs an in-process cache with an optional shared backend (nil
// disables the second tier).
func New(maxSize int, ttl TTLPolicy, shared SharedBackend) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Cache{
		maxSize:    maxSize,
		ttl:        ttl,
		index:      make(map[string]*list.Element),
		order:      list.New(),
		shared:     shared,
		sourceDist: make(map[dream.Source]int64),
	}
}

// Get looks up fingerprint, evicting it in place if expired. It never
// contacts the shared backend; no Cache method reads from it, and
// PutFingerprint only writes through to it.
func (c *Cache) Get(fingerprint string) (*Entry, bool) {
	start := time.Now()
	c.mu.Lock()
	defer func() {
		c.getCount++
		c.getLatency += time.Since(start)
		c.mu.Unlock()
	}()

	el, ok := c.index[fingerprint]
	if !ok {
		c.misses++
		return nil, false
	}

	entry := el.Value.(*Entry)
	if entry.expired(time.Now()) {
		c.removeLocked(el)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(el)
	entry.Hits++
	entry.lastAccess = time.Now()
	c.hits++

	copy := *entry
	return &copy, true
}

// PutFingerprint inserts or replaces the entry for fingerprint, evicting
// LRU-oldest entries down to maxSize. The shared backend, if configured, is
// written through best-effort; its failure never blocks this call.
func (c *Cache) PutFingerprint(ctx context.Context, fingerprint string, artifact *dream.Artifact, quality dream.Quality, source dream.Source) *Entry {
	entry := &Entry{
		Fingerprint: fingerprint,
		Artifact:    artifact,
		CreatedAt:   time.Now(),
		TTL:         c.ttlFor(quality),
		Source:      source,
		lastAccess:  time.Now(),
		approxBytes: estimateBytes(artifact),
	}
	c.putEntry(entry)
	if c.shared != nil {
		_ = c.shared.Put(ctx, entry)
	}
	return entry
}

// ttlFor resolves the TTL for a quality tier under the lock, since the
// policy may be replaced at runtime by SetTTLPolicy.
func (c *Cache) ttlFor(quality dream.Quality) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ttl.TTLFor(quality)
}

// SetTTLPolicy replaces the quality-tier TTLs in place; entries already
// cached keep the TTL they were written with.
func (c *Cache) SetTTLPolicy(p TTLPolicy) {
	c.mu.Lock()
	c.ttl = p
	c.mu.Unlock()
}

func (c *Cache) putEntry(entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[entry.Fingerprint]; ok {
		c.order.MoveToFront(el)
		c.approxSize -= el.Value.(*Entry).approxBytes
		el.Value = entry
	} else {
		el := c.order.PushFront(entry)
		c.index[entry.Fingerprint] = el
	}
	c.approxSize += entry.approxBytes
	c.sourceDist[entry.Source]++

	for c.order.Len() > c.maxSize {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeLocked(back)
		c.evictions++
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	entry := el.Value.(*Entry)
	delete(c.index, entry.Fingerprint)
	c.order.Remove(el)
	c.approxSize -= entry.approxBytes
}

// estimateBytes approximates an artifact's in-memory footprint by its
// serialized size, which tracks structure/entity counts closely enough for
// the memoryEstimate stat.
func estimateBytes(artifact *dream.Artifact) int64 {
	b, err := gojson.Marshal(artifact)
	if err != nil {
		return 0
	}
	return int64(len(b))
}

// BuildFunc produces a fresh artifact on a cache miss; it is invoked at
// most once per fingerprint concurrently, satisfying the single-flight
// ordering guarantee in the concurrency model.
type BuildFunc func(ctx context.Context) (*dream.Artifact, dream.Quality, dream.Source, error)

// GetOrBuild returns the cached entry for fingerprint, or calls build under
// single-flight coalescing on a miss; concurrent callers for the same
// fingerprint share the one in-flight build and its result.
func (c *Cache) GetOrBuild(ctx context.Context, fingerprint string, build BuildFunc) (*Entry, bool, error) {
	if entry, ok := c.Get(fingerprint); ok {
		return entry, true, nil
	}

	v, err, _ := c.group.Do(fingerprint, func() (interface{}, error) {
		// Re-check: another goroutine may have populated the cache while we
		// were waiting to become the single-flight leader.
		if entry, ok := c.Get(fingerprint); ok {
			return entry, nil
		}
		artifact, quality, source, err := build(ctx)
		if err != nil {
			return nil, err
		}
		entry := c.PutFingerprint(ctx, fingerprint, artifact, quality, source)
		return entry, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Entry), false, nil
}

// Invalidate strategies.
const (
	InvalidateBySource   = "by_source"
	InvalidateByAge      = "by_age"
	InvalidateByFailedAI = "by_failed_ai"
	InvalidateAll        = "all"
)

// Invalidate removes entries matching strategy/value and returns the count
// removed.
func (c *Cache) Invalidate(strategy string, value string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for el := c.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*Entry)
		if matchesInvalidation(entry, strategy, value) {
			toRemove = append(toRemove, el)
		}
	}
	for _, el := range toRemove {
		c.removeLocked(el)
	}
	return len(toRemove)
}

func matchesInvalidation(entry *Entry, strategy, value string) bool {
	switch strategy {
	case InvalidateAll:
		return true
	case InvalidateBySource:
		return string(entry.Source) == value
	case InvalidateByFailedAI:
		return entry.Source == dream.SourceLocalFallback || entry.Source == dream.SourceSafeFallback || entry.Source == dream.SourceEmergencyFallback
	case InvalidateByAge:
		maxAge, err := time.ParseDuration(value)
		if err != nil {
			return false
		}
		return time.Since(entry.CreatedAt) > maxAge
	default:
		return false
	}
}

// Sweep evicts every expired entry; intended to run on a periodic ticker
// in addition to the lookup-time expiry check.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element
	for el := c.order.Front(); el != nil; el = el.Next() {
		if el.Value.(*Entry).expired(now) {
			toRemove = append(toRemove, el)
		}
	}
	for _, el := range toRemove {
		c.removeLocked(el)
	}
	return len(toRemove)
}

// Stats returns the current aggregate counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	dist := make(map[dream.Source]int64, len(c.sourceDist))
	for k, v := range c.sourceDist {
		dist[k] = v
	}

	avgGet := time.Duration(0)
	if c.getCount > 0 {
		avgGet = c.getLatency / time.Duration(c.getCount)
	}

	return Stats{
		Size:               c.order.Len(),
		MaxSize:            c.maxSize,
		HitRate:            hitRate,
		Evictions:          c.evictions,
		AverageGetLatency:  avgGet,
		SourceDistribution: dist,
		MemoryEstimate:     c.approxSize,
	}
}
