package exporter

import (
	"context"
	"sync"
	"time"

	"github.com/cam3ron2/github-champion/internal/store"
)

// CacheConfig configures the snapshot cache used by /metrics and the report endpoints.
type CacheConfig struct {
	RefreshInterval time.Duration
	Now             func() time.Time
}

type cachedSnapshotReader struct {
	source          SnapshotReader
	refreshInterval time.Duration
	now             func() time.Time

	mu          sync.RWMutex
	initialized bool
	lastRefresh time.Time
	snapshot    store.Snapshot
	err         error
}

// NewCachedSnapshotReader wraps a snapshot reader so the source is read at most once per interval.
func NewCachedSnapshotReader(source SnapshotReader, cfg CacheConfig) SnapshotReader {
	if _, alreadyCached := source.(*cachedSnapshotReader); alreadyCached {
		return source
	}

	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	refreshInterval := cfg.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = 30 * time.Second
	}

	return &cachedSnapshotReader{
		source:          source,
		refreshInterval: refreshInterval,
		now:             nowFn,
	}
}

func (c *cachedSnapshotReader) Latest(ctx context.Context) (store.Snapshot, error) {
	if c == nil || c.source == nil {
		return store.Snapshot{}, store.ErrNoSnapshot
	}
	now := c.now()

	c.mu.RLock()
	if c.initialized && now.Sub(c.lastRefresh) < c.refreshInterval {
		snapshot, err := c.snapshot, c.err
		c.mu.RUnlock()
		return snapshot, err
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized && now.Sub(c.lastRefresh) < c.refreshInterval {
		return c.snapshot, c.err
	}

	snapshot, err := c.source.Latest(ctx)
	if err != nil && ctx.Err() != nil {
		// Cancelled reads are not cached.
		return store.Snapshot{}, err
	}
	c.snapshot, c.err = snapshot, err
	c.lastRefresh = now
	c.initialized = true
	return snapshot, err
}

// Invalidate forces the next read to go to the source.
func (c *cachedSnapshotReader) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = false
}

// Invalidate drops the cached snapshot of a reader created by NewCachedSnapshotReader.
func Invalidate(reader SnapshotReader) {
	if cached, ok := reader.(*cachedSnapshotReader); ok && cached != nil {
		cached.Invalidate()
	}
}
