package ingest

import (
	"sync"

	"github.com/vantagegraph/vantage/internal/domain"
)

// MicroCache holds the latest per-asset book summary, keyed by the venue-side
// asset identifier. It is process-local and lost on exit.
type MicroCache struct {
	mu      sync.RWMutex
	entries map[string]domain.BookState
}

// NewMicroCache creates an empty cache.
func NewMicroCache() *MicroCache {
	return &MicroCache{entries: make(map[string]domain.BookState)}
}

// Get returns the cached state for an asset.
func (c *MicroCache) Get(assetID string) (domain.BookState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[assetID]
	return s, ok
}

// Put replaces the cached state for an asset.
func (c *MicroCache) Put(assetID string, s domain.BookState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[assetID] = s
}

// Update applies fn to the current state for an asset (zero value if absent)
// and stores the result. The whole read-modify-write runs under the lock.
func (c *MicroCache) Update(assetID string, fn func(*domain.BookState)) domain.BookState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.entries[assetID]
	fn(&s)
	c.entries[assetID] = s
	return s
}

// Len returns the number of assets with cached state.
func (c *MicroCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
