package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/vyrodovalexey/avaccess/observability"
)

// DecisionCache caches authorization decisions.
type DecisionCache interface {
	// Get retrieves a cached decision.
	Get(ctx context.Context, key *CacheKey) (*CachedDecision, bool)

	// Set stores a decision in the cache.
	Set(ctx context.Context, key *CacheKey, decision *CachedDecision)

	// Delete removes a decision from the cache.
	Delete(ctx context.Context, key *CacheKey)

	// Clear clears all cached decisions.
	Clear(ctx context.Context)

	// Close closes the cache.
	Close() error
}

// CacheKey identifies a cached decision.
type CacheKey struct {
	// Subject is the requester identity.
	Subject string

	// Anonymous indicates an unauthenticated requester.
	Anonymous bool

	// Action is the requested action name.
	Action string

	// Method is the underlying request method.
	Method string

	// Groups are the requester's groups.
	Groups []string
}

// String returns a stable hashed representation of the cache key. Fields
// are written quoted so that field boundaries survive hashing: distinct
// keys never alias even when field values contain separator characters.
func (k *CacheKey) String() string {
	h := sha256.New()
	fmt.Fprintf(h, "%q|%t|%q|%q|%q", k.Subject, k.Anonymous, k.Action, k.Method, k.Groups)
	return hex.EncodeToString(h.Sum(nil))
}

// CachedDecision is a cached authorization decision.
type CachedDecision struct {
	// Allowed indicates if the request was allowed.
	Allowed bool `json:"allowed"`

	// Reason is the reason for the decision.
	Reason string `json:"reason,omitempty"`

	// Statement is the statement that made the decision.
	Statement string `json:"statement,omitempty"`

	// CachedAt is when the decision was cached.
	CachedAt time.Time `json:"cached_at"`

	// ExpiresAt is when the cached decision expires.
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true if the cached decision has expired.
func (d *CachedDecision) IsExpired() bool {
	return time.Now().After(d.ExpiresAt)
}

// memoryDecisionCache implements DecisionCache in memory.
type memoryDecisionCache struct {
	mu       sync.RWMutex
	entries  map[string]*CachedDecision
	ttl      time.Duration
	maxSize  int
	logger   observability.Logger
	metrics  *Metrics
	stopChan chan struct{}
	stopOnce sync.Once
}

// MemoryCacheOption is a functional option for the memory cache.
type MemoryCacheOption func(*memoryDecisionCache)

// WithMemoryCacheLogger sets the logger.
func WithMemoryCacheLogger(logger observability.Logger) MemoryCacheOption {
	return func(c *memoryDecisionCache) {
		c.logger = logger
	}
}

// WithMemoryCacheMetrics sets the metrics.
func WithMemoryCacheMetrics(metrics *Metrics) MemoryCacheOption {
	return func(c *memoryDecisionCache) {
		c.metrics = metrics
	}
}

// NewMemoryDecisionCache creates an in-memory decision cache with the given
// TTL and maximum size.
func NewMemoryDecisionCache(ttl time.Duration, maxSize int, opts ...MemoryCacheOption) DecisionCache {
	c := &memoryDecisionCache{
		entries:  make(map[string]*CachedDecision),
		ttl:      ttl,
		maxSize:  maxSize,
		logger:   observability.NopLogger(),
		stopChan: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	go c.janitor()

	return c
}

// Get retrieves a cached decision.
func (c *memoryDecisionCache) Get(_ context.Context, key *CacheKey) (*CachedDecision, bool) {
	c.mu.RLock()
	decision, ok := c.entries[key.String()]
	c.mu.RUnlock()

	if !ok || decision.IsExpired() {
		if c.metrics != nil {
			c.metrics.RecordCacheMiss()
		}
		return nil, false
	}

	if c.metrics != nil {
		c.metrics.RecordCacheHit()
	}
	return decision, true
}

// Set stores a decision in the cache.
func (c *memoryDecisionCache) Set(_ context.Context, key *CacheKey, decision *CachedDecision) {
	now := time.Now()
	decision.CachedAt = now
	decision.ExpiresAt = now.Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictExpiredLocked()
		if len(c.entries) >= c.maxSize {
			// Still full after evicting expired entries, drop the write.
			c.logger.Debug("decision cache full, dropping entry")
			return
		}
	}

	c.entries[key.String()] = decision
}

// Delete removes a decision from the cache.
func (c *memoryDecisionCache) Delete(_ context.Context, key *CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key.String())
}

// Clear clears all cached decisions.
func (c *memoryDecisionCache) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*CachedDecision)
}

// Close stops the cache janitor.
func (c *memoryDecisionCache) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	return nil
}

// janitor periodically removes expired entries.
func (c *memoryDecisionCache) janitor() {
	interval := c.ttl
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.evictExpiredLocked()
			c.mu.Unlock()
		case <-c.stopChan:
			return
		}
	}
}

// evictExpiredLocked removes expired entries. Caller must hold the lock.
func (c *memoryDecisionCache) evictExpiredLocked() {
	for key, decision := range c.entries {
		if decision.IsExpired() {
			delete(c.entries, key)
		}
	}
}

// noopDecisionCache is a DecisionCache that caches nothing.
type noopDecisionCache struct{}

// NewNoopDecisionCache creates a decision cache that caches nothing.
func NewNoopDecisionCache() DecisionCache {
	return &noopDecisionCache{}
}

func (c *noopDecisionCache) Get(context.Context, *CacheKey) (*CachedDecision, bool) { return nil, false }
func (c *noopDecisionCache) Set(context.Context, *CacheKey, *CachedDecision)        {}
func (c *noopDecisionCache) Delete(context.Context, *CacheKey)                      {}
func (c *noopDecisionCache) Clear(context.Context)                                  {}
func (c *noopDecisionCache) Close() error                                           { return nil }
