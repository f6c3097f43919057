package models

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMaxInputTokens is the context window assumed for models the
// upstream did not report a window for.
const DefaultMaxInputTokens = 200000

// extendedContextTokens is the window of models carrying the "-1m" suffix.
const extendedContextTokens = 1000000

// Entry describes one model known to the catalog.
type Entry struct {
	// ID is the upstream model identifier.
	ID string

	// MaxInputTokens is the model's input context window.
	// Zero means unknown; MaxInputTokens() applies defaults.
	MaxInputTokens int
}

// FallbackEntries is the built-in model list used when the upstream
// model-list endpoint is unreachable at startup. It keeps the gateway
// functional through DNS or network failures.
var FallbackEntries = []Entry{
	{ID: "auto"},
	{ID: "claude-sonnet-4"},
	{ID: "claude-haiku-4.5"},
	{ID: "claude-sonnet-4.5"},
	{ID: "claude-opus-4.5"},
	{ID: "claude-opus-4.6"},
}

// Catalog is the dynamic model cache populated from the upstream's
// model-list endpoint at startup, falling back to FallbackEntries.
//
// Catalog is safe for concurrent use.
type Catalog struct {
	mu           sync.RWMutex
	entries      map[string]Entry
	updatedAt    time.Time
	ttl          time.Duration
	fromFallback bool
}

// NewCatalog creates an empty catalog with the given refresh TTL.
// A TTL of zero means entries never go stale.
func NewCatalog(ttl time.Duration) *Catalog {
	return &Catalog{
		entries: make(map[string]Entry),
		ttl:     ttl,
	}
}

// Update replaces the catalog contents with entries from the upstream.
func (c *Catalog) Update(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry, len(entries))
	for _, e := range entries {
		c.entries[e.ID] = e
	}
	c.updatedAt = time.Now()
	c.fromFallback = false

	slog.Debug("model catalog updated", "count", len(entries))
}

// UseFallback loads the built-in fallback list.
func (c *Catalog) UseFallback() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry, len(FallbackEntries))
	for _, e := range FallbackEntries {
		c.entries[e.ID] = e
	}
	c.updatedAt = time.Now()
	c.fromFallback = true

	slog.Warn("model catalog using built-in fallback list", "count", len(FallbackEntries))
}

// FromFallback reports whether the catalog holds the fallback list.
func (c *Catalog) FromFallback() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fromFallback
}

// Stale reports whether the catalog contents have outlived the TTL.
func (c *Catalog) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ttl <= 0 || c.updatedAt.IsZero() {
		return false
	}
	return time.Since(c.updatedAt) > c.ttl
}

// Contains reports whether the given model ID is in the catalog.
func (c *Catalog) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[id]
	return ok
}

// IDs returns all model IDs, sorted.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MaxInputTokens returns the input context window for a model.
// Models carrying the "-1m" suffix default to the extended window;
// everything else defaults to DefaultMaxInputTokens.
func (c *Catalog) MaxInputTokens(id string) int {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()

	if ok && e.MaxInputTokens > 0 {
		return e.MaxInputTokens
	}
	if strings.HasSuffix(strings.ToLower(id), "-1m") {
		return extendedContextTokens
	}
	return DefaultMaxInputTokens
}
