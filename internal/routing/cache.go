// cache.go - TTL cache for supplier routing rules
package routing

import (
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/mkarling/podkeeper/internal/conf"
)

const wildcardKey = "*"

// RulesLoader produces the current supplier threshold table. The default
// loader reads it from settings; callers backed by a database or remote
// rule source supply their own.
type RulesLoader func() (map[string]float64, float64)

// RulesCache caches supplier thresholds with a TTL. It is an explicit
// component with Get/Invalidate/Reload semantics rather than a module-level
// mutable variable, so rule changes propagate predictably.
type RulesCache struct {
	cache  *gocache.Cache
	loader RulesLoader
	mu     sync.Mutex
}

const thresholdTableKey = "supplier-thresholds"

type thresholdTable struct {
	bySupplier map[string]float64
	fallback   float64
}

// NewRulesCache creates a rules cache with the given TTL and loader.
func NewRulesCache(ttl time.Duration, loader RulesLoader) *RulesCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RulesCache{
		cache:  gocache.New(ttl, ttl),
		loader: loader,
	}
}

// NewRulesCacheFromSettings creates a rules cache whose loader snapshots
// the supplier thresholds configured in settings.
func NewRulesCacheFromSettings(settings conf.RoutingSettings) *RulesCache {
	return NewRulesCache(settings.CacheTTL, func() (map[string]float64, float64) {
		table := make(map[string]float64, len(settings.SupplierThresholds))
		for k, v := range settings.SupplierThresholds {
			table[strings.ToLower(k)] = v
		}
		return table, settings.DefaultThreshold
	})
}

// Threshold resolves the threshold for a supplier: exact key
// (case-insensitive) beats the wildcard "*" entry beats the default.
func (rc *RulesCache) Threshold(supplier string) float64 {
	table := rc.table()
	if t, ok := table.bySupplier[strings.ToLower(strings.TrimSpace(supplier))]; ok {
		return t
	}
	if t, ok := table.bySupplier[wildcardKey]; ok {
		return t
	}
	return table.fallback
}

// Invalidate drops the cached table; the next lookup reloads it.
func (rc *RulesCache) Invalidate() {
	rc.cache.Delete(thresholdTableKey)
}

// Reload repopulates the cache immediately.
func (rc *RulesCache) Reload() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	bySupplier, fallback := rc.loader()
	rc.cache.SetDefault(thresholdTableKey, thresholdTable{bySupplier: bySupplier, fallback: fallback})
}

func (rc *RulesCache) table() thresholdTable {
	if cached, ok := rc.cache.Get(thresholdTableKey); ok {
		return cached.(thresholdTable)
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	// Another caller may have repopulated while we waited for the lock.
	if cached, ok := rc.cache.Get(thresholdTableKey); ok {
		return cached.(thresholdTable)
	}
	bySupplier, fallback := rc.loader()
	table := thresholdTable{bySupplier: bySupplier, fallback: fallback}
	rc.cache.SetDefault(thresholdTableKey, table)
	return table
}
