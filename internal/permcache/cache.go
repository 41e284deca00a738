// Package permcache caches resolved access levels under "permissions:<resource>"
// keys. Entries older than the TTL are treated as misses but are left in place.
package permcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-quotes/internal/rbac"
)

// KeyPrefix namespaces every cache key.
const KeyPrefix = "permissions:"

// DefaultTTL bounds how long a cached level is trusted.
const DefaultTTL = 5 * time.Minute

// Entry is the stored representation of a cached level.
type Entry struct {
	AccessLevel int   `json:"accessLevel"`
	Timestamp   int64 `json:"timestamp"`
	TTL         int64 `json:"ttl"`
}

// Fresh reports whether the entry is still valid at now (milliseconds).
func (e Entry) Fresh(nowMillis int64) bool {
	return nowMillis-e.Timestamp < e.TTL
}

// Observer receives lookup outcomes.
type Observer interface {
	PermissionCacheLookup(hit bool)
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithObserver records hit/miss outcomes.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// WithLogger sets the logger used for store failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// Cache stores access levels with a fixed staleness bound.
type Cache struct {
	store    Store
	now      func() time.Time
	ttl      time.Duration
	observer Observer
	logger   *slog.Logger
}

// New constructs a Cache over store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{store: store, now: time.Now, ttl: DefaultTTL, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the storage key of resource.
func Key(resource string) string {
	return KeyPrefix + resource
}

// Set stores level for resource stamped with the current time.
func (c *Cache) Set(ctx context.Context, resource string, level rbac.AccessLevel) error {
	payload, err := json.Marshal(Entry{
		AccessLevel: int(level),
		Timestamp:   c.now().UnixMilli(),
		TTL:         c.ttl.Milliseconds(),
	})
	if err != nil {
		return err
	}
	return c.store.Set(ctx, Key(resource), payload)
}

// Get returns the cached level when present and fresh. Store errors, undecodable
// payloads and stale entries are all misses.
func (c *Cache) Get(ctx context.Context, resource string) (rbac.AccessLevel, bool) {
	lvl, ok := c.lookup(ctx, resource)
	if c.observer != nil {
		c.observer.PermissionCacheLookup(ok)
	}
	return lvl, ok
}

func (c *Cache) lookup(ctx context.Context, resource string) (rbac.AccessLevel, bool) {
	raw, found, err := c.store.Get(ctx, Key(resource))
	if err != nil {
		c.logger.Warn("permcache get", slog.String("resource", resource), slog.Any("error", err))
		return rbac.LevelNone, false
	}
	if !found {
		return rbac.LevelNone, false
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return rbac.LevelNone, false
	}
	if !entry.Fresh(c.now().UnixMilli()) {
		return rbac.LevelNone, false
	}
	lvl := rbac.AccessLevel(entry.AccessLevel)
	if !lvl.Valid() {
		return rbac.LevelNone, false
	}
	return lvl, true
}

// Remove deletes the entry of resource.
func (c *Cache) Remove(ctx context.Context, resource string) error {
	return c.store.Delete(ctx, Key(resource))
}

// InvalidatePrefix deletes every entry whose resource starts with prefix.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	return c.store.DeletePrefix(ctx, Key(prefix))
}

// Invalidate deletes every permission entry.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.store.DeletePrefix(ctx, KeyPrefix)
}

// Watch calls onChange with the affected resource whenever any instance changes the
// cache. Range removals report the resource prefix followed by "*". Delivery is
// advisory; callers must stay correct without it.
func (c *Cache) Watch(ctx context.Context, onChange func(resource string)) (bool, error) {
	w, ok := c.store.(Watcher)
	if !ok {
		return false, nil
	}
	err := w.Watch(ctx, func(key string) {
		if !strings.HasPrefix(key, KeyPrefix) {
			return
		}
		onChange(strings.TrimPrefix(key, KeyPrefix))
	})
	return err == nil, err
}

var _ rbac.LevelCache = (*Cache)(nil)
