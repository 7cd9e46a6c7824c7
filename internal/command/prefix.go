package command

import (
	"sync"
	"time"

	"github.com/mgrall/skald/pkg/message"
)

// SettingsSource is the subset of the configuration store the dispatcher
// reads on the hot path.
type SettingsSource interface {
	GetString(key string) (string, bool)
	Masters() []string
}

// settingsTTL bounds how stale the dispatcher's settings view may get
// even without an explicit invalidation.
const settingsTTL = 10 * time.Second

// Settings keys the dispatcher reads from the configuration store. Shared
// with the modules that write them.
const (
	SettingDefaultPrefix = "prefix.default"
	SettingScopePrefix   = "prefix." // + scope ID
)

// FallbackPrefix is used when the store has no default prefix configured.
const FallbackPrefix = "!"

type cachedPrefix struct {
	value string
	ok    bool
	at    time.Time
}

// settingsCache is a read-through cache over the settings source. Writers
// never touch it directly: a configuration change publishes config-loaded,
// which fires Invalidate, and the next read repopulates.
type settingsCache struct {
	mu        sync.Mutex
	source    SettingsSource
	ttl       time.Duration
	now       func() time.Time
	prefixes  map[string]cachedPrefix
	masters   map[string]struct{}
	mastersAt time.Time
}

func newSettingsCache(source SettingsSource) *settingsCache {
	return &settingsCache{
		source:   source,
		ttl:      settingsTTL,
		now:      time.Now,
		prefixes: make(map[string]cachedPrefix),
	}
}

// Invalidate drops every cached value. Fired on config-loaded.
func (c *settingsCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefixes = make(map[string]cachedPrefix)
	c.masters = nil
}

// prefixFor resolves the effective prefix for a scope: the scope's own
// entry if present, otherwise the global default.
func (c *settingsCache) prefixFor(scope message.Scope) string {
	if !scope.IsDirect() {
		if p, ok := c.lookup(SettingScopePrefix + scope.ID); ok {
			return p
		}
	}
	return c.defaultPrefix()
}

// defaultPrefix returns the configured global prefix or the fallback.
func (c *settingsCache) defaultPrefix() string {
	if p, ok := c.lookup(SettingDefaultPrefix); ok && p != "" {
		return p
	}
	return FallbackPrefix
}

func (c *settingsCache) lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.prefixes[key]; ok && c.now().Sub(entry.at) < c.ttl {
		return entry.value, entry.ok
	}

	value, ok := c.source.GetString(key)
	c.prefixes[key] = cachedPrefix{value: value, ok: ok, at: c.now()}
	return value, ok
}

// isMaster reports whether the sender ID is in the master-user set.
func (c *settingsCache) isMaster(senderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.masters == nil || c.now().Sub(c.mastersAt) >= c.ttl {
		c.masters = make(map[string]struct{})
		for _, id := range c.source.Masters() {
			c.masters[id] = struct{}{}
		}
		c.mastersAt = c.now()
	}
	_, ok := c.masters[senderID]
	return ok
}
