package guard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/studyloop-core/server/internal/agent/model"
)

// Cache maps a (role, scope, normalized query) key to a recent response.
// Implementations must treat expired entries as absent and must never fail
// the caller: errors degrade to a miss on read and a no-op on write.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value string, ttl time.Duration)
}

// Key builds the deterministic cache key. The query is normalized so
// trivially different phrasings of the same question share an entry.
func Key(role model.Role, scope, query string) string {
	sum := sha256.Sum256([]byte(normalizeQuery(query)))
	return "resp:" + role.String() + ":" + scope + ":" + hex.EncodeToString(sum[:])
}

// normalizeQuery trims, case-folds and collapses internal whitespace.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

type memEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is the default in-process cache: a mutex-guarded map with lazy
// expiry on read. Suited to the single-process deployment; RedisCache covers
// multi-instance setups.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

func (c *MemoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memEntry{value: value, expiresAt: c.now().Add(ttl)}
}

// Len reports the number of stored entries, including not-yet-swept expired
// ones.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
