// Package cache holds the process-wide generation cache. Entries map a
// normalized (prompt, duration class, backend) triple to the URL of a
// previously generated audio file. The cache has no eviction and no
// persistence: it lives for the process lifetime and starts empty on
// every restart.
package cache

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DurationVariable is the duration class for backends whose output length
// is not controllable (speech).
const DurationVariable = "variable"

type Cache struct {
	mu      sync.RWMutex
	entries map[string]string
	group   singleflight.Group
}

func New() *Cache {
	return &Cache{
		entries: make(map[string]string),
	}
}

// Key builds the cache key. The prompt is normalized by trimming
// whitespace and lower-casing, so "Rain " and "rain" share an entry.
func Key(prompt, durationClass, backend string) string {
	normalized := strings.ToLower(strings.TrimSpace(prompt))
	return fmt.Sprintf("%s_%s_%s", normalized, durationClass, backend)
}

// DurationClass formats a fixed duration in seconds as a class string, or
// returns DurationVariable when the backend does not take a duration.
func DurationClass(seconds int) string {
	if seconds <= 0 {
		return DurationVariable
	}
	return fmt.Sprintf("%d", seconds)
}

func (c *Cache) Lookup(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	url, ok := c.entries[key]
	return url, ok
}

func (c *Cache) Store(key, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = url
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Do runs fn at most once per key among concurrent callers: when several
// requests miss on the same key at the same time, one synthesis runs and
// the rest receive its result.
func (c *Cache) Do(key string, fn func() (string, error)) (string, error) {
	url, err, _ := c.group.Do(key, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return "", err
	}
	return url.(string), nil
}
