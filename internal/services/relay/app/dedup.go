package server

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	dedupTTL            = 2 * time.Minute
	dedupCompactTrigger = 1000
	dedupCompactTarget  = 800
)

// dedupCache suppresses repeated chat fingerprints per room inside a fixed
// time window. Expired entries are treated as absent without being removed;
// a room's table is compacted opportunistically once it grows past
// dedupCompactTrigger, so no background timer is needed.
type dedupCache struct {
	mu    sync.Mutex
	now   func() time.Time
	rooms map[string]map[string]time.Time
}

func newDedupCache() *dedupCache {
	return &dedupCache{
		now:   time.Now,
		rooms: make(map[string]map[string]time.Time),
	}
}

// shouldEmit reports whether the key is outside its dedup window and records
// the sighting when it is. Suppressed duplicates do not refresh the window;
// the first emitted occurrence anchors it.
func (c *dedupCache) shouldEmit(room string, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entries, ok := c.rooms[room]
	if !ok {
		entries = make(map[string]time.Time)
		c.rooms[room] = entries
	}
	if seen, ok := entries[key]; ok && now.Sub(seen) < dedupTTL {
		return false
	}
	entries[key] = now

	if len(entries) > dedupCompactTrigger {
		for key, seen := range entries {
			if len(entries) <= dedupCompactTarget {
				break
			}
			if now.Sub(seen) >= dedupTTL {
				delete(entries, key)
			}
		}
	}
	return true
}

// drop discards all dedup state for the room.
func (c *dedupCache) drop(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

// chatDedupKey derives the duplicate-suppression key for a chat payload.
// It prefers the stable message id and falls back to a fingerprint of the
// sender, text, and creation time. An empty key disables dedup for the
// event, which is then always emitted.
func chatDedupKey(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	if id := payloadString(payload, "msgId"); id != "" {
		return id
	}
	user := payloadString(payload, "userId")
	if user == "" {
		user = payloadString(payload, "uniqueId")
	}
	text := payloadString(payload, "comment")
	created := payloadString(payload, "createTime")
	if user == "" && text == "" && created == "" {
		return ""
	}
	return user + "|" + text + "|" + created
}

// payloadString reads a payload field as text, tolerating absent fields and
// non-string JSON scalars.
func payloadString(payload map[string]any, field string) string {
	value, ok := payload[field]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
