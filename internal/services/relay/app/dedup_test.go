package server

import (
	"fmt"
	"testing"
	"time"
)

func newTestDedupCache(start time.Time) (*dedupCache, *time.Time) {
	clock := start
	cache := newDedupCache()
	cache.now = func() time.Time { return clock }
	return cache, &clock
}

func TestShouldEmitSuppressesInsideWindow(t *testing.T) {
	cache, clock := newTestDedupCache(time.Unix(1700000000, 0))

	if !cache.shouldEmit("alice", "m-1") {
		t.Fatal("first sighting suppressed")
	}
	*clock = clock.Add(dedupTTL - time.Second)
	if cache.shouldEmit("alice", "m-1") {
		t.Fatal("duplicate inside window emitted")
	}
}

func TestShouldEmitAgainAfterWindowExpires(t *testing.T) {
	cache, clock := newTestDedupCache(time.Unix(1700000000, 0))

	if !cache.shouldEmit("alice", "m-1") {
		t.Fatal("first sighting suppressed")
	}
	*clock = clock.Add(dedupTTL + time.Second)
	if !cache.shouldEmit("alice", "m-1") {
		t.Fatal("sighting after expiry suppressed")
	}
}

func TestSuppressedDuplicateDoesNotRefreshWindow(t *testing.T) {
	cache, clock := newTestDedupCache(time.Unix(1700000000, 0))

	cache.shouldEmit("alice", "m-1")
	*clock = clock.Add(dedupTTL - time.Second)
	if cache.shouldEmit("alice", "m-1") {
		t.Fatal("duplicate inside window emitted")
	}

	// Two seconds later the original window has lapsed. If the suppressed
	// sighting had re-anchored it, this would still be inside the window.
	*clock = clock.Add(2 * time.Second)
	if !cache.shouldEmit("alice", "m-1") {
		t.Fatal("window was refreshed by a suppressed duplicate")
	}
}

func TestDedupWindowsAreScopedPerRoom(t *testing.T) {
	cache, _ := newTestDedupCache(time.Unix(1700000000, 0))

	cache.shouldEmit("alice", "m-1")
	if !cache.shouldEmit("zoe", "m-1") {
		t.Fatal("key suppressed across rooms")
	}
}

func TestDropForgetsRoomState(t *testing.T) {
	cache, _ := newTestDedupCache(time.Unix(1700000000, 0))

	cache.shouldEmit("alice", "m-1")
	cache.drop("alice")
	if !cache.shouldEmit("alice", "m-1") {
		t.Fatal("key suppressed after drop")
	}
}

func TestCompactionEvictsOnlyExpiredEntries(t *testing.T) {
	cache, clock := newTestDedupCache(time.Unix(1700000000, 0))

	for i := 0; i < dedupCompactTrigger; i++ {
		cache.shouldEmit("alice", fmt.Sprintf("old-%d", i))
	}
	*clock = clock.Add(dedupTTL + time.Second)
	cache.shouldEmit("alice", "fresh")

	if got := len(cache.rooms["alice"]); got > dedupCompactTarget {
		t.Fatalf("entries after compaction = %d, want at most %d", got, dedupCompactTarget)
	}
	if cache.shouldEmit("alice", "fresh") {
		t.Fatal("fresh entry evicted by compaction")
	}
}

func TestChatDedupKeyPrefersMessageID(t *testing.T) {
	key := chatDedupKey(map[string]any{
		"msgId":   "m-42",
		"userId":  "u-1",
		"comment": "hello",
	})
	if key != "m-42" {
		t.Fatalf("key = %q, want %q", key, "m-42")
	}
}

func TestChatDedupKeyFallsBackToFingerprint(t *testing.T) {
	key := chatDedupKey(map[string]any{
		"uniqueId":   "talent",
		"comment":    " hello ",
		"createTime": float64(1700000000123),
	})
	want := "talent|hello|1700000000123"
	if key != want {
		t.Fatalf("key = %q, want %q", key, want)
	}
}

func TestChatDedupKeyEmptyForUnidentifiablePayload(t *testing.T) {
	if key := chatDedupKey(nil); key != "" {
		t.Fatalf("key for nil payload = %q, want empty", key)
	}
	if key := chatDedupKey(map[string]any{"likes": float64(3)}); key != "" {
		t.Fatalf("key for unidentifiable payload = %q, want empty", key)
	}
}
