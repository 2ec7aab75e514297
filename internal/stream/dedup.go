package stream

import (
	"hash/fnv"
	"strings"
	"sync"
)

// DedupCache remembers fingerprints of chunks already sent, per response.
type DedupCache struct {
	mu   sync.Mutex
	sent map[string]map[uint64]struct{}
}

func NewDedupCache() *DedupCache {
	return &DedupCache{sent: make(map[string]map[uint64]struct{})}
}

// Fingerprint hashes the normalised text together with the final flag, so a
// final restatement of a partial chunk is a distinct entry.
func Fingerprint(text string, final bool) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(strings.Join(strings.Fields(text), " "))))
	if final {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// ShouldSend reports whether text is new for sessionID and records it.
func (c *DedupCache) ShouldSend(sessionID, text string, final bool) bool {
	fp := Fingerprint(text, final)
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.set(sessionID)
	if _, ok := set[fp]; ok {
		return false
	}
	set[fp] = struct{}{}
	return true
}

// MarkSent records text without checking.
func (c *DedupCache) MarkSent(sessionID, text string, final bool) {
	fp := Fingerprint(text, final)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(sessionID)[fp] = struct{}{}
}

// Reset forgets everything sent for sessionID.
func (c *DedupCache) Reset(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sent, sessionID)
}

func (c *DedupCache) Len(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent[sessionID])
}

func (c *DedupCache) set(sessionID string) map[uint64]struct{} {
	set, ok := c.sent[sessionID]
	if !ok {
		set = make(map[uint64]struct{})
		c.sent[sessionID] = set
	}
	return set
}
