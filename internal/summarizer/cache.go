package summarizer

import (
	"container/list"
	"sync"

	"github.com/hyperjump/nikki/internal/digest"
)

// ChunkCache is an LRU cache of per-chunk summaries keyed by chunk ID.
// Each entry remembers the hash of the text it was built from.
type ChunkCache struct {
	capacity int
	items    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type chunkEntry struct {
	id      string
	hash    string
	summary string
}

// NewChunkCache creates a cache with the given capacity (minimum 1).
func NewChunkCache(capacity int) *ChunkCache {
	if capacity < 1 {
		capacity = 1
	}
	return &ChunkCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// ChunkHash fingerprints a chunk's text.
func ChunkHash(text string) string {
	return digest.ComputeInputHash([]string{text})
}

// Get returns the cached summary for id if it was built from text with the given hash.
func (c *ChunkCache) Get(id, hash string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[id]
	if !ok {
		return "", false
	}
	entry := elem.Value.(*chunkEntry)
	if entry.hash != hash {
		return "", false
	}
	c.lru.MoveToFront(elem)
	return entry.summary, true
}

// Set stores summary for id, evicting the least recently used entry if at capacity.
func (c *ChunkCache) Set(id, hash, summary string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[id]; ok {
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*chunkEntry)
		entry.hash = hash
		entry.summary = summary
		return
	}

	elem := c.lru.PushFront(&chunkEntry{id: id, hash: hash, summary: summary})
	c.items[id] = elem

	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*chunkEntry).id)
		}
	}
}

// Stale returns the IDs of chunks with no valid cached summary, in input order.
// Entries whose hash no longer matches the chunk text are removed.
func (c *ChunkCache) Stale(chunks []ChunkText) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	stale := []string{}
	for _, ch := range chunks {
		elem, ok := c.items[ch.ID]
		if !ok {
			stale = append(stale, ch.ID)
			continue
		}
		if elem.Value.(*chunkEntry).hash != ChunkHash(ch.Text) {
			c.lru.Remove(elem)
			delete(c.items, ch.ID)
			stale = append(stale, ch.ID)
		}
	}
	return stale
}

// Len returns the number of cached chunks.
func (c *ChunkCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
