package pagecache

import "github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"

type captured struct {
	id    string
	item  *model.Item // nil when the id was absent
	index int
	// neighbours at capture time; restore anchors on them before index
	prev, next string
}

// Snapshot records the state of selected items so it can be restored exactly
type Snapshot struct {
	cache   *Cache
	entries []captured
}

// Capture snapshots the given ids, including ids that are currently absent
func (c *Cache) Capture(ids ...string) *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := &Snapshot{cache: c, entries: make([]captured, 0, len(ids))}
	for _, id := range ids {
		i := c.indexLocked(id)
		entry := captured{id: id, index: i}
		if i >= 0 {
			entry.item = c.items[i].Clone()
			if i > 0 {
				entry.prev = c.items[i-1].ID
			}
			if i+1 < len(c.items) {
				entry.next = c.items[i+1].ID
			}
		}
		snap.entries = append(snap.entries, entry)
	}
	return snap
}

// restoreIndexLocked places a removed item before its old successor, or after
// its old predecessor, falling back to the captured index.
func (c *Cache) restoreIndexLocked(e captured) int {
	if i := c.indexLocked(e.next); e.next != "" && i >= 0 {
		return i
	}
	if i := c.indexLocked(e.prev); e.prev != "" && i >= 0 {
		return i + 1
	}
	return e.index
}

// Restore puts every captured id back to its captured state. Items absent at
// capture time are removed; present ones are restored next to their old
// neighbours.
// Returns false when the cache was closed in the meantime.
func (c *Cache) Restore(snap *Snapshot) bool {
	if snap == nil || snap.cache != c {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	for _, e := range snap.entries {
		if e.item == nil {
			c.removeLocked(e.id)
		}
	}
	for _, e := range snap.entries {
		if e.item == nil {
			continue
		}
		if i := c.indexLocked(e.id); i >= 0 {
			c.items[i] = e.item.Clone()
			continue
		}
		c.insertAtLocked(e.item.Clone(), c.restoreIndexLocked(e))
	}
	c.resortLocked()
	return true
}
