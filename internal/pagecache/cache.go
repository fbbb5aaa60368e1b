// Package pagecache holds one list view's items and pagination cursor.
package pagecache

import (
	"sync"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/ordering"
)

// Cache is the client-side state of one list. Item ids are unique. Stable
// lists keep merge order; resort lists are re-sorted after every change.
type Cache struct {
	mu          sync.RWMutex
	query       Query
	fingerprint string
	policy      ordering.Policy
	items       []*model.Item
	ids         map[string]struct{}
	page        int
	totalPages  int
	suggestion  *model.Item
	closed      bool
}

// New creates an empty cache for the query, positioned before page 1
func New(q Query) *Cache {
	return &Cache{
		query:       q,
		fingerprint: q.Fingerprint(),
		policy:      ordering.PolicyFor(q.Kind),
		ids:         make(map[string]struct{}),
	}
}

// Query returns the query the cache was created for
func (c *Cache) Query() Query { return c.query }

// Fingerprint returns the query fingerprint
func (c *Cache) Fingerprint() string { return c.fingerprint }

// Kind returns the list kind
func (c *Cache) Kind() model.Kind { return c.query.Kind }

// MergePage merges a fetched page. Page 1 of a text search replaces all
// items; otherwise unseen ids are appended in fetch order and existing ids
// are left untouched. Merging the same page twice changes nothing.
func (c *Cache) MergePage(page int, items []*model.Item, totalPages int) (added int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, model.ErrStaleCompletion
	}

	if page == 1 && c.query.HasText() {
		c.items = c.items[:0]
		c.ids = make(map[string]struct{}, len(items))
		c.suggestion = nil
	}
	for _, it := range items {
		if it == nil || it.ID == "" {
			continue
		}
		if it.Type == model.KindSuggestionBlock {
			// only the first page's block is shown; it never joins the id set
			if page == 1 && c.suggestion == nil {
				c.suggestion = it.Clone()
			}
			continue
		}
		if _, ok := c.ids[it.ID]; ok {
			continue
		}
		c.ids[it.ID] = struct{}{}
		c.items = append(c.items, it.Clone())
		added++
	}
	if page > c.page {
		c.page = page
	}
	c.totalPages = totalPages
	c.resortLocked()
	return added, nil
}

// HasMore reports whether another page can be fetched: page < totalPages
func (c *Cache) HasMore() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.page < c.totalPages
}

// Page returns the last merged page number, 0 before the first merge
func (c *Cache) Page() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.page
}

// TotalPages returns the last reported page count
func (c *Cache) TotalPages() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalPages
}

// RemoveItem deletes an item by id. Removing a missing id is a no-op.
func (c *Cache) RemoveItem(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(id)
}

func (c *Cache) removeLocked(id string) bool {
	if _, ok := c.ids[id]; !ok {
		return false
	}
	delete(c.ids, id)
	if i := c.indexLocked(id); i >= 0 {
		c.items = append(c.items[:i], c.items[i+1:]...)
	}
	return true
}

// Insert adds a live item at the given placement. Returns false if the id is
// already present or the cache is closed.
func (c *Cache) Insert(item *model.Item, at ordering.Placement) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || item == nil || item.ID == "" {
		return false
	}
	if _, ok := c.ids[item.ID]; ok {
		return false
	}
	c.insertAtLocked(item.Clone(), placementIndex(at, len(c.items)))
	c.resortLocked()
	return true
}

func placementIndex(at ordering.Placement, n int) int {
	if at == ordering.Append {
		return n
	}
	return 0
}

func (c *Cache) insertAtLocked(item *model.Item, idx int) {
	if idx < 0 {
		idx = 0
	}
	if idx > len(c.items) {
		idx = len(c.items)
	}
	c.items = append(c.items, nil)
	copy(c.items[idx+1:], c.items[idx:])
	c.items[idx] = item
	c.ids[item.ID] = struct{}{}
}

// Update merges a patch into an existing item. Unknown ids are dropped.
func (c *Cache) Update(id string, patch model.Patch) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if c.closed || i < 0 {
		return false, nil
	}
	updated := c.items[i].Clone()
	if err := patch.ApplyTo(updated); err != nil {
		return false, err
	}
	c.items[i] = updated
	c.resortLocked()
	return true, nil
}

// Replace swaps the item with id for item, keeping its position. If item
// carries an id that is already present elsewhere, the old entry is dropped
// instead so ids stay unique.
func (c *Cache) Replace(id string, item *model.Item) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if c.closed || i < 0 || item == nil {
		return false
	}
	if item.ID != id {
		if _, dup := c.ids[item.ID]; dup {
			c.removeLocked(id)
			return true
		}
		delete(c.ids, id)
		c.ids[item.ID] = struct{}{}
	}
	c.items[i] = item.Clone()
	c.resortLocked()
	return true
}

// Mutate runs fn on a copy of the item and stores the result
func (c *Cache) Mutate(id string, fn func(*model.Item)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if c.closed || i < 0 {
		return false
	}
	updated := c.items[i].Clone()
	fn(updated)
	updated.ID = id
	c.items[i] = updated
	c.resortLocked()
	return true
}

// Get returns a copy of the item with id
func (c *Cache) Get(id string) (*model.Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.indexLocked(id)
	if i < 0 {
		return nil, false
	}
	return c.items[i].Clone(), true
}

// Contains reports whether id is present
func (c *Cache) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ids[id]
	return ok
}

// Items returns copies of the items in display order
func (c *Cache) Items() []*model.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Item, len(c.items))
	for i, it := range c.items {
		out[i] = it.Clone()
	}
	return out
}

// IDs returns the item ids in display order
func (c *Cache) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.items))
	for i, it := range c.items {
		out[i] = it.ID
	}
	return out
}

// Len returns the number of items
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close drops all items. Later merges report ErrStaleCompletion and live
// events are ignored.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.items = nil
	c.ids = make(map[string]struct{})
	c.suggestion = nil
}

// Closed reports whether the cache has been torn down
func (c *Cache) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Cache) indexLocked(id string) int {
	if _, ok := c.ids[id]; !ok {
		return -1
	}
	for i, it := range c.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (c *Cache) resortLocked() {
	if c.policy == ordering.Resort {
		ordering.Sort(c.items)
	}
}
