package pagecache

import "github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"

// Entry is one rendered row of a feed: either a list item or a suggestion
// block. Exactly one field is set.
type Entry struct {
	Item       *model.Item
	Suggestion *model.Item
}

// IsSuggestion reports whether the entry is a suggestion block
func (e Entry) IsSuggestion() bool {
	return e.Suggestion != nil
}

// Entries returns the feed rows. The suggestion block from the first page is
// injected once at the query's suggestion slot, or appended when the list is
// shorter than that.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.items)+1)
	for _, it := range c.items {
		out = append(out, Entry{Item: it.Clone()})
	}
	if c.suggestion == nil {
		return out
	}

	slot := c.query.SuggestionSlot
	if slot <= 0 {
		slot = DefaultSuggestionSlot
	}
	if slot > len(out) {
		slot = len(out)
	}
	out = append(out, Entry{})
	copy(out[slot+1:], out[slot:])
	out[slot] = Entry{Suggestion: c.suggestion.Clone()}
	return out
}
