// Package merger applies live push events onto list caches.
package merger

import (
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/ordering"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/pagecache"
)

// Result describes what an event did to a cache
type Result int

const (
	Dropped Result = iota
	Inserted
	Replaced
	Updated
	Removed
	Duplicate
	Buffered
)

func (r Result) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	case Duplicate:
		return "duplicate"
	case Buffered:
		return "buffered"
	default:
		return "dropped"
	}
}

// PlaceholderKey marks an item as a typing placeholder in its payload
const PlaceholderKey = "_placeholder"

// IsPlaceholder reports whether the item is a typing placeholder
func IsPlaceholder(it *model.Item) bool {
	return it != nil && it.Bool(PlaceholderKey)
}

// Placeholder returns a copy of item marked as a placeholder. It renders
// until an insert with the same id confirms it.
func Placeholder(item *model.Item) *model.Item {
	out := item.Clone()
	out.Set(PlaceholderKey, true)
	return out
}

// Apply merges one event into the cache.
//
// Insert of a known id is a duplicate unless the cached entry is a typing
// placeholder, which is swapped for the confirmed item in place. Update of
// an unknown id is dropped; the next fetch brings the current state. Remove
// of an unknown id is a no-op.
func Apply(cache *pagecache.Cache, ev model.Event) (Result, error) {
	if err := ev.Validate(); err != nil {
		return Dropped, err
	}
	if cache.Closed() {
		return Dropped, nil
	}

	switch ev.Kind {
	case model.EventInsert:
		if existing, ok := cache.Get(ev.Item.ID); ok {
			if IsPlaceholder(existing) && !IsPlaceholder(ev.Item) {
				cache.Replace(ev.Item.ID, ev.Item)
				return Replaced, nil
			}
			return Duplicate, nil
		}
		if cache.Insert(ev.Item, ordering.PlacementFor(cache.Kind())) {
			return Inserted, nil
		}
		return Dropped, nil

	case model.EventUpdate:
		ok, err := cache.Update(ev.ID, ev.Patch)
		if err != nil {
			return Dropped, err
		}
		if ok {
			return Updated, nil
		}
		return Dropped, nil

	case model.EventRemove:
		if cache.RemoveItem(ev.ID) {
			return Removed, nil
		}
		return Dropped, nil
	}
	return Dropped, nil
}
