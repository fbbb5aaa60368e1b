package optimistic

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/ordering"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/pagecache"
)

// LocalIDPrefix marks ids generated before the server assigned one
const LocalIDPrefix = "local-"

// ErrTargetMissing is returned when a local change finds nothing to edit
var ErrTargetMissing = errors.New("target not in cache")

// Toggle flips a boolean flag and moves its counter by one, e.g. is_liked
// and likes_count.
func Toggle(cache *pagecache.Cache, id, flag, counter string) LocalChange {
	return func() error {
		ok := cache.Mutate(id, func(it *model.Item) {
			on := !it.Bool(flag)
			it.Set(flag, on)
			if counter == "" {
				return
			}
			n := it.Int(counter)
			if on {
				n++
			} else if n > 0 {
				n--
			}
			it.Set(counter, n)
		})
		if !ok {
			return ErrTargetMissing
		}
		return nil
	}
}

// Set writes payload fields, e.g. a role change
func Set(cache *pagecache.Cache, id string, fields map[string]any) LocalChange {
	return func() error {
		ok := cache.Mutate(id, func(it *model.Item) {
			for k, v := range fields {
				it.Set(k, v)
			}
		})
		if !ok {
			return ErrTargetMissing
		}
		return nil
	}
}

// Move takes an item out of one list and puts it into another, e.g. a member
// promoted to mentor.
func Move(from, to *pagecache.Cache, id string, at ordering.Placement) LocalChange {
	return func() error {
		it, ok := from.Get(id)
		if !ok {
			return ErrTargetMissing
		}
		from.RemoveItem(id)
		to.Insert(it, at)
		return nil
	}
}

// Pin attaches a pin record; pinned collections re-sort immediately
func Pin(cache *pagecache.Cache, id, ownerID string, at time.Time) LocalChange {
	return func() error {
		ok := cache.Mutate(id, func(it *model.Item) {
			it.Pin = &model.PinRecord{OwnerID: ownerID, TargetID: id, PinnedAt: at}
		})
		if !ok {
			return ErrTargetMissing
		}
		return nil
	}
}

// Unpin removes the pin record
func Unpin(cache *pagecache.Cache, id string) LocalChange {
	return func() error {
		if !cache.Mutate(id, func(it *model.Item) { it.Pin = nil }) {
			return ErrTargetMissing
		}
		return nil
	}
}

// Remove deletes the item from the cache
func Remove(cache *pagecache.Cache, id string) LocalChange {
	return func() error {
		cache.RemoveItem(id)
		return nil
	}
}

// NewLocalID returns a temporary id for an item not yet created remotely
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// InsertLocal builds a request that shows item under a temporary id until the
// server answers. On success the temporary entry is swapped for the canonical
// id; on failure it disappears.
func InsertLocal(cache *pagecache.Cache, item *model.Item, kind string, remote Remote) (Request, string) {
	local := item.Clone()
	if local.ID == "" {
		local.ID = NewLocalID()
	}
	id := local.ID
	return Request{
		TargetID: id,
		Kind:     kind,
		Scopes:   []Scope{{Cache: cache}},
		Local: func() error {
			if !cache.Insert(local, ordering.PlacementFor(cache.Kind())) {
				return fmt.Errorf("insert %s: id already present", id)
			}
			return nil
		},
		Remote: remote,
		Confirm: func(res Result) {
			if res.CanonicalID == "" || res.CanonicalID == id {
				return
			}
			confirmed, ok := cache.Get(id)
			if !ok {
				return
			}
			confirmed.ID = res.CanonicalID
			cache.Replace(id, confirmed)
		},
	}, id
}
