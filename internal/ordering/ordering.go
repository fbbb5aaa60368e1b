// Package ordering defines how each list kind orders its items.
//
// Pinned collections (conversations, communities) are actively re-sorted:
// pinned entries first by pin time ascending, then the rest by last update
// descending. Streams (tweets, comments, messages, notifications) keep their
// insertion order once merged; Compare gives the order a fresh page arrives in.
package ordering

import (
	"sort"
	"strings"
	"time"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"
)

// Policy tells a cache whether it re-sorts after changes
type Policy int

const (
	// Stable lists never reorder existing entries
	Stable Policy = iota
	// Resort lists are re-sorted with Compare after every change
	Resort
)

func (p Policy) String() string {
	if p == Resort {
		return "resort"
	}
	return "stable"
}

// Placement is where a live insert lands in a stable list
type Placement int

const (
	Prepend Placement = iota
	Append
)

// PolicyFor returns the ordering policy for a list kind
func PolicyFor(kind model.Kind) Policy {
	switch kind {
	case model.KindConversation, model.KindCommunity:
		return Resort
	default:
		return Stable
	}
}

// PlacementFor returns where new live items go. Chat transcripts are read
// oldest-first, everything else newest-first.
func PlacementFor(kind model.Kind) Placement {
	if kind == model.KindMessage {
		return Append
	}
	return Prepend
}

// Compare orders two items of the same list kind, returning -1, 0 or 1.
func Compare(a, b *model.Item) int {
	if PolicyFor(a.Type) == Resort {
		return comparePinned(a, b)
	}
	if c := compareTimeDesc(a.CreatedAt, b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func comparePinned(a, b *model.Item) int {
	switch {
	case a.Pinned() && !b.Pinned():
		return -1
	case !a.Pinned() && b.Pinned():
		return 1
	case a.Pinned() && b.Pinned():
		if c := a.Pin.PinnedAt.Compare(b.Pin.PinnedAt); c != 0 {
			return c
		}
	default:
		if c := compareTimeDesc(a.UpdatedAt, b.UpdatedAt); c != 0 {
			return c
		}
	}
	return strings.Compare(a.ID, b.ID)
}

func compareTimeDesc(a, b time.Time) int {
	return b.Compare(a)
}

// Sort orders items in place with Compare
func Sort(items []*model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return Compare(items[i], items[j]) < 0
	})
}

// PinnedFirst reports whether every pinned item precedes every unpinned one
func PinnedFirst(items []*model.Item) bool {
	seenUnpinned := false
	for _, it := range items {
		if !it.Pinned() {
			seenUnpinned = true
			continue
		}
		if seenUnpinned {
			return false
		}
	}
	return true
}
