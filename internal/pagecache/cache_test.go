package pagecache

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/ordering"
)

func tweet(id string) *model.Item {
	return &model.Item{ID: id, Type: model.KindTweet, Payload: map[string]any{"likes": 1}}
}

func tweets(ids ...string) []*model.Item {
	out := make([]*model.Item, len(ids))
	for i, id := range ids {
		out[i] = tweet(id)
	}
	return out
}

func joined(c *Cache) string {
	return strings.Join(c.IDs(), ",")
}

func TestMergePageDeduplicates(t *testing.T) {
	c := New(Query{Kind: model.KindTweet})
	if _, err := c.MergePage(1, tweets("a", "b", "c"), 3); err != nil {
		t.Fatalf("merge page 1: %v", err)
	}
	added, err := c.MergePage(2, tweets("c", "d", "e"), 3)
	if err != nil {
		t.Fatalf("merge page 2: %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}
	if got := joined(c); got != "a,b,c,d,e" {
		t.Fatalf("items = %s, want a,b,c,d,e", got)
	}
	if !c.HasMore() {
		t.Fatalf("page 2 of 3 must have more")
	}
}

func TestMergePageIsIdempotent(t *testing.T) {
	c := New(Query{Kind: model.KindTweet})
	_, _ = c.MergePage(1, tweets("a", "b"), 2)
	before := c.Items()
	added, _ := c.MergePage(1, tweets("a", "b"), 2)
	if added != 0 {
		t.Fatalf("second merge added %d items", added)
	}
	if !reflect.DeepEqual(before, c.Items()) || c.Page() != 1 || c.TotalPages() != 2 {
		t.Fatalf("second merge changed the cache")
	}
}

func TestMergePageKeepsExistingItems(t *testing.T) {
	c := New(Query{Kind: model.KindTweet})
	_, _ = c.MergePage(1, tweets("a"), 2)
	refetched := tweet("a")
	refetched.Set("likes", 99)
	_, _ = c.MergePage(2, []*model.Item{refetched}, 2)
	got, _ := c.Get("a")
	if got.Int("likes") != 1 {
		t.Fatalf("existing item overwritten on re-fetch: %v", got.Payload)
	}
}

func TestMergePageSearchReplacesOnFirstPage(t *testing.T) {
	c := New(Query{Kind: model.KindTweet, Text: "go"})
	_, _ = c.MergePage(1, tweets("a", "b"), 2)
	_, _ = c.MergePage(2, tweets("c"), 2)
	_, _ = c.MergePage(1, tweets("x", "a"), 1)
	if got := joined(c); got != "x,a" {
		t.Fatalf("items = %s, want x,a", got)
	}
	if c.HasMore() {
		t.Fatalf("single page result must not have more")
	}
}

func TestHasMoreBeforeFirstPage(t *testing.T) {
	c := New(Query{Kind: model.KindTweet})
	if c.HasMore() {
		t.Fatalf("fresh cache reports has more with total 0")
	}
}

func TestMergeResortsPinnedCollections(t *testing.T) {
	now := time.Now()
	c := New(Query{Kind: model.KindConversation})
	items := []*model.Item{
		{ID: "a", Type: model.KindConversation, UpdatedAt: now},
		{ID: "b", Type: model.KindConversation, UpdatedAt: now.Add(-time.Hour), Pin: &model.PinRecord{PinnedAt: now}},
	}
	_, _ = c.MergePage(1, items, 1)
	if got := joined(c); got != "b,a" {
		t.Fatalf("items = %s, want b,a", got)
	}
}

func TestRemoveItemIsIdempotent(t *testing.T) {
	c := New(Query{Kind: model.KindTweet})
	_, _ = c.MergePage(1, tweets("a", "b"), 1)
	if !c.RemoveItem("a") {
		t.Fatalf("expected first remove to report removal")
	}
	if c.RemoveItem("a") {
		t.Fatalf("expected second remove to be a no-op")
	}
	if got := joined(c); got != "b" {
		t.Fatalf("items = %s, want b", got)
	}
}

func TestInsertPlacement(t *testing.T) {
	c := New(Query{Kind: model.KindMessage})
	_, _ = c.MergePage(1, tweets("a", "b"), 1)
	if !c.Insert(tweet("c"), ordering.Append) {
		t.Fatalf("append failed")
	}
	if !c.Insert(tweet("z"), ordering.Prepend) {
		t.Fatalf("prepend failed")
	}
	if c.Insert(tweet("a"), ordering.Prepend) {
		t.Fatalf("duplicate insert must be refused")
	}
	if got := joined(c); got != "z,a,b,c" {
		t.Fatalf("items = %s, want z,a,b,c", got)
	}
}

func TestReplaceKeepsIDsUnique(t *testing.T) {
	c := New(Query{Kind: model.KindTweet})
	_, _ = c.MergePage(1, tweets("local-1", "b", "real"), 1)

	if !c.Replace("b", tweet("b2")) {
		t.Fatalf("replace failed")
	}
	if !c.Replace("local-1", tweet("real")) {
		t.Fatalf("replace onto existing id failed")
	}
	if got := joined(c); got != "b2,real" {
		t.Fatalf("items = %s, want b2,real", got)
	}
}

func TestUpdateUnknownIsDropped(t *testing.T) {
	c := New(Query{Kind: model.KindTweet})
	ok, err := c.Update("ghost", model.Patch{"likes": 3})
	if ok || err != nil {
		t.Fatalf("Update(unknown) = %v, %v", ok, err)
	}
	if c.Len() != 0 {
		t.Fatalf("update must not create items")
	}
}

func TestItemsReturnsCopies(t *testing.T) {
	c := New(Query{Kind: model.KindTweet})
	_, _ = c.MergePage(1, tweets("a"), 1)
	c.Items()[0].Set("likes", 50)
	got, _ := c.Get("a")
	if got.Int("likes") != 1 {
		t.Fatalf("caller mutated cache state")
	}
}

func TestCaptureRestore(t *testing.T) {
	c := New(Query{Kind: model.KindTweet})
	_, _ = c.MergePage(1, tweets("a", "b", "c"), 1)
	before := c.Items()

	snap := c.Capture("b", "new")
	c.Mutate("b", func(it *model.Item) { it.Set("likes", 2) })
	c.RemoveItem("b")
	c.Insert(tweet("new"), ordering.Prepend)

	if !c.Restore(snap) {
		t.Fatalf("restore failed")
	}
	if !reflect.DeepEqual(before, c.Items()) {
		t.Fatalf("restore mismatch: got %s", joined(c))
	}
}

func TestRestoreAnchorsOnNeighbours(t *testing.T) {
	for _, tc := range []struct {
		removed string
		want    string
	}{
		{removed: "a", want: "x,a,b,c"},
		{removed: "b", want: "x,a,b,c"},
		{removed: "c", want: "x,a,b,c"},
	} {
		c := New(Query{Kind: model.KindTweet})
		_, _ = c.MergePage(1, tweets("a", "b", "c"), 1)

		snap := c.Capture(tc.removed)
		c.RemoveItem(tc.removed)
		c.Insert(tweet("x"), ordering.Prepend)

		if !c.Restore(snap) {
			t.Fatalf("restore of %s failed", tc.removed)
		}
		if got := joined(c); got != tc.want {
			t.Fatalf("restore of %s after a live prepend = %s, want %s", tc.removed, got, tc.want)
		}
	}
}

func TestClosedCacheRejectsCompletions(t *testing.T) {
	c := New(Query{Kind: model.KindTweet})
	_, _ = c.MergePage(1, tweets("a"), 2)
	snap := c.Capture("a")
	c.Close()

	if _, err := c.MergePage(2, tweets("b"), 2); !errors.Is(err, model.ErrStaleCompletion) {
		t.Fatalf("expected ErrStaleCompletion, got %v", err)
	}
	if c.Insert(tweet("c"), ordering.Prepend) {
		t.Fatalf("insert into closed cache must be refused")
	}
	if c.Restore(snap) {
		t.Fatalf("restore into closed cache must be refused")
	}
	if c.Len() != 0 {
		t.Fatalf("closed cache must be empty")
	}
}

func TestEntriesInjectsSuggestionOnce(t *testing.T) {
	c := New(Query{Kind: model.KindTweet, SuggestionSlot: 2})
	block := &model.Item{ID: "sugg", Type: model.KindSuggestionBlock}
	page1 := append(tweets("a", "b", "c"), block)
	_, _ = c.MergePage(1, page1, 2)
	page2 := append(tweets("d"), &model.Item{ID: "sugg2", Type: model.KindSuggestionBlock})
	_, _ = c.MergePage(2, page2, 2)

	entries := c.Entries()
	if len(entries) != 5 {
		t.Fatalf("entries = %d, want 5", len(entries))
	}
	suggestions := 0
	for i, e := range entries {
		if e.IsSuggestion() {
			suggestions++
			if i != 2 || e.Suggestion.ID != "sugg" {
				t.Fatalf("suggestion at %d (%s), want first block at 2", i, e.Suggestion.ID)
			}
		}
	}
	if suggestions != 1 {
		t.Fatalf("suggestions = %d, want 1", suggestions)
	}
	if c.Contains("sugg") {
		t.Fatalf("suggestion block must not join the item set")
	}
}

func TestFingerprint(t *testing.T) {
	a := Query{Kind: model.KindCommunity, Text: " go ", Filters: map[string]string{"b": "2", "a": "1"}}
	b := Query{Kind: model.KindCommunity, Text: "go", Filters: map[string]string{"a": "1", "b": "2"}}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("equivalent queries must share a fingerprint")
	}
	b.Filters["a"] = "3"
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatalf("different filters must change the fingerprint")
	}
}
