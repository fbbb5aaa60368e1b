package pagecache

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"
)

// DefaultLimit is the page size used when a query does not set one
const DefaultLimit = 20

// DefaultSuggestionSlot is the feed position a suggestion block renders at
const DefaultSuggestionSlot = 5

// Query identifies what a list shows
type Query struct {
	Kind     model.Kind
	Endpoint string
	Text     string
	Filters  map[string]string
	Limit    int
	// SuggestionSlot overrides DefaultSuggestionSlot for feed rendering
	SuggestionSlot int
}

// PageLimit returns the effective page size
func (q Query) PageLimit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

// Fingerprint is a deterministic key over everything that changes the result
// set. Two queries with equal fingerprints can share accumulated pages.
func (q Query) Fingerprint() string {
	var b strings.Builder
	b.WriteString(string(q.Kind))
	b.WriteByte('|')
	b.WriteString(q.Endpoint)
	b.WriteByte('|')
	b.WriteString(strings.TrimSpace(q.Text))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(q.PageLimit()))

	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(q.Filters[k])
	}
	return b.String()
}

// HasText reports whether the query carries a free-text filter
func (q Query) HasText() bool {
	return strings.TrimSpace(q.Text) != ""
}
