package pagecache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/metrics"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
)

// Page is one fetched page
type Page struct {
	Items []*model.Item
	// TotalPages is 0 when the response did not report it
	TotalPages int
}

// Fetcher loads one page of a query
type Fetcher interface {
	FetchPage(ctx context.Context, q Query, page int) (Page, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, q Query, page int) (Page, error)

// FetchPage calls f
func (f FetcherFunc) FetchPage(ctx context.Context, q Query, page int) (Page, error) {
	return f(ctx, q, page)
}

// Pager drives "load more" for one cache. Concurrent LoadMore calls share a
// single in-flight request; completions that arrive after the query changed
// or the pager closed are discarded.
type Pager struct {
	fetcher Fetcher
	logger  logging.Logger
	metrics *metrics.Metrics
	group   singleflight.Group
	loading atomic.Int32

	mu    sync.Mutex
	cache *Cache
	gen   uint64
}

// NewPager creates a pager with an empty cache for q
func NewPager(q Query, fetcher Fetcher, logger logging.Logger, m *metrics.Metrics) *Pager {
	return &Pager{
		fetcher: fetcher,
		logger:  logging.OrDiscard(logger),
		metrics: m,
		cache:   New(q),
	}
}

// Cache returns the current cache. It changes when SetQuery resets.
func (p *Pager) Cache() *Cache {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache
}

// Loading reports whether a page request is in flight
func (p *Pager) Loading() bool {
	return p.loading.Load() > 0
}

// SetQuery switches the query. A changed fingerprint discards the accumulated
// cache and the next LoadMore starts at page 1. Returns true on reset.
func (p *Pager) SetQuery(q Query) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cache.Fingerprint() == q.Fingerprint() {
		return false
	}
	p.cache.Close()
	p.cache = New(q)
	p.gen++
	p.logger.WithFields(logging.Fields{
		"kind":        q.Kind,
		"fingerprint": q.Fingerprint(),
	}).Debug("Query changed, cache reset")
	return true
}

// LoadMore fetches and merges the next page. It returns whether more pages
// remain. A failed fetch leaves the cache unchanged; calling again retries
// the same page.
func (p *Pager) LoadMore(ctx context.Context) (bool, error) {
	p.mu.Lock()
	cache, gen := p.cache, p.gen
	p.mu.Unlock()

	if cache.Closed() {
		return false, model.ErrStaleCompletion
	}
	next := cache.Page() + 1
	if cache.Page() > 0 && !cache.HasMore() {
		return false, nil
	}

	key := strconv.FormatUint(gen, 10) + ":" + strconv.Itoa(next)
	_, err, _ := p.group.Do(key, func() (interface{}, error) {
		p.loading.Add(1)
		defer p.loading.Add(-1)
		return nil, p.load(ctx, cache, gen, next)
	})
	if err != nil {
		return false, err
	}
	return cache.HasMore(), nil
}

// Reset swaps in an empty cache for the same query. In-flight loads of the
// old cache are discarded. Returns false once the pager is closed.
func (p *Pager) Reset() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cache.Closed() {
		return false
	}
	p.cache.Close()
	p.cache = New(p.cache.Query())
	p.gen++
	return true
}

// Refresh re-fetches page 1 into a fresh cache for the same query
func (p *Pager) Refresh(ctx context.Context) error {
	if !p.Reset() {
		return model.ErrStaleCompletion
	}
	_, err := p.LoadMore(ctx)
	return err
}

func (p *Pager) load(ctx context.Context, cache *Cache, gen uint64, page int) error {
	q := cache.Query()
	start := time.Now()
	res, err := p.fetcher.FetchPage(ctx, q, page)
	p.metrics.FetchObserved(string(q.Kind), time.Since(start))
	if err != nil {
		p.metrics.FetchFailed(string(q.Kind))
		p.logger.WithError(err).WithFields(logging.Fields{
			"kind": q.Kind,
			"page": page,
		}).Warn("Page fetch failed")
		return fmt.Errorf("%w: page %d: %w", model.ErrFetchFailed, page, err)
	}

	p.mu.Lock()
	stale := gen != p.gen
	p.mu.Unlock()
	if stale {
		return model.ErrStaleCompletion
	}

	added, err := cache.MergePage(page, res.Items, totalPages(res, page, q.PageLimit()))
	if err != nil {
		return err
	}
	p.metrics.PageMerged(string(q.Kind))
	p.logger.WithFields(logging.Fields{
		"kind":  q.Kind,
		"page":  page,
		"added": added,
	}).Debug("Page merged")
	return nil
}

// totalPages treats a missing total or a short page as the last page
func totalPages(res Page, page, limit int) int {
	if res.TotalPages <= 0 || countItems(res.Items) < limit {
		return page
	}
	return res.TotalPages
}

func countItems(items []*model.Item) int {
	n := 0
	for _, it := range items {
		if it != nil && it.Type != model.KindSuggestionBlock {
			n++
		}
	}
	return n
}

// Close tears the pager down; in-flight completions are discarded
func (p *Pager) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Close()
	p.gen++
}
