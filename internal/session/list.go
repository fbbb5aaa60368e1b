package session

import (
	"context"
	"sort"
	"sync"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/merger"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/optimistic"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/pagecache"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/unread"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
)

// ListOptions configures a list view
type ListOptions struct {
	Query pagecache.Query
	// Topics are joined while the list is open
	Topics []string
	// Typing delays remote inserts behind a typing indicator
	Typing   bool
	OnTyping merger.Indicator
	// AutoRead is an unread category zeroed when the list opens and on every
	// insert it receives while open
	AutoRead string
	// Receipt is sent when AutoRead zeroes the category on open
	Receipt unread.Receipt
	// OnEvent observes every live event merged into the list
	OnEvent func(model.Event, merger.Result)
}

// List is one mounted list view: a pager, the live event merge and the
// topics it listens on.
type List struct {
	id      uint64
	session *Session
	opts    ListOptions
	pager   *pagecache.Pager
	topics  map[string]struct{}
	dispose func()
	logger  logging.Entry

	mu        sync.Mutex
	typing    *merger.Typing
	closeOnce sync.Once
}

// OpenList mounts a list view. The first page is not fetched until LoadMore.
func (s *Session) OpenList(ctx context.Context, opts ListOptions) (*List, error) {
	l := &List{
		session: s,
		opts:    opts,
		pager:   pagecache.NewPager(opts.Query, s.fetcher, s.logger, s.metrics),
		topics:  make(map[string]struct{}, len(opts.Topics)),
		logger: s.logger.WithFields(logging.Fields{
			"kind":   opts.Query.Kind,
			"topics": opts.Topics,
		}),
	}
	for _, t := range opts.Topics {
		l.topics[t] = struct{}{}
	}
	l.typing = l.newTyping(l.pager.Cache())

	dispose, err := s.Subscriptions.Register(ctx, opts.Topics...)
	l.dispose = dispose
	if err != nil {
		l.logger.WithError(err).Warn("Topic join failed, will retry on reconnect")
	}
	if err := s.addList(l); err != nil {
		l.shutdown()
		return nil, err
	}

	if opts.AutoRead != "" {
		if err := s.Unread.MarkRead(ctx, opts.AutoRead, opts.Receipt); err != nil {
			l.logger.WithError(err).Debug("Read receipt on open failed")
		}
	}
	return l, nil
}

func (l *List) newTyping(cache *pagecache.Cache) *merger.Typing {
	if !l.opts.Typing {
		return nil
	}
	return merger.NewTyping(cache, merger.TypingConfig{
		LocalUser: l.session.UserID(),
		Delay:     l.session.cfg.TypingDelay,
		Indicator: l.opts.OnTyping,
		OnFlush:   l.applied,
		Logger:    l.session.logger,
	})
}

func (l *List) watches(topic string) bool {
	_, ok := l.topics[topic]
	return ok
}

func (l *List) handle(ev model.Event) {
	l.mu.Lock()
	typing := l.typing
	l.mu.Unlock()

	var (
		res merger.Result
		err error
	)
	if typing != nil {
		res, err = typing.Handle(ev)
	} else {
		res, err = merger.Apply(l.Cache(), ev)
	}
	if err != nil {
		l.logger.WithError(err).WithField("id", ev.ID).Warn("Dropping event")
		return
	}
	if res == merger.Buffered {
		return
	}
	l.applied(ev, res)
}

func (l *List) applied(ev model.Event, res merger.Result) {
	l.session.metrics.EventApplied(string(l.Cache().Kind()), res.String())
	if l.opts.AutoRead != "" && ev.Kind == model.EventInsert &&
		(res == merger.Inserted || res == merger.Replaced) {
		l.session.Unread.Reset(l.opts.AutoRead)
	}
	if l.opts.OnEvent != nil {
		l.opts.OnEvent(ev, res)
	}
}

// Cache returns the current cache
func (l *List) Cache() *pagecache.Cache {
	return l.pager.Cache()
}

// LoadMore fetches the next page
func (l *List) LoadMore(ctx context.Context) (bool, error) {
	return l.pager.LoadMore(ctx)
}

// Loading reports whether a page request is in flight
func (l *List) Loading() bool {
	return l.pager.Loading()
}

// SetQuery changes the list query; a new fingerprint starts over at page 1
func (l *List) SetQuery(q pagecache.Query) bool {
	if !l.pager.SetQuery(q) {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.typing != nil {
		l.typing.Stop()
	}
	l.typing = l.newTyping(l.pager.Cache())
	return true
}

// Refresh reloads the list from page 1. Live events arriving during the
// reload merge into the new cache.
func (l *List) Refresh(ctx context.Context) error {
	l.mu.Lock()
	if !l.pager.Reset() {
		l.mu.Unlock()
		return model.ErrStaleCompletion
	}
	if l.typing != nil {
		l.typing.Stop()
	}
	l.typing = l.newTyping(l.pager.Cache())
	l.mu.Unlock()

	_, err := l.pager.LoadMore(ctx)
	return err
}

// Items returns the list items in display order
func (l *List) Items() []*model.Item {
	return l.Cache().Items()
}

// Entries returns the feed rows including the suggestion block
func (l *List) Entries() []pagecache.Entry {
	return l.Cache().Entries()
}

// Topics returns the topics the list listens on
func (l *List) Topics() []string {
	out := make([]string, 0, len(l.topics))
	for t := range l.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Mutate runs an optimistic mutation scoped to this list unless the request
// names its own scopes.
func (l *List) Mutate(ctx context.Context, req optimistic.Request) (optimistic.Outcome, error) {
	if len(req.Scopes) == 0 {
		req.Scopes = []optimistic.Scope{{Cache: l.Cache()}}
	}
	return l.session.Mutator.Apply(ctx, req)
}

// Close unmounts the list: topics are left exactly once, buffered typing
// events are discarded and late fetch completions are ignored.
func (l *List) Close() {
	l.closeOnce.Do(func() {
		l.shutdown()
		l.session.removeList(l)
	})
}

func (l *List) shutdown() {
	l.mu.Lock()
	if l.typing != nil {
		l.typing.Stop()
	}
	l.mu.Unlock()
	l.pager.Close()
	if l.dispose != nil {
		l.dispose()
	}
}
