// Package session wires the sync engine for one authenticated user: the
// shared channel, presence, unread counters, subscriptions, the optimistic
// mutator and the open list views.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/channel"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/metrics"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/optimistic"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/pagecache"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/presence"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/subscription"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/unread"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/auth"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
)

// Config configures a session
type Config struct {
	Identity    auth.Identity
	TypingDelay time.Duration
}

// Deps are the collaborators a session is built on
type Deps struct {
	Transport channel.Transport
	Fetcher   pagecache.Fetcher
	Logger    logging.Logger
	Metrics   *metrics.Metrics
}

// Session owns the process-wide state of one login. Everything it holds is
// created by New and torn down by Close.
type Session struct {
	cfg       Config
	identity  auth.Identity
	transport channel.Transport
	fetcher   pagecache.Fetcher
	logger    logging.Logger
	metrics   *metrics.Metrics

	Presence      *presence.Tracker
	Unread        *unread.Accumulator
	Subscriptions *subscription.Manager
	Mutator       *optimistic.Mutator

	mu          sync.RWMutex
	lists       map[uint64]*List
	nextList    uint64
	started     bool
	closed      bool
	baseDispose func()
	done        chan struct{}
}

// New builds the session singletons. Nothing touches the network until Start.
func New(cfg Config, deps Deps) (*Session, error) {
	if cfg.Identity == nil || cfg.Identity.UserID() == "" {
		return nil, auth.ErrUnauthenticated
	}
	if deps.Transport == nil {
		return nil, errors.New("session requires a channel transport")
	}
	if deps.Fetcher == nil {
		return nil, errors.New("session requires a page fetcher")
	}
	logger := logging.OrDiscard(deps.Logger)

	return &Session{
		cfg:           cfg,
		identity:      cfg.Identity,
		transport:     deps.Transport,
		fetcher:       deps.Fetcher,
		logger:        logger,
		metrics:       deps.Metrics,
		Presence:      presence.NewTracker(deps.Metrics),
		Unread:        unread.New(logger, deps.Metrics),
		Subscriptions: subscription.NewManager(deps.Transport, logger, deps.Metrics),
		Mutator:       optimistic.NewMutator(cfg.Identity, logger, deps.Metrics),
		lists:         make(map[uint64]*List),
		done:          make(chan struct{}),
	}, nil
}

// UserID returns the session user
func (s *Session) UserID() string {
	return s.identity.UserID()
}

// Start connects the channel, joins the presence and own notification
// topics, and starts routing envelopes.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session closed")
	}
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.started = true
	s.mu.Unlock()

	s.transport.OnReconnect(func() {
		s.metrics.Reconnected()
		if err := s.Subscriptions.Resync(context.Background()); err != nil {
			s.logger.WithError(err).Warn("Topic resync failed")
		}
	})
	if err := s.transport.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect push channel: %w", err)
	}

	dispose, err := s.Subscriptions.Register(ctx,
		subscription.PresenceTopic,
		subscription.NotificationTopic(s.UserID()),
	)
	s.mu.Lock()
	s.baseDispose = dispose
	s.mu.Unlock()
	if err != nil {
		s.logger.WithError(err).Warn("Initial topic join failed, will retry on reconnect")
	}

	go s.dispatch()
	s.logger.WithField("user_id", s.UserID()).Info("Session started")
	return nil
}

func (s *Session) dispatch() {
	defer close(s.done)
	for env := range s.transport.Envelopes() {
		s.route(env)
	}
}

// Connected reports whether the push channel is up
func (s *Session) Connected() bool {
	return s.transport.Connected()
}

// Close closes every open list, leaves the session topics, shuts the channel
// and clears presence.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	lists := make([]*List, 0, len(s.lists))
	for _, l := range s.lists {
		lists = append(lists, l)
	}
	dispose, started := s.baseDispose, s.started
	s.mu.Unlock()

	for _, l := range lists {
		l.Close()
	}
	if dispose != nil {
		dispose()
	}
	err := s.transport.Close()
	if started {
		<-s.done
	}
	s.Presence.Reset()
	s.logger.WithField("user_id", s.UserID()).Info("Session closed")
	return err
}

// State is a point-in-time view of the session for diagnostics
type State struct {
	UserID    string                       `json:"user_id"`
	Connected bool                         `json:"connected"`
	Unread    map[string]int               `json:"unread"`
	Online    []string                     `json:"online"`
	Topics    map[string]int               `json:"topics"`
	Pending   []optimistic.PendingMutation `json:"pending_mutations"`
	Lists     []ListState                  `json:"lists"`
}

// ListState describes one open list
type ListState struct {
	Kind        string   `json:"kind"`
	Fingerprint string   `json:"fingerprint"`
	Page        int      `json:"page"`
	TotalPages  int      `json:"total_pages"`
	Items       int      `json:"items"`
	Topics      []string `json:"topics"`
}

// State returns a snapshot of the session
func (s *Session) State() State {
	st := State{
		UserID:    s.UserID(),
		Connected: s.Connected(),
		Unread:    s.Unread.Snapshot(),
		Online:    s.Presence.Online(),
		Topics:    s.Subscriptions.Counts(),
		Pending:   s.Mutator.Pending(),
	}
	for _, l := range s.openLists() {
		c := l.Cache()
		st.Lists = append(st.Lists, ListState{
			Kind:        string(c.Kind()),
			Fingerprint: c.Fingerprint(),
			Page:        c.Page(),
			TotalPages:  c.TotalPages(),
			Items:       c.Len(),
			Topics:      l.Topics(),
		})
	}
	return st
}

func (s *Session) openLists() []*List {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*List, 0, len(s.lists))
	for _, l := range s.lists {
		out = append(out, l)
	}
	return out
}

func (s *Session) addList(l *List) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session closed")
	}
	l.id = s.nextList
	s.nextList++
	s.lists[l.id] = l
	return nil
}

func (s *Session) removeList(l *List) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lists, l.id)
}
