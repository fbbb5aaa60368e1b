// Package unread keeps the per-category unread counters of a session.
package unread

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/metrics"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
)

// Well-known categories
const (
	Notifications = "notifications"
	Messages      = "messages"
)

// CommunityPending is the pending-approval counter of a community
func CommunityPending(communityID string) string {
	return "community:" + communityID + ":pending"
}

// DefaultDedupeWindow bounds how long delivered event ids are remembered
const DefaultDedupeWindow = 10 * time.Minute

// Receipt tells the server a category was read
type Receipt func(ctx context.Context) error

// Watcher is notified with the new count after each change
type Watcher func(category string, count int)

// Accumulator is the single unread state of a session. Counts never go
// negative.
type Accumulator struct {
	mu        sync.Mutex
	counts    map[string]int
	delivered map[string]time.Time
	window    time.Duration
	now       func() time.Time
	watchers  map[uint64]Watcher
	nextID    uint64
	logger    logging.Logger
	metrics   *metrics.Metrics
}

// New creates an empty accumulator
func New(logger logging.Logger, m *metrics.Metrics) *Accumulator {
	return &Accumulator{
		counts:    make(map[string]int),
		delivered: make(map[string]time.Time),
		window:    DefaultDedupeWindow,
		now:       time.Now,
		watchers:  make(map[uint64]Watcher),
		logger:    logging.OrDiscard(logger),
		metrics:   m,
	}
}

// Increment adds one to a category
func (a *Accumulator) Increment(category string) int {
	return a.add(category, 1)
}

// IncrementEvent adds one for eventID unless the same event was already
// counted in the dedupe window. Returns whether the count changed.
func (a *Accumulator) IncrementEvent(category, eventID string) bool {
	if !a.firstDelivery(category, eventID) {
		return false
	}
	a.Increment(category)
	return true
}

// DecrementEvent subtracts one for eventID unless the same event was already
// applied in the dedupe window.
func (a *Accumulator) DecrementEvent(category, eventID string) bool {
	if !a.firstDelivery(category, eventID) {
		return false
	}
	a.Decrement(category)
	return true
}

func (a *Accumulator) firstDelivery(category, eventID string) bool {
	if eventID == "" {
		return true
	}
	key := category + "\x00" + eventID

	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	a.pruneLocked(now)
	if _, dup := a.delivered[key]; dup {
		return false
	}
	a.delivered[key] = now
	return true
}

func (a *Accumulator) pruneLocked(now time.Time) {
	for k, at := range a.delivered {
		if now.Sub(at) > a.window {
			delete(a.delivered, k)
		}
	}
}

// Decrement subtracts one, stopping at zero
func (a *Accumulator) Decrement(category string) int {
	return a.add(category, -1)
}

func (a *Accumulator) add(category string, delta int) int {
	a.mu.Lock()
	prev := a.counts[category]
	n := prev + delta
	if n < 0 {
		n = 0
	}
	a.counts[category] = n
	watchers := a.watchersLocked()
	a.mu.Unlock()

	if n != prev {
		a.notify(watchers, category, n)
	}
	return n
}

// Reset zeroes a category
func (a *Accumulator) Reset(category string) {
	a.mu.Lock()
	prev := a.counts[category]
	a.counts[category] = 0
	watchers := a.watchersLocked()
	a.mu.Unlock()

	if prev != 0 {
		a.notify(watchers, category, 0)
	}
}

// MarkRead zeroes the category locally, then sends the read receipt. The
// local reset stands even when the receipt fails.
func (a *Accumulator) MarkRead(ctx context.Context, category string, receipt Receipt) error {
	a.Reset(category)
	if receipt == nil {
		return nil
	}
	if err := receipt(ctx); err != nil {
		a.logger.WithError(err).WithField("category", category).Warn("Read receipt failed")
		return fmt.Errorf("read receipt for %s: %w", category, err)
	}
	return nil
}

// Count returns one category's count
func (a *Accumulator) Count(category string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[category]
}

// Snapshot returns a copy of all non-zero counters
func (a *Accumulator) Snapshot() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.counts))
	for k, v := range a.counts {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

// Watch registers fn for counter changes
func (a *Accumulator) Watch(fn Watcher) (cancel func()) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.watchers[id] = fn
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.watchers, id)
			a.mu.Unlock()
		})
	}
}

func (a *Accumulator) watchersLocked() []Watcher {
	out := make([]Watcher, 0, len(a.watchers))
	for _, w := range a.watchers {
		out = append(out, w)
	}
	return out
}

func (a *Accumulator) notify(watchers []Watcher, category string, n int) {
	a.metrics.SetUnread(category, n)
	for _, w := range watchers {
		w(category, n)
	}
}
