// Package presence tracks which users are currently online.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/metrics"
)

// Tracker holds the online set for one session. The last event per user wins;
// events for different users are never compared.
type Tracker struct {
	mu        sync.RWMutex
	online    map[string]struct{}
	seen      map[string]time.Time
	listeners map[uint64]func()
	nextID    uint64
	metrics   *metrics.Metrics
}

// NewTracker creates an empty tracker
func NewTracker(m *metrics.Metrics) *Tracker {
	return &Tracker{
		online:    make(map[string]struct{}),
		seen:      make(map[string]time.Time),
		listeners: make(map[uint64]func()),
		metrics:   m,
	}
}

// SetOnline marks a user online
func (t *Tracker) SetOnline(userID string) {
	t.set(userID, true, time.Time{})
}

// SetOffline marks a user offline
func (t *Tracker) SetOffline(userID string) {
	t.set(userID, false, time.Time{})
}

// Observe applies a timestamped presence event. An event older than the last
// one seen for the same user is dropped. Returns whether it was applied.
func (t *Tracker) Observe(userID string, online bool, at time.Time) bool {
	return t.set(userID, online, at)
}

func (t *Tracker) set(userID string, online bool, at time.Time) bool {
	if userID == "" {
		return false
	}
	t.mu.Lock()
	if !at.IsZero() {
		if last, ok := t.seen[userID]; ok && at.Before(last) {
			t.mu.Unlock()
			return false
		}
		t.seen[userID] = at
	}
	_, was := t.online[userID]
	if online {
		t.online[userID] = struct{}{}
	} else {
		delete(t.online, userID)
	}
	changed := was != online
	n := len(t.online)
	listeners := t.listenersLocked(changed)
	t.mu.Unlock()

	if changed {
		t.metrics.SetOnlineUsers(n)
		for _, fn := range listeners {
			fn()
		}
	}
	return true
}

func (t *Tracker) listenersLocked(changed bool) []func() {
	if !changed || len(t.listeners) == 0 {
		return nil
	}
	out := make([]func(), 0, len(t.listeners))
	for _, fn := range t.listeners {
		out = append(out, fn)
	}
	return out
}

// IsOnline reports whether one user is online
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

// IsAnyOnline reports whether any of the users is online
func (t *Tracker) IsAnyOnline(userIDs ...string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range userIDs {
		if _, ok := t.online[id]; ok {
			return true
		}
	}
	return false
}

// Online returns the sorted online user ids
func (t *Tracker) Online() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Watch registers fn to run after every change to the online set. Views
// recompute their peer status from the tracker inside fn.
func (t *Tracker) Watch(fn func()) (cancel func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.listeners, id)
			t.mu.Unlock()
		})
	}
}

// Reset clears all presence state, used when the session ends
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.online = make(map[string]struct{})
	t.seen = make(map[string]time.Time)
	t.mu.Unlock()
	t.metrics.SetOnlineUsers(0)
}
