// Package optimistic applies local list changes before the server confirms
// them and rolls them back when it does not.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/metrics"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/pagecache"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/auth"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
)

// Result is what the remote call reports
type Result struct {
	StatusCode int
	// CanonicalID is the server id of a created entity, e.g. a retweet
	CanonicalID string
}

// OK reports a 2xx status
func (r Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Remote performs the server side of a mutation
type Remote func(ctx context.Context) (Result, error)

// LocalChange applies the optimistic edit to the scoped caches
type LocalChange func() error

// Scope names the items of one cache a mutation touches
type Scope struct {
	Cache *pagecache.Cache
	// IDs defaults to the request target
	IDs []string
}

// Request describes one optimistic mutation
type Request struct {
	TargetID string
	Kind     string
	Scopes   []Scope
	Local    LocalChange
	Remote   Remote
	// Confirm runs after a successful remote call, e.g. to swap a local id
	// for the canonical one
	Confirm func(Result)
}

// Outcome is returned for a confirmed mutation
type Outcome struct {
	Result
	AppliedAt time.Time
	Settled   time.Time
}

// PendingMutation is a mutation waiting for its remote call
type PendingMutation struct {
	TargetID  string    `json:"target_id"`
	Kind      string    `json:"kind"`
	AppliedAt time.Time `json:"applied_at"`
}

type key struct {
	target string
	kind   string
}

// Mutator serializes optimistic mutations per (target, kind)
type Mutator struct {
	identity auth.Identity
	logger   logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu        sync.Mutex
	pending   map[key]time.Time
	canonical map[key]string
}

// NewMutator creates a mutator acting as identity
func NewMutator(identity auth.Identity, logger logging.Logger, m *metrics.Metrics) *Mutator {
	return &Mutator{
		identity:  identity,
		logger:    logging.OrDiscard(logger),
		metrics:   m,
		now:       time.Now,
		pending:   make(map[key]time.Time),
		canonical: make(map[key]string),
	}
}

// Apply runs the mutation: snapshot, local change, remote call, then confirm
// or restore. Unverified identities are refused before anything changes. A
// second request for the same target and kind while one is pending is
// refused with ErrMutationPending.
func (m *Mutator) Apply(ctx context.Context, req Request) (Outcome, error) {
	if m.identity == nil || !m.identity.Verified() {
		m.metrics.MutationSettled(req.Kind, "denied")
		return Outcome{}, model.ErrPermissionDenied
	}
	if req.Remote == nil {
		return Outcome{}, fmt.Errorf("mutation %s on %s: no remote call", req.Kind, req.TargetID)
	}

	k := key{target: req.TargetID, kind: req.Kind}
	m.mu.Lock()
	if _, busy := m.pending[k]; busy {
		m.mu.Unlock()
		return Outcome{}, model.ErrMutationPending
	}
	applied := m.now()
	m.pending[k] = applied
	m.mu.Unlock()
	defer m.release(k)

	snapshots := m.capture(req)
	if req.Local != nil {
		if err := req.Local(); err != nil {
			m.restore(snapshots)
			return Outcome{}, fmt.Errorf("local change %s on %s: %w", req.Kind, req.TargetID, err)
		}
	}

	log := m.logger.WithFields(logging.Fields{
		"target_id": req.TargetID,
		"kind":      req.Kind,
	})

	res, err := req.Remote(ctx)
	if err != nil || !res.OK() {
		if !m.restore(snapshots) {
			m.metrics.MutationSettled(req.Kind, "stale")
			return Outcome{}, model.ErrStaleCompletion
		}
		m.metrics.MutationSettled(req.Kind, "rolled_back")
		mErr := &model.MutationError{TargetID: req.TargetID, StatusCode: res.StatusCode, Err: err}
		log.WithError(mErr).Info("Mutation rolled back")
		return Outcome{}, mErr
	}

	if res.CanonicalID != "" {
		m.mu.Lock()
		m.canonical[k] = res.CanonicalID
		m.mu.Unlock()
	}
	if allClosed(snapshots) {
		m.metrics.MutationSettled(req.Kind, "stale")
		return Outcome{Result: res, AppliedAt: applied, Settled: m.now()}, model.ErrStaleCompletion
	}
	if req.Confirm != nil {
		req.Confirm(res)
	}
	m.metrics.MutationSettled(req.Kind, "confirmed")
	log.Debug("Mutation confirmed")
	return Outcome{Result: res, AppliedAt: applied, Settled: m.now()}, nil
}

type scopeSnapshot struct {
	cache *pagecache.Cache
	snap  *pagecache.Snapshot
}

func (m *Mutator) capture(req Request) []scopeSnapshot {
	out := make([]scopeSnapshot, 0, len(req.Scopes))
	for _, s := range req.Scopes {
		if s.Cache == nil {
			continue
		}
		ids := s.IDs
		if len(ids) == 0 {
			ids = []string{req.TargetID}
		}
		out = append(out, scopeSnapshot{cache: s.Cache, snap: s.Cache.Capture(ids...)})
	}
	return out
}

// restore reverts every open scope; false when all scopes were torn down
func (m *Mutator) restore(snaps []scopeSnapshot) bool {
	if len(snaps) == 0 {
		return true
	}
	restored := false
	for _, s := range snaps {
		if s.cache.Restore(s.snap) {
			restored = true
		}
	}
	return restored
}

func allClosed(snaps []scopeSnapshot) bool {
	if len(snaps) == 0 {
		return false
	}
	for _, s := range snaps {
		if !s.cache.Closed() {
			return false
		}
	}
	return true
}

func (m *Mutator) release(k key) {
	m.mu.Lock()
	delete(m.pending, k)
	m.mu.Unlock()
}

// CanonicalID returns the server id stored by the last confirmed mutation
func (m *Mutator) CanonicalID(targetID, kind string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.canonical[key{target: targetID, kind: kind}]
	return id, ok
}

// Forget drops a stored canonical id once its inverse operation succeeded
func (m *Mutator) Forget(targetID, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.canonical, key{target: targetID, kind: kind})
}

// IsPending reports whether a mutation is outstanding for target and kind
func (m *Mutator) IsPending(targetID, kind string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[key{target: targetID, kind: kind}]
	return ok
}

// Pending lists outstanding mutations, oldest first
func (m *Mutator) Pending() []PendingMutation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PendingMutation, 0, len(m.pending))
	for k, at := range m.pending {
		out = append(out, PendingMutation{TargetID: k.target, Kind: k.kind, AppliedAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AppliedAt.Equal(out[j].AppliedAt) {
			return out[i].TargetID < out[j].TargetID
		}
		return out[i].AppliedAt.Before(out[j].AppliedAt)
	})
	return out
}

// IsRecoverable reports whether err is a failure the caller shows as a
// transient notice
func IsRecoverable(err error) bool {
	return errors.Is(err, model.ErrMutationRejected) ||
		errors.Is(err, model.ErrMutationPending) ||
		errors.Is(err, model.ErrPermissionDenied)
}
