package merger

import (
	"sync"
	"time"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/pagecache"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
)

// DefaultTypingDelay is how long a remote insert shows as "typing" before it
// is materialized.
const DefaultTypingDelay = 1500 * time.Millisecond

// TypingState is the state of a Typing buffer
type TypingState int

const (
	Idle TypingState = iota
	PendingRemote
)

// Indicator receives typing indicator changes. author is empty when the
// indicator clears.
type Indicator func(author string)

// Typing delays remote inserts into comment and message streams. The first
// remote insert starts a timer and shows an indicator; each further remote
// insert restarts the timer and may change the indicator author. When the
// timer fires, queued inserts are flushed into the cache in arrival order.
// Inserts by the local user bypass the buffer.
type Typing struct {
	cache     *pagecache.Cache
	localUser string
	delay     time.Duration
	indicator Indicator
	onFlush   func(model.Event, Result)
	logger    logging.Logger

	mu      sync.Mutex
	state   TypingState
	author  string
	queue   []model.Event
	timer   *time.Timer
	seq     uint64
	stopped bool
}

// TypingConfig configures a Typing buffer
type TypingConfig struct {
	LocalUser string
	Delay     time.Duration
	Indicator Indicator
	// OnFlush observes each event applied by the buffer
	OnFlush func(model.Event, Result)
	Logger  logging.Logger
}

// NewTyping creates a typing buffer in front of cache
func NewTyping(cache *pagecache.Cache, cfg TypingConfig) *Typing {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultTypingDelay
	}
	return &Typing{
		cache:     cache,
		localUser: cfg.LocalUser,
		delay:     cfg.Delay,
		indicator: cfg.Indicator,
		onFlush:   cfg.OnFlush,
		logger:    logging.OrDiscard(cfg.Logger),
	}
}

// Handle routes an event. Remote inserts are buffered; everything else is
// applied immediately.
func (t *Typing) Handle(ev model.Event) (Result, error) {
	if ev.Kind != model.EventInsert {
		if res, queued, err := t.amendQueued(ev); queued {
			return res, err
		}
		return Apply(t.cache, ev)
	}
	if ev.AuthorID() == "" || ev.AuthorID() == t.localUser {
		return Apply(t.cache, ev)
	}
	if err := ev.Validate(); err != nil {
		return Dropped, err
	}
	if t.cache.Contains(ev.Item.ID) {
		// already materialized, so it is a redelivery
		return Apply(t.cache, ev)
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return Dropped, nil
	}
	for _, queued := range t.queue {
		if queued.Item.ID == ev.Item.ID {
			t.mu.Unlock()
			return Duplicate, nil
		}
	}
	t.queue = append(t.queue, ev)
	t.state = PendingRemote
	changed := t.author != ev.AuthorID()
	t.author = ev.AuthorID()
	t.seq++
	seq := t.seq
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.delay, func() { t.expire(seq) })
	author := t.author
	t.mu.Unlock()

	if changed && t.indicator != nil {
		t.indicator(author)
	}
	return Buffered, nil
}

// amendQueued applies an update or remove to a buffered insert of the same
// id. queued is false when no buffered insert matches.
func (t *Typing) amendQueued(ev model.Event) (res Result, queued bool, err error) {
	if ev.ID == "" {
		return Dropped, false, nil
	}
	t.mu.Lock()
	idx := -1
	for i, q := range t.queue {
		if q.Item.ID == ev.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return Dropped, false, nil
	}

	switch ev.Kind {
	case model.EventUpdate:
		item := t.queue[idx].Item.Clone()
		if err := ev.Patch.ApplyTo(item); err != nil {
			t.mu.Unlock()
			return Dropped, true, err
		}
		t.queue[idx] = model.Insert(item)
		t.mu.Unlock()
		return Updated, true, nil

	case model.EventRemove:
		t.queue = append(t.queue[:idx:idx], t.queue[idx+1:]...)
		cleared := len(t.queue) == 0
		if cleared {
			if t.timer != nil {
				t.timer.Stop()
				t.timer = nil
			}
			t.seq++
			t.state = Idle
			t.author = ""
		}
		t.mu.Unlock()
		if cleared && t.indicator != nil {
			t.indicator("")
		}
		return Removed, true, nil
	}
	t.mu.Unlock()
	return Dropped, false, nil
}

func (t *Typing) expire(seq uint64) {
	t.mu.Lock()
	if t.stopped || seq != t.seq {
		t.mu.Unlock()
		return
	}
	queue := t.queue
	t.queue = nil
	t.state = Idle
	t.author = ""
	t.timer = nil
	t.mu.Unlock()

	for _, ev := range queue {
		res, err := Apply(t.cache, ev)
		if err != nil {
			t.logger.WithError(err).WithField("id", ev.ID).Warn("Dropping buffered event")
			continue
		}
		if t.onFlush != nil {
			t.onFlush(ev, res)
		}
	}
	if t.indicator != nil {
		t.indicator("")
	}
}

// State returns the current state and indicator author
func (t *Typing) State() (TypingState, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.author
}

// Pending returns the number of buffered events
func (t *Typing) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Stop cancels the timer and discards buffered events
func (t *Typing) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.queue = nil
	t.state = Idle
	t.author = ""
}
