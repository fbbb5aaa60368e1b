// Package subscription decides which channel topics are joined. Interest is
// reference counted across views; frames go out only on 0->1 and 1->0.
package subscription

import (
	"context"
	"sort"
	"sync"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/channel"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/metrics"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
)

// Sender writes frames on the shared channel
type Sender interface {
	Send(ctx context.Context, frame channel.Frame) error
}

// Manager is the session's subscription table
type Manager struct {
	sender  Sender
	logger  logging.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	counts map[string]int
}

// NewManager creates a manager sending frames through sender
func NewManager(sender Sender, logger logging.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		sender:  sender,
		logger:  logging.OrDiscard(logger),
		metrics: m,
		counts:  make(map[string]int),
	}
}

// Join adds one reference to topic and sends a join frame on the first one.
// A failed send keeps the reference; Resync joins it after reconnect.
func (m *Manager) Join(ctx context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts[topic]++
	if m.counts[topic] != 1 {
		return nil
	}
	m.metrics.SetJoinedTopics(len(m.counts))
	return m.sendLocked(ctx, channel.OpJoin, []string{topic})
}

// Leave drops one reference and sends a leave frame on the last one. Leaving
// a topic with no references is a no-op.
func (m *Manager) Leave(ctx context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.counts[topic]
	if !ok || n == 0 {
		m.logger.WithField("topic", topic).Warn("Leave for topic with no references")
		return nil
	}
	if n > 1 {
		m.counts[topic] = n - 1
		return nil
	}
	delete(m.counts, topic)
	m.metrics.SetJoinedTopics(len(m.counts))
	return m.sendLocked(ctx, channel.OpLeave, []string{topic})
}

func (m *Manager) sendLocked(ctx context.Context, op channel.Op, topics []string) error {
	err := m.sender.Send(ctx, channel.Frame{Op: op, Topics: topics})
	log := m.logger.WithFields(logging.Fields{
		"op":     op,
		"topics": topics,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to send subscription frame")
		return err
	}
	m.metrics.FrameSent(string(op))
	log.Debug("Subscription frame sent")
	return nil
}

// Register joins every topic and returns a disposer that leaves them. The
// disposer runs at most once no matter how often it is called.
func (m *Manager) Register(ctx context.Context, topics ...string) (dispose func(), err error) {
	for _, t := range topics {
		if jerr := m.Join(ctx, t); jerr != nil && err == nil {
			err = jerr
		}
	}
	var once sync.Once
	dispose = func() {
		once.Do(func() {
			for _, t := range topics {
				_ = m.Leave(context.Background(), t)
			}
		})
	}
	return dispose, err
}

// Resync sends one join frame for every referenced topic, used after the
// channel reconnects.
func (m *Manager) Resync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := m.topicsLocked()
	if len(topics) == 0 {
		return nil
	}
	m.logger.WithField("topics", len(topics)).Info("Re-joining topics after reconnect")
	return m.sendLocked(ctx, channel.OpJoin, topics)
}

// Topics returns the joined topics, sorted
func (m *Manager) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topicsLocked()
}

func (m *Manager) topicsLocked() []string {
	out := make([]string, 0, len(m.counts))
	for t, n := range m.counts {
		if n > 0 {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// RefCount returns the references held on topic
func (m *Manager) RefCount(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[topic]
}

// Counts returns a copy of the reference table
func (m *Manager) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.counts))
	for t, n := range m.counts {
		out[t] = n
	}
	return out
}
