package subscription

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"sync"
	"testing"

	logrustest "github.com/sirupsen/logrus/hooks/test"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/channel"
)

type recordingSender struct {
	mu     sync.Mutex
	frames []channel.Frame
	fail   bool
}

func (s *recordingSender) Send(_ context.Context, f channel.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return channel.ErrNotConnected
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSender) count(op channel.Op, topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.frames {
		for _, t := range f.Topics {
			if f.Op == op && t == topic {
				n++
			}
		}
	}
	return n
}

func TestJoinLeaveRefCounted(t *testing.T) {
	s := &recordingSender{}
	m := NewManager(s, nil, nil)
	ctx := context.Background()
	topic := ConversationTopic("42")

	_ = m.Join(ctx, topic)
	_ = m.Join(ctx, topic)
	_ = m.Leave(ctx, topic)
	if m.RefCount(topic) != 1 || s.count(channel.OpLeave, topic) != 0 {
		t.Fatalf("topic must stay joined while a view holds it")
	}
	_ = m.Leave(ctx, topic)

	if s.count(channel.OpJoin, topic) != 1 || s.count(channel.OpLeave, topic) != 1 {
		t.Fatalf("frames = %+v", s.frames)
	}
	if len(m.Topics()) != 0 {
		t.Fatalf("topics = %v", m.Topics())
	}
}

func TestRandomInterleavingSendsOneFramePair(t *testing.T) {
	s := &recordingSender{}
	m := NewManager(s, nil, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	topic := CommentTopic("t1")

	const n = 50
	joins, leaves := 0, 0
	// the count never drops below zero, and it reaches zero only at the end
	_ = m.Join(ctx, topic)
	joins++
	for joins < n || leaves < n-1 {
		if joins < n && (leaves >= joins-1 || rng.Intn(2) == 0) {
			_ = m.Join(ctx, topic)
			joins++
		} else {
			_ = m.Leave(ctx, topic)
			leaves++
		}
	}
	_ = m.Leave(ctx, topic)

	if s.count(channel.OpJoin, topic) != 1 || s.count(channel.OpLeave, topic) != 1 {
		t.Fatalf("join frames = %d, leave frames = %d", s.count(channel.OpJoin, topic), s.count(channel.OpLeave, topic))
	}
}

func TestLeaveAtZeroIsLoggedNoop(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	s := &recordingSender{}
	m := NewManager(s, logger, nil)

	if err := m.Leave(context.Background(), "presence"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if len(s.frames) != 0 {
		t.Fatalf("no frame expected")
	}
	if hook.LastEntry() == nil || hook.LastEntry().Data["topic"] != "presence" {
		t.Fatalf("expected a warning for the unmatched leave")
	}
}

func TestRegisterDisposerRunsOnce(t *testing.T) {
	s := &recordingSender{}
	m := NewManager(s, nil, nil)
	ctx := context.Background()

	keep, _ := m.Register(ctx, CommentTopic("t1"))
	dispose, err := m.Register(ctx, CommentTopic("t1"), NotificationTopic("u1"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispose()
		}()
	}
	wg.Wait()

	if m.RefCount(CommentTopic("t1")) != 1 {
		t.Fatalf("disposer ran more than once")
	}
	if m.RefCount(NotificationTopic("u1")) != 0 {
		t.Fatalf("disposer did not leave its topics")
	}
	keep()
	if len(m.Topics()) != 0 {
		t.Fatalf("topics = %v", m.Topics())
	}
}

func TestFailedJoinKeptForResync(t *testing.T) {
	s := &recordingSender{fail: true}
	m := NewManager(s, nil, nil)
	ctx := context.Background()

	if err := m.Join(ctx, "presence"); !errors.Is(err, channel.ErrNotConnected) {
		t.Fatalf("Join = %v", err)
	}
	_ = m.Join(ctx, CommunityTopic("c1"))
	if m.RefCount("presence") != 1 {
		t.Fatalf("reference dropped on send failure")
	}

	s.fail = false
	if err := m.Resync(ctx); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	want := []channel.Frame{{Op: channel.OpJoin, Topics: []string{"community:c1", "presence"}}}
	if !reflect.DeepEqual(s.frames, want) {
		t.Fatalf("frames = %+v, want %+v", s.frames, want)
	}
}

func TestSplitTopic(t *testing.T) {
	prefix, id := SplitTopic(ConversationTopic("42"))
	if prefix != ConversationPrefix || id != "42" {
		t.Fatalf("SplitTopic = %q, %q", prefix, id)
	}
	prefix, id = SplitTopic(PresenceTopic)
	if prefix != PresenceTopic || id != "" {
		t.Fatalf("SplitTopic(presence) = %q, %q", prefix, id)
	}
}
