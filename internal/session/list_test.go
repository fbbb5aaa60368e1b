package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/channel"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/optimistic"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/pagecache"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/subscription"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/unread"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/auth"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/clients"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/testutil"
)

func tweet(id string, minute int) *model.Item {
	at := time.Date(2024, 5, 1, 10, minute, 0, 0, time.UTC)
	return &model.Item{ID: id, Type: model.KindTweet, CreatedAt: at, UpdatedAt: at, Payload: map[string]any{"likes": 0, "liked": false}}
}

func startedSession(t *testing.T, f pagecache.Fetcher) (*Session, *fakeTransport) {
	t.Helper()
	s, tr := newTestSession(t, f)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s, tr
}

func TestListJoinsAndLeavesTopicsOnce(t *testing.T) {
	s, tr := startedSession(t, nil)
	ctx := context.Background()
	topic := subscription.CommentTopic("t1")
	q := pagecache.Query{Kind: model.KindComment}

	a, err := s.OpenList(ctx, ListOptions{Query: q, Topics: []string{topic}})
	if err != nil {
		t.Fatalf("OpenList: %v", err)
	}
	b, _ := s.OpenList(ctx, ListOptions{Query: q, Topics: []string{topic}})

	a.Close()
	a.Close()
	if tr.count(channel.OpLeave, topic) != 0 {
		t.Fatalf("topic left while another view holds it")
	}
	b.Close()
	if tr.count(channel.OpJoin, topic) != 1 || tr.count(channel.OpLeave, topic) != 1 {
		t.Fatalf("want exactly one join and one leave, got %d/%d",
			tr.count(channel.OpJoin, topic), tr.count(channel.OpLeave, topic))
	}
	if len(s.State().Lists) != 0 {
		t.Fatalf("closed lists must be dropped from the session")
	}
}

func TestListLoadsPagesAndMergesLiveEvents(t *testing.T) {
	f := &pageFetcher{pages: map[int][]*model.Item{1: {tweet("b", 2), tweet("a", 1)}}, total: 1}
	s, _ := startedSession(t, f)
	topic := subscription.CommentTopic("t1")
	l, err := s.OpenList(context.Background(), ListOptions{
		Query:  pagecache.Query{Kind: model.KindTweet},
		Topics: []string{topic},
	})
	if err != nil {
		t.Fatalf("OpenList: %v", err)
	}
	defer l.Close()

	more, err := l.LoadMore(context.Background())
	if err != nil || more {
		t.Fatalf("LoadMore = %v, %v", more, err)
	}
	s.route(envelope(topic, model.EventInsert, `{"_id":"c","type":"tweet","created_at":"2024-05-01T10:05:00Z"}`))
	s.route(envelope(topic, model.EventInsert, `{"_id":"c","type":"tweet","created_at":"2024-05-01T10:05:00Z"}`))
	s.route(envelope(topic, model.EventRemove, `{"_id":"a"}`))

	got := l.Cache().IDs()
	if len(got) != 2 || got[0] != "c" || got[1] != "b" {
		t.Fatalf("ids = %v, want [c b]", got)
	}
}

func TestListTypingBuffersRemoteMessages(t *testing.T) {
	s, _ := startedSession(t, nil)
	topic := subscription.ConversationTopic("c1")

	var mu sync.Mutex
	var authors []string
	l, err := s.OpenList(context.Background(), ListOptions{
		Query:  pagecache.Query{Kind: model.KindMessage},
		Topics: []string{topic},
		Typing: true,
		OnTyping: func(author string) {
			mu.Lock()
			authors = append(authors, author)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("OpenList: %v", err)
	}
	defer l.Close()

	s.route(envelope(topic, model.EventInsert, message("m1", "u2")))
	if l.Cache().Contains("m1") {
		t.Fatalf("remote message should wait behind the typing indicator")
	}
	s.route(envelope(topic, model.EventInsert, message("m2", "me")))
	if !l.Cache().Contains("m2") {
		t.Fatalf("own message should bypass the typing buffer")
	}

	waitFor(t, "typing flush", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(authors) == 2
	})
	if !l.Cache().Contains("m1") {
		t.Fatalf("buffered message not flushed")
	}
	mu.Lock()
	defer mu.Unlock()
	if authors[0] != "u2" || authors[1] != "" {
		t.Fatalf("indicator = %v", authors)
	}
}

func TestListAutoReadResetsCategory(t *testing.T) {
	s, _ := startedSession(t, nil)
	ctx := context.Background()
	topic := subscription.ConversationTopic("c1")

	s.route(envelope(topic, model.EventInsert, message("m0", "u2")))
	if s.Unread.Count(unread.Messages) != 1 {
		t.Fatalf("expected one unread message before opening")
	}

	receipts := 0
	l, err := s.OpenList(ctx, ListOptions{
		Query:    pagecache.Query{Kind: model.KindMessage},
		Topics:   []string{topic},
		AutoRead: unread.Messages,
		Receipt: func(context.Context) error {
			receipts++
			return nil
		},
	})
	if err != nil {
		t.Fatalf("OpenList: %v", err)
	}
	defer l.Close()
	if receipts != 1 || s.Unread.Count(unread.Messages) != 0 {
		t.Fatalf("opening must mark read: receipts=%d count=%d", receipts, s.Unread.Count(unread.Messages))
	}

	s.route(envelope(topic, model.EventInsert, message("m1", "u2")))
	if s.Unread.Count(unread.Messages) != 0 {
		t.Fatalf("messages arriving in an open conversation are read")
	}
}

func TestListAutoReadKeepsResetOnReceiptFailure(t *testing.T) {
	s, _ := startedSession(t, nil)
	s.Unread.Increment(unread.Notifications)

	l, err := s.OpenList(context.Background(), ListOptions{
		Query:    pagecache.Query{Kind: model.KindNotification},
		AutoRead: unread.Notifications,
		Receipt:  func(context.Context) error { return errors.New("offline") },
	})
	if err != nil {
		t.Fatalf("OpenList: %v", err)
	}
	defer l.Close()
	if s.Unread.Count(unread.Notifications) != 0 {
		t.Fatalf("local reset must stand")
	}
}

func TestListSetQueryStartsOver(t *testing.T) {
	f := &pageFetcher{pages: map[int][]*model.Item{1: {tweet("a", 1)}}, total: 3}
	s, _ := startedSession(t, f)
	l, _ := s.OpenList(context.Background(), ListOptions{Query: pagecache.Query{Kind: model.KindTweet, Text: "go"}})
	defer l.Close()

	if _, err := l.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	old := l.Cache()
	if l.SetQuery(pagecache.Query{Kind: model.KindTweet, Text: " go "}) {
		t.Fatalf("same fingerprint must not reset")
	}
	if !l.SetQuery(pagecache.Query{Kind: model.KindTweet, Text: "rust"}) {
		t.Fatalf("new text must reset")
	}
	if l.Cache() == old || l.Cache().Len() != 0 || !old.Closed() {
		t.Fatalf("reset must swap in a fresh cache and close the old one")
	}
}

func TestListMutateDefaultsToOwnCache(t *testing.T) {
	f := &pageFetcher{pages: map[int][]*model.Item{1: {tweet("a", 1)}}, total: 1}
	s, _ := startedSession(t, f)
	l, _ := s.OpenList(context.Background(), ListOptions{Query: pagecache.Query{Kind: model.KindTweet}})
	defer l.Close()
	if _, err := l.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}

	_, err := l.Mutate(context.Background(), optimistic.Request{
		TargetID: "a",
		Kind:     "like",
		Local:    optimistic.Toggle(l.Cache(), "a", "liked", "likes"),
		Remote: func(context.Context) (optimistic.Result, error) {
			return optimistic.Result{StatusCode: http.StatusInternalServerError}, nil
		},
	})
	if !errors.Is(err, model.ErrMutationRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	it, _ := l.Cache().Get("a")
	if it.Bool("liked") || it.Int("likes") != 0 {
		t.Fatalf("rejected like must roll back: %+v", it.Payload)
	}
}

func TestStateReportsOpenLists(t *testing.T) {
	s, _ := startedSession(t, nil)
	topic := subscription.CommentTopic("t1")
	l, _ := s.OpenList(context.Background(), ListOptions{
		Query:  pagecache.Query{Kind: model.KindComment},
		Topics: []string{topic},
	})
	defer l.Close()

	st := s.State()
	if st.UserID != "me" || !st.Connected || len(st.Lists) != 1 {
		t.Fatalf("state = %+v", st)
	}
	if st.Topics[topic] != 1 || st.Lists[0].Kind != string(model.KindComment) {
		t.Fatalf("state = %+v", st)
	}
}

func TestCloseIsIdempotentAndRejectsNewLists(t *testing.T) {
	s, _ := startedSession(t, nil)
	s.Presence.SetOnline("u2")
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if s.Presence.IsOnline("u2") {
		t.Fatalf("presence must clear on close")
	}
	if _, err := s.OpenList(context.Background(), ListOptions{}); err == nil {
		t.Fatalf("OpenList after Close must fail")
	}
}

func TestSessionOverWebSocket(t *testing.T) {
	helper := testutil.NewJWTTestHelper()
	server := testutil.NewMockChannelServerWithAuth(helper)
	defer server.Close()
	token, err := helper.GenerateValidJWT("me", true)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	ws := channel.NewWebSocket(channel.WebSocketConfig{
		URL:       server.URL(),
		Token:     token,
		Reconnect: clients.ReconnectConfig{BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond},
	})
	s, err := New(Config{Identity: auth.StaticIdentity{ID: "me", IsVerified: true}},
		Deps{Transport: ws, Fetcher: &pageFetcher{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	topic := subscription.ConversationTopic("c1")
	l, err := s.OpenList(context.Background(), ListOptions{
		Query:  pagecache.Query{Kind: model.KindMessage},
		Topics: []string{topic},
	})
	if err != nil {
		t.Fatalf("OpenList: %v", err)
	}
	defer l.Close()
	waitFor(t, "join frames", func() bool { return len(server.Frames()) >= 2 })

	server.Push(map[string]any{
		"topic":   topic,
		"kind":    "insert",
		"payload": map[string]any{"_id": "m1", "type": "message", "author_id": "u2", "created_at": "2024-05-01T10:00:00Z"},
	})
	waitFor(t, "message delivery", func() bool { return l.Cache().Contains("m1") })
	if s.Unread.Count(unread.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", s.Unread.Count(unread.Messages))
	}

	server.DropConnections()
	waitFor(t, "reconnect", func() bool { return server.ConnectCount() >= 2 && s.Connected() })
}

func TestListRefreshRebindsTypingBuffer(t *testing.T) {
	f := &pageFetcher{pages: map[int][]*model.Item{1: {tweet("a", 1)}}, total: 1}
	s, _ := startedSession(t, f)
	topic := subscription.ConversationTopic("c1")

	var mu sync.Mutex
	var authors []string
	l, err := s.OpenList(context.Background(), ListOptions{
		Query:  pagecache.Query{Kind: model.KindMessage},
		Topics: []string{topic},
		Typing: true,
		OnTyping: func(author string) {
			mu.Lock()
			authors = append(authors, author)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("OpenList: %v", err)
	}
	defer l.Close()
	if _, err := l.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}

	old := l.Cache()
	if err := l.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !old.Closed() || !l.Cache().Contains("a") {
		t.Fatalf("refresh must reload into a fresh cache")
	}

	s.route(envelope(topic, model.EventInsert, message("m1", "u2")))
	waitFor(t, "typing flush", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(authors) == 2
	})
	if !l.Cache().Contains("m1") {
		t.Fatalf("buffered message flushed into a stale cache")
	}

	l.Close()
	if err := l.Refresh(context.Background()); !errors.Is(err, model.ErrStaleCompletion) {
		t.Fatalf("Refresh after Close = %v, want ErrStaleCompletion", err)
	}
}
