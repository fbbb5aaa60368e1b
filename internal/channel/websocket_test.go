package channel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/clients"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/testutil"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestWebSocket(t *testing.T) (*WebSocket, *testutil.MockChannelServer) {
	t.Helper()
	helper := testutil.NewJWTTestHelper()
	server := testutil.NewMockChannelServerWithAuth(helper)
	t.Cleanup(server.Close)

	token, err := helper.GenerateValidJWT("u1", true)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	ws := NewWebSocket(WebSocketConfig{
		URL:       server.URL(),
		Token:     token,
		Reconnect: clients.ReconnectConfig{BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond},
	})
	t.Cleanup(func() { _ = ws.Close() })
	return ws, server
}

func TestWebSocketSendsFramesAndReceivesEnvelopes(t *testing.T) {
	ws, server := newTestWebSocket(t)
	ctx := context.Background()
	if err := ws.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "server connection", func() bool { return server.Connections() == 1 })

	if err := ws.Send(ctx, Frame{Op: OpJoin, Topics: []string{"presence"}}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case frame := <-server.Frames():
		if frame["op"] != "join" {
			t.Fatalf("frame = %v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received the frame")
	}

	server.Push(map[string]interface{}{"topic": "presence", "kind": "insert", "payload": map[string]interface{}{"user_id": "u2"}})
	server.Push(map[string]interface{}{"kind": "insert"})
	server.Push(map[string]interface{}{"topic": "presence", "kind": "remove", "id": "u2"})

	var got []Envelope
	for len(got) < 2 {
		select {
		case env := <-ws.Envelopes():
			got = append(got, env)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d envelopes, want 2", len(got))
		}
	}
	if got[0].Kind != "insert" || got[1].Kind != "remove" {
		t.Fatalf("envelopes out of order or malformed one delivered: %+v", got)
	}
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	helper := testutil.NewJWTTestHelper()
	server := testutil.NewMockChannelServerWithAuth(helper)
	defer server.Close()

	token, err := helper.GenerateJWTWithWrongSecret("u1")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	ws := NewWebSocket(WebSocketConfig{URL: server.URL(), Token: token})
	defer ws.Close()
	if err := ws.Connect(context.Background()); err == nil {
		t.Fatalf("expected handshake failure")
	}
	if err := ws.Send(context.Background(), Frame{Op: OpJoin}); err != ErrNotConnected {
		t.Fatalf("Send while down = %v, want ErrNotConnected", err)
	}
}

func TestWebSocketReconnects(t *testing.T) {
	ws, server := newTestWebSocket(t)
	var reconnects atomic.Int32
	ws.OnReconnect(func() { reconnects.Add(1) })

	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "first connection", func() bool { return server.ConnectCount() == 1 })

	server.DropConnections()
	waitFor(t, "reconnect hook", func() bool { return reconnects.Load() == 1 })
	if server.ConnectCount() != 2 || !ws.Connected() {
		t.Fatalf("connects = %d, connected = %v", server.ConnectCount(), ws.Connected())
	}
}

func TestWebSocketCloseClosesEnvelopes(t *testing.T) {
	ws, _ := newTestWebSocket(t)
	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case _, ok := <-ws.Envelopes():
		if ok {
			t.Fatalf("unexpected envelope after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("envelopes not closed")
	}
	if err := ws.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
