package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/monitoring"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	reg := prometheus.NewRegistry()
	mc := monitoring.NewMetricsCollectorWithRegistry("listsync", "test", "abc", reg, reg)
	return New(mc)
}

func TestMetricsRecord(t *testing.T) {
	m := newTestMetrics(t)

	m.PageMerged("tweet")
	m.PageMerged("tweet")
	m.EventApplied("comment", "duplicate")
	m.MutationSettled("like", "rolled_back")
	m.FrameSent("join")
	m.Reconnected()
	m.SetJoinedTopics(3)
	m.SetOnlineUsers(2)
	m.SetUnread("messages", 4)

	if got := testutil.ToFloat64(m.PagesMerged.WithLabelValues("tweet")); got != 2 {
		t.Fatalf("pages merged = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.EventsApplied.WithLabelValues("comment", "duplicate")); got != 1 {
		t.Fatalf("events applied = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Reconnects); got != 1 {
		t.Fatalf("reconnects = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.JoinedTopics); got != 3 {
		t.Fatalf("joined topics = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.UnreadCounts.WithLabelValues("messages")); got != 4 {
		t.Fatalf("unread = %v, want 4", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.PageMerged("tweet")
	m.FetchFailed("tweet")
	m.EventApplied("tweet", "inserted")
	m.MutationSettled("like", "confirmed")
	m.FrameSent("leave")
	m.EnvelopeReceived("ok")
	m.Reconnected()
	m.SetJoinedTopics(1)
	m.SetOnlineUsers(1)
	m.SetUnread("notifications", 1)
}
