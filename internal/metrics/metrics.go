package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/monitoring"
)

// Metrics holds all Prometheus metrics for the sync engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Lists
	PagesMerged   *prometheus.CounterVec
	FetchFailures *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	EventsApplied *prometheus.CounterVec

	// Mutations
	Mutations *prometheus.CounterVec

	// Channel
	ChannelFrames   *prometheus.CounterVec
	ChannelEnvelope *prometheus.CounterVec
	Reconnects      prometheus.Counter
	JoinedTopics    prometheus.Gauge

	// Session state
	OnlineUsers  prometheus.Gauge
	UnreadCounts *prometheus.GaugeVec
}

// New registers the engine metrics on the collector
func New(mc *monitoring.MetricsCollector) *Metrics {
	return &Metrics{
		PagesMerged:     mc.NewCounter("pages_merged_total", "Fetched pages merged into list caches", []string{"kind"}),
		FetchFailures:   mc.NewCounter("fetch_failures_total", "Page fetches that failed", []string{"kind"}),
		FetchDuration:   mc.NewHistogram("fetch_duration_seconds", "Page fetch latency", []string{"kind"}, nil),
		EventsApplied:   mc.NewCounter("events_applied_total", "Live events applied to list caches", []string{"kind", "result"}),
		Mutations:       mc.NewCounter("mutations_total", "Optimistic mutations by outcome", []string{"kind", "outcome"}),
		ChannelFrames:   mc.NewCounter("channel_frames_total", "Join/leave frames sent on the push channel", []string{"op"}),
		ChannelEnvelope: mc.NewCounter("channel_envelopes_total", "Envelopes received on the push channel", []string{"status"}),
		Reconnects:      mc.NewCounter("channel_reconnects_total", "Push channel reconnections", nil).WithLabelValues(),
		JoinedTopics:    mc.NewGauge("joined_topics", "Topics currently joined", nil).WithLabelValues(),
		OnlineUsers:     mc.NewGauge("online_users", "Users currently online", nil).WithLabelValues(),
		UnreadCounts:    mc.NewGauge("unread_count", "Unread counter per category", []string{"category"}),
	}
}

// PageMerged records a merged page
func (m *Metrics) PageMerged(kind string) {
	if m == nil {
		return
	}
	m.PagesMerged.WithLabelValues(kind).Inc()
}

// FetchFailed records a failed page fetch
func (m *Metrics) FetchFailed(kind string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(kind).Inc()
}

// FetchObserved records how long one page fetch took
func (m *Metrics) FetchObserved(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// EventApplied records the result of merging one live event
func (m *Metrics) EventApplied(kind, result string) {
	if m == nil {
		return
	}
	m.EventsApplied.WithLabelValues(kind, result).Inc()
}

// MutationSettled records an optimistic mutation outcome
func (m *Metrics) MutationSettled(kind, outcome string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(kind, outcome).Inc()
}

// FrameSent records a join or leave frame
func (m *Metrics) FrameSent(op string) {
	if m == nil {
		return
	}
	m.ChannelFrames.WithLabelValues(op).Inc()
}

// EnvelopeReceived records an inbound envelope, status is "ok" or "malformed"
func (m *Metrics) EnvelopeReceived(status string) {
	if m == nil {
		return
	}
	m.ChannelEnvelope.WithLabelValues(status).Inc()
}

// Reconnected records a channel reconnect
func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// SetJoinedTopics sets the joined topic gauge
func (m *Metrics) SetJoinedTopics(n int) {
	if m == nil {
		return
	}
	m.JoinedTopics.Set(float64(n))
}

// SetOnlineUsers sets the online user gauge
func (m *Metrics) SetOnlineUsers(n int) {
	if m == nil {
		return
	}
	m.OnlineUsers.Set(float64(n))
}

// SetUnread sets the unread gauge for a category
func (m *Metrics) SetUnread(category string, n int) {
	if m == nil {
		return
	}
	m.UnreadCounts.WithLabelValues(category).Set(float64(n))
}
