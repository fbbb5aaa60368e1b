package channel

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by Send while the transport is down. Topics
// stay tracked by the subscription manager and are re-joined on reconnect.
var ErrNotConnected = errors.New("channel not connected")

// Transport is a session's shared push channel connection
type Transport interface {
	// Connect opens the connection. Envelopes flow until Close.
	Connect(ctx context.Context) error
	// Send writes a join or leave frame
	Send(ctx context.Context, frame Frame) error
	// Envelopes delivers inbound envelopes in arrival order. It is closed
	// after Close.
	Envelopes() <-chan Envelope
	// OnReconnect registers fn to run after the connection is re-established
	OnReconnect(fn func())
	Connected() bool
	Close() error
}

// Kind names a transport implementation
type Kind string

const (
	KindWebSocket Kind = "websocket"
	KindRedis     Kind = "redis"
	KindKafka     Kind = "kafka"
)

const envelopeBuffer = 256

// reconnectHooks is embedded by transports to hold OnReconnect callbacks
type reconnectHooks struct {
	hooks []func()
}

func (r *reconnectHooks) add(fn func()) {
	r.hooks = append(r.hooks, fn)
}

func (r *reconnectHooks) snapshot() []func() {
	return append([]func(){}, r.hooks...)
}
