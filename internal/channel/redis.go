package channel

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/redis"
)

// Redis carries the push channel over Redis pub/sub: each topic is a pub/sub
// channel, join subscribes and leave unsubscribes. go-redis restores the
// subscriptions itself after a reconnect, so OnReconnect hooks never fire.
type Redis struct {
	client    goredis.UniversalClient
	logger    logging.Logger
	envelopes chan Envelope

	mu     sync.Mutex
	sub    *redis.RoomSubscriber
	closed bool
	hooks  reconnectHooks
	done   chan struct{}
	stop   chan struct{}
}

// NewRedis creates a pub/sub transport on an existing client
func NewRedis(client goredis.UniversalClient, logger logging.Logger) *Redis {
	return &Redis{
		client:    client,
		logger:    logging.OrDiscard(logger),
		envelopes: make(chan Envelope, envelopeBuffer),
		stop:      make(chan struct{}),
	}
}

// Connect opens the pub/sub connection
func (r *Redis) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("redis transport closed")
	}
	if r.sub != nil {
		return fmt.Errorf("client is already connected")
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	r.sub = redis.NewRoomSubscriber(ctx, r.client)
	r.done = make(chan struct{})
	go r.pump(r.sub.Messages(), r.done)
	return nil
}

func (r *Redis) pump(msgs <-chan *goredis.Message, done chan struct{}) {
	defer close(done)
	for msg := range msgs {
		env, err := ParseEnvelopeOn([]byte(msg.Payload), msg.Channel)
		if err != nil {
			r.logger.WithError(err).WithField("topic", msg.Channel).Warn("Dropping malformed envelope")
			continue
		}
		select {
		case r.envelopes <- env:
		case <-r.stop:
			return
		}
	}
}

// Send subscribes or unsubscribes the frame's topics
func (r *Redis) Send(ctx context.Context, frame Frame) error {
	r.mu.Lock()
	sub := r.sub
	r.mu.Unlock()
	if sub == nil {
		return ErrNotConnected
	}
	switch frame.Op {
	case OpJoin:
		return sub.Subscribe(ctx, frame.Topics...)
	case OpLeave:
		return sub.Unsubscribe(ctx, frame.Topics...)
	default:
		return fmt.Errorf("unknown frame op %q", frame.Op)
	}
}

// Envelopes returns inbound envelopes
func (r *Redis) Envelopes() <-chan Envelope {
	return r.envelopes
}

// OnReconnect registers fn; see the type comment
func (r *Redis) OnReconnect(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks.add(fn)
}

// Connected reports whether the subscriber is open
func (r *Redis) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub != nil && !r.closed
}

// Close closes the subscriber. The client itself is owned by the caller.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sub, done := r.sub, r.done
	r.mu.Unlock()

	close(r.stop)
	var err error
	if sub != nil {
		err = sub.Close()
		<-done
	}
	close(r.envelopes)
	return err
}
