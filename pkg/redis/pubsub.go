package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// Publish JSON-encodes msg onto a pub/sub channel.
func Publish[T any](ctx context.Context, client goredis.UniversalClient, channel string, msg T) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal pubsub payload: %w", err)
	}
	if err := client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// RoomSubscriber holds one pub/sub connection whose channel set changes over
// time. go-redis re-subscribes every channel after a reconnect.
type RoomSubscriber struct {
	mu     sync.Mutex
	ps     *goredis.PubSub
	closed bool
}

// NewRoomSubscriber opens a pub/sub connection with no channels yet.
func NewRoomSubscriber(ctx context.Context, client goredis.UniversalClient) *RoomSubscriber {
	return &RoomSubscriber{ps: client.Subscribe(ctx)}
}

// Subscribe adds rooms to the connection.
func (s *RoomSubscriber) Subscribe(ctx context.Context, rooms ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("subscriber closed")
	}
	if err := s.ps.Subscribe(ctx, rooms...); err != nil {
		return fmt.Errorf("subscribe to redis: %w", err)
	}
	return nil
}

// Unsubscribe removes rooms from the connection.
func (s *RoomSubscriber) Unsubscribe(ctx context.Context, rooms ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := s.ps.Unsubscribe(ctx, rooms...); err != nil {
		return fmt.Errorf("unsubscribe from redis: %w", err)
	}
	return nil
}

// Messages returns the delivery channel. It is closed by Close.
func (s *RoomSubscriber) Messages() <-chan *goredis.Message {
	return s.ps.Channel()
}

// Close releases the connection. Safe to call more than once.
func (s *RoomSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.ps.Close()
}
