package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
)

// Message represents a consumed Kafka record
type Message struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// Handler processes one message. Errors are logged; live consumers never
// block a partition on a bad record.
type Handler func(ctx context.Context, msg Message) error

// Config configures a tailing consumer.
type Config struct {
	Brokers  []string
	ClientID string
	Topics   []string
	// FromStart replays retained records instead of starting at the live end.
	FromStart bool
}

// Consumer tails topics without a consumer group, so every session sees every
// record, and routes records to per-topic handlers.
type Consumer struct {
	client   *kgo.Client
	logger   logging.Logger
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewConsumer creates a consumer. The client connects lazily on first poll.
func NewConsumer(cfg Config, logger logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	offset := kgo.NewOffset().AtEnd()
	if cfg.FromStart {
		offset = kgo.NewOffset().AtStart()
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumeResetOffset(offset),
	}
	if len(cfg.Topics) > 0 {
		opts = append(opts, kgo.ConsumeTopics(cfg.Topics...))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &Consumer{
		client:   client,
		logger:   logging.OrDiscard(logger),
		handlers: make(map[string]Handler),
	}, nil
}

// AddHandler registers a handler for a topic and starts consuming it
func (c *Consumer) AddHandler(topic string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	c.client.AddConsumeTopics(topic)
}

// Start polls until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if errs := fetches.Errors(); len(errs) > 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Errorf("errors while polling: %v", errs)
			continue
		}

		records := make([]*kgo.Record, 0, fetches.NumRecords())
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
		c.processRecords(ctx, records)
	}
}

func (c *Consumer) processRecords(ctx context.Context, records []*kgo.Record) int {
	handled := 0
	for _, record := range records {
		c.mu.RLock()
		handler, exists := c.handlers[record.Topic]
		c.mu.RUnlock()
		if !exists {
			c.logger.WithField("topic", record.Topic).Warn("No handler registered for topic")
			continue
		}

		if err := handler(ctx, toMessage(record)); err != nil {
			c.logger.WithError(err).WithFields(logging.Fields{
				"topic":     record.Topic,
				"partition": record.Partition,
				"offset":    record.Offset,
			}).Error("Failed to handle message")
			continue
		}
		handled++
	}
	return handled
}

func toMessage(record *kgo.Record) Message {
	hdrs := make(map[string]string, len(record.Headers))
	for _, h := range record.Headers {
		hdrs[h.Key] = string(h.Value)
	}
	return Message{
		Key:       record.Key,
		Value:     record.Value,
		Headers:   hdrs,
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
		Timestamp: record.Timestamp,
	}
}

// Ping checks broker connectivity
func (c *Consumer) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka ping failed: %w", err)
	}
	return nil
}

// Close closes the underlying client
func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}
