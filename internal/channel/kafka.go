package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/kafka"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
)

// KafkaConfig configures the Kafka transport
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
	Logger   logging.Logger
}

// Kafka tails one Kafka topic whose record keys are channel topics. Join and
// leave only change which keys are delivered; nothing is written back.
type Kafka struct {
	topic     string
	consumer  *kafka.Consumer
	logger    logging.Logger
	envelopes chan Envelope

	mu        sync.Mutex
	rooms     map[string]struct{}
	running   bool
	closed    bool
	hooks     reconnectHooks
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewKafka creates a Kafka transport
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka events topic is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "listsync"
	}
	consumer, err := kafka.NewConsumer(kafka.Config{
		Brokers:  cfg.Brokers,
		ClientID: cfg.ClientID,
	}, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return newKafka(cfg.Topic, consumer, cfg.Logger), nil
}

func newKafka(topic string, consumer *kafka.Consumer, logger logging.Logger) *Kafka {
	return &Kafka{
		topic:     topic,
		consumer:  consumer,
		logger:    logging.OrDiscard(logger),
		envelopes: make(chan Envelope, envelopeBuffer),
		rooms:     make(map[string]struct{}),
	}
}

// Connect checks the brokers and starts tailing the topic
func (k *Kafka) Connect(ctx context.Context) error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return fmt.Errorf("kafka transport closed")
	}
	if k.running {
		k.mu.Unlock()
		return fmt.Errorf("client is already connected")
	}
	k.mu.Unlock()

	if err := k.consumer.Ping(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	k.mu.Lock()
	k.running = true
	k.cancel = cancel
	k.done = make(chan struct{})
	done := k.done
	k.mu.Unlock()

	k.consumer.AddHandler(k.topic, k.handle)
	go func() {
		defer close(done)
		if err := k.consumer.Start(runCtx); err != nil && runCtx.Err() == nil {
			k.logger.WithError(err).Error("Kafka consumer stopped")
		}
	}()
	return nil
}

func (k *Kafka) handle(ctx context.Context, msg kafka.Message) error {
	room := string(msg.Key)
	if !k.joined(room) {
		return nil
	}
	env, err := ParseEnvelopeOn(msg.Value, room)
	if err != nil {
		return err
	}
	select {
	case k.envelopes <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *Kafka) joined(room string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.rooms[room]
	return ok
}

// Send updates the room filter
func (k *Kafka) Send(_ context.Context, frame Frame) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrNotConnected
	}
	switch frame.Op {
	case OpJoin:
		for _, t := range frame.Topics {
			k.rooms[t] = struct{}{}
		}
	case OpLeave:
		for _, t := range frame.Topics {
			delete(k.rooms, t)
		}
	default:
		return fmt.Errorf("unknown frame op %q", frame.Op)
	}
	return nil
}

// Envelopes returns inbound envelopes
func (k *Kafka) Envelopes() <-chan Envelope {
	return k.envelopes
}

// OnReconnect registers fn. franz-go reconnects internally and the room filter
// is local, so there is nothing to replay.
func (k *Kafka) OnReconnect(fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.hooks.add(fn)
}

// Connected reports whether the consumer is running
func (k *Kafka) Connected() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.running && !k.closed
}

// Close stops the consumer and closes Envelopes
func (k *Kafka) Close() error {
	var err error
	k.closeOnce.Do(func() {
		k.mu.Lock()
		k.closed = true
		cancel, done := k.cancel, k.done
		k.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}
		err = k.consumer.Close()
		close(k.envelopes)
	})
	return err
}
