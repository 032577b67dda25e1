package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/soltixdb/forecaster/internal/logging"
)

// KafkaConfig represents Apache Kafka configuration
type KafkaConfig struct {
	Brokers       []string      // Kafka broker addresses
	GroupID       string        // Consumer group ID
	BatchTimeout  time.Duration // Batch timeout for producer (default: 10ms)
	RequiredAcks  int           // Required acks: 0=none, 1=leader, -1=all (default: -1)
	MaxRetries    int           // Max retries on failure (default: 3)
	RetryBackoff  time.Duration // Backoff between retries (default: 100ms)
	CommitRetries int           // Consumer commit retries (default: 3)
}

// KafkaQueue implements Queue using Kafka topics and a consumer group.
// An offset is committed once the handler succeeded or MaxDeliver attempts
// were made.
type KafkaQueue struct {
	config        KafkaConfig
	logger        *logging.Logger
	writers       map[string]*kafka.Writer
	subscriptions map[string]*kafkaSubscription
	mu            sync.Mutex
}

type kafkaSubscription struct {
	cancel  context.CancelFunc
	readers []*kafka.Reader
	wg      sync.WaitGroup
}

// newKafkaQueue creates a new Kafka queue instance
func newKafkaQueue(cfg KafkaConfig, logger *logging.Logger) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	if cfg.GroupID == "" {
		cfg.GroupID = "forecaster-workers"
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.RequiredAcks == 0 {
		cfg.RequiredAcks = int(kafka.RequireAll)
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.CommitRetries == 0 {
		cfg.CommitRetries = 3
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &KafkaQueue{
		config:        cfg,
		logger:        logger,
		writers:       make(map[string]*kafka.Writer),
		subscriptions: make(map[string]*kafkaSubscription),
	}, nil
}

// writer returns the writer of topic, creating it on first use
func (q *KafkaQueue) writer(topic string) *kafka.Writer {
	q.mu.Lock()
	defer q.mu.Unlock()

	if w, exists := q.writers[topic]; exists {
		return w
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(q.config.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           q.config.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(q.config.RequiredAcks),
		MaxAttempts:            q.config.MaxRetries,
		AllowAutoTopicCreation: true,
	}
	q.writers[topic] = w
	return w
}

// Publish publishes a message to a Kafka topic
func (q *KafkaQueue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := kafka.Message{
		Value: data,
		Time:  time.Now(),
	}
	if err := q.writer(subject).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to kafka topic %s: %w", subject, err)
	}
	return nil
}

// Subscribe starts concurrency group members on the topic.
func (q *KafkaQueue) Subscribe(ctx context.Context, subject string, concurrency int, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.subscriptions[subject]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, subject)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{cancel: cancel}
	for i := 0; i < normalizeConcurrency(concurrency); i++ {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  q.config.Brokers,
			GroupID:  q.config.GroupID,
			Topic:    subject,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  time.Second,
		})
		sub.readers = append(sub.readers, reader)
		sub.wg.Add(1)
		go func() {
			defer sub.wg.Done()
			q.consume(subCtx, reader, handler)
		}()
	}

	q.subscriptions[subject] = sub
	return nil
}

// consume fetches messages and retries the handler in place, since a
// group member cannot skip ahead of an uncommitted offset.
func (q *KafkaQueue) consume(ctx context.Context, reader *kafka.Reader, handler MessageHandler) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.Warn("Failed to fetch message", "topic", reader.Config().Topic, "error", err)
			continue
		}

		for attempt := 1; attempt <= MaxDeliver; attempt++ {
			err = handler(ctx, msg.Value)
			if err == nil || ctx.Err() != nil {
				break
			}
			q.logger.Warn("Failed to handle message",
				"topic", msg.Topic, "offset", msg.Offset, "attempt", attempt, "error", err)
			time.Sleep(q.config.RetryBackoff)
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			q.logger.Error("Dropping message after failed deliveries",
				"topic", msg.Topic, "offset", msg.Offset, "error", err)
		}

		for i := 0; i < q.config.CommitRetries; i++ {
			if err := reader.CommitMessages(ctx, msg); err == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			time.Sleep(q.config.RetryBackoff)
		}
	}
}

// Unsubscribe stops the group members of a topic
func (q *KafkaQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	sub, exists := q.subscriptions[subject]
	if !exists {
		q.mu.Unlock()
		return fmt.Errorf("not subscribed to topic: %s", subject)
	}
	delete(q.subscriptions, subject)
	q.mu.Unlock()

	return sub.stop()
}

func (s *kafkaSubscription) stop() error {
	s.cancel()
	s.wg.Wait()
	var lastErr error
	for _, r := range s.readers {
		if err := r.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close closes all readers and writers
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	subs := q.subscriptions
	q.subscriptions = make(map[string]*kafkaSubscription)
	writers := q.writers
	q.writers = make(map[string]*kafka.Writer)
	q.mu.Unlock()

	var lastErr error
	for _, sub := range subs {
		if err := sub.stop(); err != nil {
			lastErr = err
		}
	}
	for _, w := range writers {
		if err := w.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Stats returns writer stats for a topic
func (q *KafkaQueue) Stats(topic string) kafka.WriterStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	if w, exists := q.writers[topic]; exists {
		return w.Stats()
	}
	return kafka.WriterStats{}
}
