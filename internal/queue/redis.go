package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/soltixdb/forecaster/internal/logging"
)

// RedisConfig represents Redis Streams configuration
type RedisConfig struct {
	URL      string // Redis URL (e.g., redis://localhost:6379)
	Password string // Optional password
	DB       int    // Database number (default: 0)
	Stream   string // Stream prefix (default: "forecaster")
	Group    string // Consumer group name (default: "forecaster-workers")
	Consumer string // Consumer name (default: hostname)
	// Block is how long one XREADGROUP call waits for new entries.
	Block time.Duration
}

// RedisQueue implements Queue using Redis Streams with a consumer group.
// A failed entry stays in the consumer's pending list and is read again
// until MaxDeliver is reached.
type RedisQueue struct {
	client        *redis.Client
	config        RedisConfig
	logger        *logging.Logger
	subscriptions map[string]*redisSubscription
	mu            sync.Mutex
}

type redisSubscription struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newRedisQueue creates a new Redis Streams queue instance
func newRedisQueue(cfg RedisConfig, logger *logging.Logger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{
			Addr:     cfg.URL,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if cfg.Stream == "" {
		cfg.Stream = "forecaster"
	}
	if cfg.Group == "" {
		cfg.Group = "forecaster-workers"
	}
	if cfg.Consumer == "" {
		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "consumer"
		}
		cfg.Consumer = hostname
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &RedisQueue{
		client:        client,
		config:        cfg,
		logger:        logger,
		subscriptions: make(map[string]*redisSubscription),
	}, nil
}

// streamName converts a subject to a Redis stream name
func (q *RedisQueue) streamName(subject string) string {
	return fmt.Sprintf("%s:%s", q.config.Stream, subject)
}

// Publish appends a message to the subject's stream
func (q *RedisQueue) Publish(ctx context.Context, subject string, data []byte) error {
	stream := q.streamName(subject)

	_, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: map[string]interface{}{
			"data": data,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to Redis stream %s: %w", stream, err)
	}
	return nil
}

// Subscribe starts concurrency group consumers named <consumer>-<i>.
func (q *RedisQueue) Subscribe(ctx context.Context, subject string, concurrency int, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.subscriptions[subject]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, subject)
	}

	stream := q.streamName(subject)
	err := q.client.XGroupCreateMkStream(ctx, stream, q.config.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{cancel: cancel}
	for i := 0; i < normalizeConcurrency(concurrency); i++ {
		consumer := fmt.Sprintf("%s-%d", q.config.Consumer, i)
		sub.wg.Add(1)
		go func() {
			defer sub.wg.Done()
			q.readStream(subCtx, stream, consumer, handler)
		}()
	}

	q.subscriptions[subject] = sub
	return nil
}

// readStream reads new entries, and after a failure re-reads the
// consumer's own pending entries first.
func (q *RedisQueue) readStream(ctx context.Context, stream, consumer string, handler MessageHandler) {
	deliveries := make(map[string]int)
	retryPending := true

	for ctx.Err() == nil {
		start := ">"
		block := q.config.Block
		if retryPending {
			start = "0"
			block = -1
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.config.Group,
			Consumer: consumer,
			Streams:  []string{stream, start},
			Count:    1,
			Block:    block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				retryPending = false
				continue
			}
			q.logger.Warn("Failed to read stream", "stream", stream, "error", err)
			time.Sleep(time.Second)
			continue
		}

		got := 0
		failed := false
		for _, s := range streams {
			for _, msg := range s.Messages {
				got++
				if !q.process(ctx, stream, msg, handler, deliveries) {
					failed = true
				}
			}
		}
		retryPending = failed || (retryPending && got > 0)
	}
}

// process hands one entry to handler and reports whether it was settled.
func (q *RedisQueue) process(ctx context.Context, stream string, msg redis.XMessage, handler MessageHandler, deliveries map[string]int) bool {
	data, ok := msg.Values["data"].(string)
	if !ok {
		q.ack(ctx, stream, msg.ID)
		return true
	}

	deliveries[msg.ID]++
	err := handler(ctx, []byte(data))
	if err == nil {
		delete(deliveries, msg.ID)
		q.ack(ctx, stream, msg.ID)
		return true
	}

	if deliveries[msg.ID] >= MaxDeliver {
		q.logger.Error("Dropping message after failed deliveries",
			"stream", stream, "id", msg.ID, "deliveries", deliveries[msg.ID], "error", err)
		delete(deliveries, msg.ID)
		q.ack(ctx, stream, msg.ID)
		return true
	}
	q.logger.Warn("Failed to handle message", "stream", stream, "id", msg.ID, "error", err)
	return false
}

func (q *RedisQueue) ack(ctx context.Context, stream, id string) {
	if err := q.client.XAck(ctx, stream, q.config.Group, id).Err(); err != nil {
		q.logger.Warn("Failed to ack message", "stream", stream, "id", id, "error", err)
	}
}

// Unsubscribe stops the consumers of subject
func (q *RedisQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	sub, exists := q.subscriptions[subject]
	if !exists {
		q.mu.Unlock()
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}
	delete(q.subscriptions, subject)
	q.mu.Unlock()

	sub.cancel()
	sub.wg.Wait()
	return nil
}

// Close stops all consumers and closes the Redis connection
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	subs := q.subscriptions
	q.subscriptions = make(map[string]*redisSubscription)
	q.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		sub.wg.Wait()
	}
	return q.client.Close()
}
