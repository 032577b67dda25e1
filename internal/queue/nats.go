package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/soltixdb/forecaster/internal/logging"
)

// NATSConfig configures the JetStream transport.
type NATSConfig struct {
	URL      string
	Username string
	Password string
	// AckWait is how long JetStream waits for an ack before redelivering.
	// Long runs keep the message alive with progress acks.
	AckWait time.Duration
}

// NATSQueue implements Queue using a JetStream work-queue stream per subject
// and a durable queue-group consumer shared by all workers.
type NATSQueue struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	config        NATSConfig
	logger        *logging.Logger
	streams       map[string]bool
	subscriptions map[string][]*nats.Subscription
	mu            sync.Mutex
}

// newNATSQueue creates a new NATS queue instance with JetStream enabled
func newNATSQueue(cfg NATSConfig, logger *logging.Logger) (*NATSQueue, error) {
	opts := []nats.Option{
		nats.Name("forecaster"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	q, err := newNATSQueueWithConn(conn, cfg, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

// newNATSQueueWithConn wraps an existing connection.
func newNATSQueueWithConn(conn *nats.Conn, cfg NATSConfig, logger *logging.Logger) (*NATSQueue, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &NATSQueue{
		conn:          conn,
		js:            js,
		config:        cfg,
		logger:        logger,
		streams:       make(map[string]bool),
		subscriptions: make(map[string][]*nats.Subscription),
	}, nil
}

// Publish publishes a message and waits for the JetStream ack.
func (q *NATSQueue) Publish(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	err := q.ensureStream(subject)
	q.mu.Unlock()
	if err != nil {
		return err
	}

	if _, err := q.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}
	return nil
}

// Subscribe binds concurrency queue subscriptions to one durable consumer,
// so each message goes to exactly one of them.
func (q *NATSQueue) Subscribe(ctx context.Context, subject string, concurrency int, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.subscriptions[subject]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, subject)
	}
	if err := q.ensureStream(subject); err != nil {
		return err
	}

	durable := "workers-" + sanitizeName(subject)
	var subs []*nats.Subscription
	for i := 0; i < normalizeConcurrency(concurrency); i++ {
		sub, err := q.js.QueueSubscribe(subject, durable, func(msg *nats.Msg) {
			q.handle(ctx, msg, handler)
		},
			nats.Durable(durable),
			nats.ManualAck(),
			nats.AckWait(q.config.AckWait),
			nats.MaxDeliver(MaxDeliver),
			nats.MaxAckPending(normalizeConcurrency(concurrency)),
			nats.DeliverAll(),
		)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}

	q.subscriptions[subject] = subs
	q.logger.Info("Subscribed to subject", "subject", subject, "durable", durable, "concurrency", len(subs))
	return nil
}

// handle runs handler while signalling progress so that a long forecast
// does not exceed AckWait.
func (q *NATSQueue) handle(ctx context.Context, msg *nats.Msg, handler MessageHandler) {
	if ctx.Err() != nil {
		_ = msg.Nak()
		return
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(q.config.AckWait / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = msg.InProgress()
			}
		}
	}()

	err := handler(ctx, msg.Data)
	close(done)

	if err != nil {
		q.logger.Warn("Failed to handle message", "subject", msg.Subject, "error", err)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

// ensureStream creates a work-queue stream for subject unless one already
// captures it. Callers hold q.mu.
func (q *NATSQueue) ensureStream(subject string) error {
	if q.streams[subject] {
		return nil
	}
	if name, err := q.js.StreamNameBySubject(subject); err == nil && name != "" {
		q.streams[subject] = true
		return nil
	}

	_, err := q.js.AddStream(&nats.StreamConfig{
		Name:      streamName(subject),
		Subjects:  []string{subject},
		Retention: nats.WorkQueuePolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
		Replicas:  1,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create stream for subject %s: %w", subject, err)
	}
	q.streams[subject] = true
	return nil
}

// Unsubscribe unsubscribes from a subject
func (q *NATSQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	subs, exists := q.subscriptions[subject]
	if !exists {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}
	delete(q.subscriptions, subject)

	var firstErr error
	for _, sub := range subs {
		if err := sub.Drain(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to unsubscribe from subject %s: %w", subject, err)
		}
	}
	return firstErr
}

// Close closes the NATS connection and all subscriptions
func (q *NATSQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for subject, subs := range q.subscriptions {
		for _, sub := range subs {
			if err := sub.Unsubscribe(); err != nil {
				q.logger.Warn("Failed to unsubscribe", "subject", subject, "error", err)
			}
		}
		delete(q.subscriptions, subject)
	}

	q.conn.Close()
	return nil
}

// streamName maps a subject to a valid stream name.
func streamName(subject string) string {
	return "FORECASTER_" + strings.ToUpper(sanitizeName(subject))
}

// sanitizeName replaces characters not allowed in stream and consumer names.
func sanitizeName(subject string) string {
	result := make([]byte, 0, len(subject))
	for i := 0; i < len(subject); i++ {
		c := subject[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			result = append(result, c)
		} else {
			result = append(result, '_')
		}
	}
	return string(result)
}
