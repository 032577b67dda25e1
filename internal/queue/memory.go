package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/soltixdb/forecaster/internal/logging"
)

type memoryMessage struct {
	data       []byte
	deliveries int
}

// MemoryQueue implements Queue with in-process channels. Messages are lost
// on restart; it serves tests and single-process deployments.
type MemoryQueue struct {
	channels      map[string]chan memoryMessage
	subscriptions map[string]*memorySubscription
	logger        *logging.Logger
	closed        bool
	mu            sync.RWMutex
}

type memorySubscription struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newMemoryQueue creates a new in-memory queue instance
func newMemoryQueue(logger *logging.Logger) *MemoryQueue {
	if logger == nil {
		logger = logging.Nop()
	}
	return &MemoryQueue{
		channels:      make(map[string]chan memoryMessage),
		subscriptions: make(map[string]*memorySubscription),
		logger:        logger,
	}
}

// NewMemoryQueue creates an in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return newMemoryQueue(nil)
}

// channel returns the channel of subject, creating it on first use.
// Callers hold q.mu.
func (q *MemoryQueue) channel(subject string) chan memoryMessage {
	if ch, exists := q.channels[subject]; exists {
		return ch
	}
	ch := make(chan memoryMessage, 10000)
	q.channels[subject] = ch
	return ch
}

// Publish publishes a message to an in-memory channel
func (q *MemoryQueue) Publish(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue closed")
	}
	return q.enqueue(ctx, q.channel(subject), subject, memoryMessage{data: append([]byte(nil), data...)})
}

func (q *MemoryQueue) enqueue(ctx context.Context, ch chan memoryMessage, subject string, msg memoryMessage) error {
	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("channel full for subject: %s", subject)
	}
}

// Subscribe consumes subject with concurrency goroutines.
func (q *MemoryQueue) Subscribe(ctx context.Context, subject string, concurrency int, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("queue closed")
	}
	if _, exists := q.subscriptions[subject]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, subject)
	}

	ch := q.channel(subject)
	subCtx, cancel := context.WithCancel(ctx)
	sub := &memorySubscription{cancel: cancel}
	q.subscriptions[subject] = sub

	for i := 0; i < normalizeConcurrency(concurrency); i++ {
		sub.wg.Add(1)
		go func() {
			defer sub.wg.Done()
			q.consume(subCtx, subject, ch, handler)
		}()
	}
	return nil
}

func (q *MemoryQueue) consume(ctx context.Context, subject string, ch chan memoryMessage, handler MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			msg.deliveries++
			err := handler(ctx, msg.data)
			if err == nil {
				continue
			}
			if msg.deliveries >= MaxDeliver || ctx.Err() != nil {
				q.logger.Error("Dropping message after failed deliveries",
					"subject", subject, "deliveries", msg.deliveries, "error", err)
				continue
			}
			q.logger.Warn("Handler failed, requeueing message",
				"subject", subject, "deliveries", msg.deliveries, "error", err)
			q.requeue(ctx, subject, msg)
		}
	}
}

func (q *MemoryQueue) requeue(ctx context.Context, subject string, msg memoryMessage) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	if err := q.enqueue(ctx, q.channels[subject], subject, msg); err != nil {
		q.logger.Error("Failed to requeue message", "subject", subject, "error", err)
	}
}

// Unsubscribe stops the consumers of subject and waits for in-flight
// handlers to return.
func (q *MemoryQueue) Unsubscribe(subject string) error {
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

// Close stops all subscriptions and closes all channels
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	subs := q.subscriptions
	q.subscriptions = make(map[string]*memorySubscription)
	q.closed = true
	q.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		sub.wg.Wait()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for subject, ch := range q.channels {
		close(ch)
		delete(q.channels, subject)
	}
	return nil
}

// PendingCount returns the number of queued messages for a subject.
func (q *MemoryQueue) PendingCount(subject string) int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if ch, exists := q.channels[subject]; exists {
		return len(ch)
	}
	return 0
}
