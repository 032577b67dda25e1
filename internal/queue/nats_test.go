package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestNATS creates an embedded NATS server for testing
func setupTestNATS(t *testing.T) string {
	t.Helper()
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1, // Random port
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	ns, err := server.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func newTestNATSQueue(t *testing.T) *NATSQueue {
	q, err := newNATSQueue(NATSConfig{URL: setupTestNATS(t), AckWait: 2 * time.Second}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestNewNATSQueue_InvalidURL(t *testing.T) {
	q, err := newNATSQueue(NATSConfig{URL: "nats://127.0.0.1:1"}, nil)
	if err == nil {
		_ = q.Close()
		t.Fatal("expected connection error")
	}
}

func TestNATSQueue_PublishBeforeSubscribe(t *testing.T) {
	q := newTestNATSQueue(t)

	require.NoError(t, q.Publish(context.Background(), "forecast.jobs", []byte("job-1")))

	received := make(chan string, 1)
	require.NoError(t, q.Subscribe(context.Background(), "forecast.jobs", 1, func(_ context.Context, data []byte) error {
		received <- string(data)
		return nil
	}))

	select {
	case got := <-received:
		assert.Equal(t, "job-1", got)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestNATSQueue_EachMessageOnce(t *testing.T) {
	q := newTestNATSQueue(t)

	var count atomic.Int32
	require.NoError(t, q.Subscribe(context.Background(), "forecast.jobs", 3, func(context.Context, []byte) error {
		count.Add(1)
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Publish(context.Background(), "forecast.jobs", []byte("x")))
	}

	require.Eventually(t, func() bool { return count.Load() == 10 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(10), count.Load())
}

func TestNATSQueue_NakRedelivers(t *testing.T) {
	q := newTestNATSQueue(t)

	var calls atomic.Int32
	require.NoError(t, q.Subscribe(context.Background(), "forecast.jobs", 1, func(context.Context, []byte) error {
		if calls.Add(1) == 1 {
			return assert.AnError
		}
		return nil
	}))
	require.NoError(t, q.Publish(context.Background(), "forecast.jobs", []byte("x")))

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, 20*time.Millisecond)
}

func TestNATSQueue_DoubleSubscribe(t *testing.T) {
	q := newTestNATSQueue(t)

	handler := func(context.Context, []byte) error { return nil }
	require.NoError(t, q.Subscribe(context.Background(), "forecast.jobs", 1, handler))
	err := q.Subscribe(context.Background(), "forecast.jobs", 1, handler)
	assert.ErrorIs(t, err, ErrAlreadySubscribed)

	require.NoError(t, q.Unsubscribe("forecast.jobs"))
	assert.Error(t, q.Unsubscribe("forecast.jobs"))
}

func TestStreamName(t *testing.T) {
	assert.Equal(t, "FORECASTER_FORECAST_JOBS", streamName("forecast.jobs"))
	assert.Equal(t, "a_b-c_", sanitizeName("a.b-c*"))
}
