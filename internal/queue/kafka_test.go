package queue

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKafkaQueue_NoBrokers(t *testing.T) {
	_, err := newKafkaQueue(KafkaConfig{}, nil)
	assert.Error(t, err)
}

func TestNewKafkaQueue_Defaults(t *testing.T) {
	q, err := newKafkaQueue(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	require.NoError(t, err)
	defer func() { _ = q.Close() }()

	assert.Equal(t, "forecaster-workers", q.config.GroupID)
	assert.Equal(t, 10*time.Millisecond, q.config.BatchTimeout)
	assert.Equal(t, int(kafka.RequireAll), q.config.RequiredAcks)
	assert.Equal(t, 3, q.config.MaxRetries)
	assert.Equal(t, 3, q.config.CommitRetries)
}

func TestKafkaQueue_WriterIsReused(t *testing.T) {
	q, err := newKafkaQueue(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	require.NoError(t, err)
	defer func() { _ = q.Close() }()

	w1 := q.writer("forecast.jobs")
	w2 := q.writer("forecast.jobs")
	assert.Same(t, w1, w2)
	assert.Equal(t, "forecast.jobs", w1.Topic)
	assert.Equal(t, kafka.WriterStats{}.Writes, q.Stats("other").Writes)
}

func TestKafkaQueue_UnsubscribeUnknown(t *testing.T) {
	q, err := newKafkaQueue(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	require.NoError(t, err)
	defer func() { _ = q.Close() }()

	assert.Error(t, q.Unsubscribe("forecast.jobs"))
}
