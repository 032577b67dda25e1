// Package queue carries forecast job messages from the API to workers.
// Every backend delivers at least once: a handler error leaves the message
// for redelivery, bounded by MaxDeliver.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MaxDeliver bounds how often one message is handed to a handler.
const MaxDeliver = 3

// ErrAlreadySubscribed is returned when subscribing twice to one subject.
var ErrAlreadySubscribed = errors.New("already subscribed")

// Publisher publishes messages to a queue
type Publisher interface {
	// Publish publishes a message to a subject/topic
	Publish(ctx context.Context, subject string, data []byte) error

	// Close closes the connection
	Close() error
}

// Subscriber subscribes to messages from a queue
type Subscriber interface {
	// Subscribe starts concurrency consumers on subject. ctx bounds the
	// subscription and is passed to the handler.
	Subscribe(ctx context.Context, subject string, concurrency int, handler MessageHandler) error

	// Unsubscribe unsubscribes from a subject/topic
	Unsubscribe(subject string) error

	// Close closes the connection
	Close() error
}

// MessageHandler handles incoming messages. Returning an error asks for
// redelivery.
type MessageHandler func(ctx context.Context, data []byte) error

// Queue combines Publisher and Subscriber interfaces
type Queue interface {
	Publisher
	Subscriber
}

// JobMessage announces a forecast job. The job's configuration lives in the
// job store; the message only identifies it.
type JobMessage struct {
	JobID       string    `json:"jobId"`
	UploadID    string    `json:"uploadId"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Encode serializes the message.
func (m JobMessage) Encode() ([]byte, error) {
	if m.JobID == "" {
		return nil, errors.New("job message without job id")
	}
	return json.Marshal(m)
}

// DecodeJobMessage parses a message produced by Encode.
func DecodeJobMessage(data []byte) (JobMessage, error) {
	var m JobMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return JobMessage{}, fmt.Errorf("invalid job message: %w", err)
	}
	if m.JobID == "" {
		return JobMessage{}, errors.New("job message without job id")
	}
	return m, nil
}

func normalizeConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
