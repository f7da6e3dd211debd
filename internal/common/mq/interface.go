// Package mq carries grading events between services. The only transport is
// Kafka; callers depend on Producer or Consumer so tests can swap in fakes.
package mq

import (
	"context"
	"time"
)

type MessageQueue interface {
	Producer
	Consumer

	Ping(ctx context.Context) error
	Close() error
}

type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
}

// Consumer delivers messages to registered handlers between Start and Stop.
type Consumer interface {
	Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error
	Start() error
	Stop() error
}

// Message is the envelope shared by producers and consumers.
type Message struct {
	ID string `json:"id"`
	// Key picks the partition; messages with equal keys stay ordered.
	// An empty key falls back to ID.
	Key       string            `json:"key"`
	Body      []byte            `json:"body"`
	Headers   map[string]string `json:"headers"`
	Timestamp time.Time         `json:"timestamp"`
}

// HandlerFunc handles one message. Returning an error schedules a retry until
// SubscribeOptions.MaxRetries is spent, after which the message is skipped.
type HandlerFunc func(ctx context.Context, message *Message) error

type SubscribeOptions struct {
	ConsumerGroup string
	MaxRetries    int
	RetryDelay    time.Duration
}

// SetDefaults fills unset retry settings. A negative MaxRetries disables
// retries.
func (o *SubscribeOptions) SetDefaults() {
	switch {
	case o.MaxRetries == 0:
		o.MaxRetries = 3
	case o.MaxRetries < 0:
		o.MaxRetries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
}

func NewMessage(body []byte) *Message {
	return &Message{Body: body, Headers: map[string]string{}, Timestamp: time.Now()}
}

func (m *Message) SetHeader(name, value string) {
	if m.Headers == nil {
		m.Headers = map[string]string{}
	}
	m.Headers[name] = value
}

// GetHeader reports the header value and whether it was set.
func (m *Message) GetHeader(name string) (string, bool) {
	v, ok := m.Headers[name]
	return v, ok
}
