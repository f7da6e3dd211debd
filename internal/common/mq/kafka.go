package mq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"codearena/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Reserved Kafka headers. They map onto Message fields and never appear in
// Message.Headers.
const (
	headerID        = "codearena-message-id"
	headerTimestamp = "codearena-published-at"
)

var errQueueClosed = errors.New("message queue is closed")

// KafkaConfig configures the Kafka producer and the readers created per
// subscription.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	ClientID string   `yaml:"clientId"`

	// RequiredAcks is "one" (default), "all" or "none".
	RequiredAcks string        `yaml:"requiredAcks"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`

	// StartOffset applies to groups without a committed offset: "latest"
	// (default) or "earliest".
	StartOffset  string        `yaml:"startOffset"`
	MinBytes     int           `yaml:"minBytes"`
	MaxBytes     int           `yaml:"maxBytes"`
	MaxWait      time.Duration `yaml:"maxWait"`
	FetchBackoff time.Duration `yaml:"fetchBackoff"`

	DialTimeout time.Duration `yaml:"dialTimeout"`
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.ClientID == "" {
		c.ClientID = "codearena"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 20 * time.Millisecond
	}
	if c.MinBytes <= 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 500 * time.Millisecond
	}
	if c.FetchBackoff <= 0 {
		c.FetchBackoff = 200 * time.Millisecond
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}

func (c KafkaConfig) acks() (kafka.RequiredAcks, error) {
	switch strings.ToLower(c.RequiredAcks) {
	case "", "one":
		return kafka.RequireOne, nil
	case "all":
		return kafka.RequireAll, nil
	case "none":
		return kafka.RequireNone, nil
	}
	return 0, fmt.Errorf("unknown requiredAcks %q", c.RequiredAcks)
}

func (c KafkaConfig) startOffset() (int64, error) {
	switch strings.ToLower(c.StartOffset) {
	case "", "latest":
		return kafka.LastOffset, nil
	case "earliest":
		return kafka.FirstOffset, nil
	}
	return 0, fmt.Errorf("unknown startOffset %q", c.StartOffset)
}

// KafkaQueue publishes with a single hash-balanced writer, so messages with
// the same key land on the same partition, and consumes through one reader
// per subscription.
type KafkaQueue struct {
	cfg         KafkaConfig
	startOffset int64
	dialer      *kafka.Dialer
	writer      *kafka.Writer

	mu      sync.Mutex
	subs    []*subscription
	running bool
	closed  bool
}

type subscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	parent  context.Context

	reader *kafka.Reader
	cancel context.CancelFunc
	done   chan struct{}
}

// NewKafkaQueue validates cfg and prepares the writer. No connection is made
// until the first publish or Start.
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	cfg = cfg.withDefaults()
	acks, err := cfg.acks()
	if err != nil {
		return nil, err
	}
	offset, err := cfg.startOffset()
	if err != nil {
		return nil, err
	}

	dialer := &kafka.Dialer{ClientID: cfg.ClientID, Timeout: cfg.DialTimeout, DualStack: true}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: acks,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
			Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
		},
	}
	return &KafkaQueue{cfg: cfg, startOffset: offset, dialer: dialer, writer: writer}, nil
}

func (k *KafkaQueue) Publish(ctx context.Context, topic string, message *Message) error {
	switch {
	case topic == "":
		return errors.New("publish: topic is required")
	case message == nil:
		return errors.New("publish: message is nil")
	}
	if err := k.writer.WriteMessages(ctx, toKafkaMessage(topic, message)); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. Subscriptions added after Start
// begin consuming immediately.
func (k *KafkaQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" || handler == nil {
		return errors.New("subscribe: topic and handler are required")
	}
	sub := &subscription{topic: topic, handler: handler, parent: ctx}
	if opts != nil {
		sub.opts = *opts
	}
	sub.opts.SetDefaults()
	if sub.opts.ConsumerGroup == "" {
		sub.opts.ConsumerGroup = k.cfg.ClientID + "-" + topic
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errQueueClosed
	}
	k.subs = append(k.subs, sub)
	if k.running {
		k.launch(sub)
	}
	return nil
}

func (k *KafkaQueue) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errQueueClosed
	}
	if !k.running {
		for _, sub := range k.subs {
			k.launch(sub)
		}
		k.running = true
	}
	return nil
}

// Stop cancels every reader and waits for in-flight handlers to return.
func (k *KafkaQueue) Stop() error {
	k.mu.Lock()
	subs := append([]*subscription(nil), k.subs...)
	k.running = false
	k.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if sub.cancel == nil {
			continue
		}
		sub.cancel()
		<-sub.done
		if err := sub.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reader for %s: %w", sub.topic, err))
		}
		sub.cancel, sub.reader = nil, nil
	}
	return errors.Join(errs...)
}

func (k *KafkaQueue) Ping(ctx context.Context) error {
	var lastErr error
	for _, broker := range k.cfg.Brokers {
		conn, err := k.dialer.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn.Close()
		}
		lastErr = err
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func (k *KafkaQueue) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	k.mu.Unlock()

	return errors.Join(k.Stop(), k.writer.Close())
}

// launch must be called with k.mu held.
func (k *KafkaQueue) launch(sub *subscription) {
	parent := sub.parent
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	sub.cancel = cancel
	sub.done = make(chan struct{})
	sub.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.cfg.Brokers,
		Topic:       sub.topic,
		GroupID:     sub.opts.ConsumerGroup,
		Dialer:      k.dialer,
		MinBytes:    k.cfg.MinBytes,
		MaxBytes:    k.cfg.MaxBytes,
		MaxWait:     k.cfg.MaxWait,
		StartOffset: k.startOffset,
	})
	go sub.consume(ctx, k.cfg.FetchBackoff)
}

func (s *subscription) consume(ctx context.Context, backoff time.Duration) {
	defer close(s.done)
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn(ctx, "kafka fetch failed",
				zap.String("topic", s.topic),
				zap.String("group", s.opts.ConsumerGroup),
				zap.Error(err),
			)
			if !sleepCtx(ctx, backoff) {
				return
			}
			continue
		}
		if !s.deliver(ctx, msg) {
			return
		}
	}
}

// deliver runs the handler with retries, then commits the offset whether the
// handler eventually succeeded or not. It returns false once ctx is done.
func (s *subscription) deliver(ctx context.Context, msg kafka.Message) bool {
	m := fromKafkaMessage(msg)
	var err error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 && !sleepCtx(ctx, s.opts.RetryDelay) {
			return false
		}
		if err = s.handler(ctx, m); err == nil {
			break
		}
		logger.Warn(ctx, "message handler failed",
			zap.String("topic", s.topic),
			zap.String("message_id", m.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	if err != nil {
		logger.Error(ctx, "message dropped after retries",
			zap.String("topic", s.topic),
			zap.String("message_id", m.ID),
			zap.Int64("offset", msg.Offset),
		)
	}
	if cerr := s.reader.CommitMessages(ctx, msg); cerr != nil && ctx.Err() == nil {
		logger.Warn(ctx, "kafka commit failed", zap.String("topic", s.topic), zap.Error(cerr))
	}
	return ctx.Err() == nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func toKafkaMessage(topic string, message *Message) kafka.Message {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	headers := make([]kafka.Header, 0, len(message.Headers)+2)
	for name, value := range message.Headers {
		headers = append(headers, kafka.Header{Key: name, Value: []byte(value)})
	}
	if message.ID != "" {
		headers = append(headers, kafka.Header{Key: headerID, Value: []byte(message.ID)})
	}
	headers = append(headers, kafka.Header{
		Key:   headerTimestamp,
		Value: []byte(message.Timestamp.UTC().Format(time.RFC3339Nano)),
	})

	key := message.Key
	if key == "" {
		key = message.ID
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   message.Body,
		Headers: headers,
		Time:    message.Timestamp,
	}
}

func fromKafkaMessage(km kafka.Message) *Message {
	m := &Message{
		Key:       string(km.Key),
		Body:      km.Value,
		Headers:   make(map[string]string, len(km.Headers)),
		Timestamp: km.Time,
	}
	for _, h := range km.Headers {
		switch h.Key {
		case headerID:
			m.ID = string(h.Value)
		case headerTimestamp:
			if ts, err := time.Parse(time.RFC3339Nano, string(h.Value)); err == nil {
				m.Timestamp = ts
			}
		default:
			m.Headers[h.Key] = string(h.Value)
		}
	}
	return m
}

var _ MessageQueue = (*KafkaQueue)(nil)
