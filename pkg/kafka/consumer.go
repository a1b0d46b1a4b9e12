package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler processes one decoded event. Returning an error triggers a retry.
type Handler func(ctx context.Context, event *Event) error

// messageReader is the subset of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	Topic      string
	MinBytes   int
	MaxBytes   int
	MaxRetries int
	RetryDelay time.Duration
}

// ConsumerOption customises a Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetter forwards messages that exhausted their retries to dlq
// instead of dropping them.
func WithDeadLetter(dlq *DeadLetterWriter) ConsumerOption {
	return func(c *Consumer) { c.dlq = dlq }
}

// WithSeenStore skips events whose ID was already handled.
func WithSeenStore(store SeenStore) ConsumerOption {
	return func(c *Consumer) { c.seen = store }
}

// Consumer reads a single topic within a consumer group and commits each
// message after its handler finished, successfully or not.
type Consumer struct {
	reader     messageReader
	topic      string
	group      string
	maxRetries int
	retryDelay time.Duration
	handler    Handler
	dlq        *DeadLetterWriter
	seen       SeenStore
	logger     *slog.Logger
	closeOnce  sync.Once
}

// NewConsumer creates a consumer backed by a kafka-go reader.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return newConsumer(r, cfg, handler, logger, opts...)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:     r,
		topic:      cfg.Topic,
		group:      cfg.GroupID,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		handler:    handler,
		logger:     logger,
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.retryDelay <= 0 {
		c.retryDelay = 100 * time.Millisecond
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start consumes until ctx is canceled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started",
		slog.String("topic", c.topic),
		slog.String("group", c.group),
	)
	defer func() { _ = c.Close() }()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", slog.String("topic", c.topic))
				return nil
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			if errors.Is(err, io.EOF) {
				return err
			}
			continue
		}
		consumerReceived.WithLabelValues(c.topic, c.group).Inc()

		if !c.process(ctx, msg) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

// process handles one message. It returns false only when ctx was canceled
// mid-retry, in which case the message must stay uncommitted.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to unmarshal event",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		c.deadLetter(ctx, msg, err)
		return true
	}

	hctx := extractTrace(ctx, msg)

	if c.seen != nil && event.ID != "" {
		dup, err := c.seen.Seen(hctx, event.ID)
		if err != nil {
			c.logger.Warn("seen-store lookup failed, handling anyway",
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()),
			)
		} else if dup {
			consumerDuplicates.WithLabelValues(c.topic, c.group).Inc()
			return true
		}
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if lastErr = c.handler(hctx, event); lastErr == nil {
			break
		}
		c.logger.Warn("handler failed",
			slog.String("event_type", event.Type),
			slog.String("event_id", event.ID),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(attempt) * c.retryDelay):
		}
	}
	consumerDuration.WithLabelValues(c.topic, c.group).Observe(time.Since(start).Seconds())

	if lastErr != nil {
		consumerFailed.WithLabelValues(c.topic, c.group).Inc()
		c.logger.Error("handler exhausted retries, skipping message",
			slog.String("event_type", event.Type),
			slog.String("event_id", event.ID),
			slog.Int64("offset", msg.Offset),
			slog.String("error", lastErr.Error()),
		)
		c.deadLetter(ctx, msg, lastErr)
		return true
	}

	consumerProcessed.WithLabelValues(c.topic, c.group).Inc()
	if c.seen != nil && event.ID != "" {
		if err := c.seen.MarkSeen(hctx, event.ID); err != nil {
			c.logger.Warn("failed to record event ID",
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return true
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Forward(ctx, msg, cause, c.group); err != nil {
		c.logger.Error("failed to forward to dead-letter topic", slog.String("error", err.Error()))
		return
	}
	consumerDeadLettered.WithLabelValues(c.topic, c.group).Inc()
}

// Close closes the reader. It is safe to call more than once.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
