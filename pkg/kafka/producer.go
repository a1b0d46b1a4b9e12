package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// TopicPrefix namespaces every qualitylab topic.
const TopicPrefix = "qualitylab"

// Topic builds "<prefix>.<domain>.<action>".
func Topic(domain, action string) string {
	return strings.Join([]string{TopicPrefix, domain, action}, ".")
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ProducerConfig struct {
	Brokers      []string
	BatchSize    int
	BatchTimeout time.Duration
	Async        bool
}

// DefaultProducerConfig favours latency: session events are tiny and rare.
func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{Brokers: brokers, BatchSize: 100, BatchTimeout: 10 * time.Millisecond}
}

// Producer publishes Events, one message per call.
type Producer struct {
	writer  messageWriter
	brokers []string
	logger  *slog.Logger
}

func NewProducer(cfg ProducerConfig, logger *slog.Logger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		Async:                  cfg.Async,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}, cfg.Brokers, logger)
}

func newProducer(w messageWriter, brokers []string, logger *slog.Logger) *Producer {
	return &Producer{writer: w, brokers: brokers, logger: logger}
}

// message keys by subject so one account's events stay ordered on a single
// partition.
func message(ctx context.Context, topic string, ev *Event) (kafka.Message, error) {
	value, err := ev.Marshal()
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{Topic: topic, Key: []byte(ev.Subject), Value: value}
	carrier := NewHeaderCarrier(&msg.Headers)
	carrier.Set("event_type", ev.Type)
	carrier.Set("source", ev.Source)
	if ev.CorrelationID != "" {
		carrier.Set("correlation_id", ev.CorrelationID)
	}
	injectTrace(ctx, &msg)
	return msg, nil
}

// Publish blocks until the brokers acknowledge the event or ctx ends.
func (p *Producer) Publish(ctx context.Context, topic string, ev *Event) error {
	msg, err := message(ctx, topic, ev)
	if err != nil {
		return err
	}

	log := p.logger.With(slog.String("topic", topic), slog.String("event_type", ev.Type))
	timer := time.Now()
	err = p.writer.WriteMessages(ctx, msg)
	producerDuration.WithLabelValues(topic).Observe(time.Since(timer).Seconds())
	if err != nil {
		producerErrors.WithLabelValues(topic).Inc()
		log.ErrorContext(ctx, "publish failed", slog.String("error", err.Error()))
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	producerPublished.WithLabelValues(topic).Inc()
	log.DebugContext(ctx, "event published", slog.String("event_id", ev.ID))
	return nil
}

func (p *Producer) Ping(ctx context.Context) error {
	return PingBrokers(ctx, p.brokers)
}

// PingBrokers succeeds as soon as one broker returns its cluster metadata.
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}

	var errs []error
	for _, addr := range brokers {
		if err := pingBroker(ctx, addr); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
			continue
		}
		return nil
	}
	return fmt.Errorf("kafka unreachable: %w", errors.Join(errs...))
}

func pingBroker(ctx context.Context, addr string) error {
	conn, err := kafka.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Brokers()
	return err
}

// Close flushes buffered messages.
func (p *Producer) Close() error {
	return p.writer.Close()
}
