package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tally/internal/config"
)

// Message represents a message published to or consumed from the bus.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	Offset  int64
	Time    time.Time
}

// Handler processes an inbound message. A non-nil error leaves the message
// uncommitted.
type Handler func(context.Context, Message) error

// Client is the pluggable messaging abstraction.
type Client interface {
	Publish(ctx context.Context, msgs ...Message) error
	Consume(ctx context.Context, handler Handler) error
	Topic() string
}

// Module wires the messaging client.
var Module = fx.Provide(NewClient)

// NewClient builds a messaging client based on configuration.
func NewClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	if !cfg.Messaging.Enabled || cfg.Messaging.Driver == "noop" {
		logger.Info("messaging disabled; using noop client")
		return noopClient{topic: cfg.Messaging.Kafka.Topic}, nil
	}

	switch cfg.Messaging.Driver {
	case "kafka":
		client := newKafkaClient(cfg.Messaging, logger)
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			logger.Info("closing kafka client")
			return client.Close()
		}})
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported messaging driver: %s", cfg.Messaging.Driver)
	}
}

// noopClient drops published messages and blocks consumers until cancelled.
type noopClient struct {
	topic string
}

func (n noopClient) Publish(context.Context, ...Message) error { return nil }

func (n noopClient) Consume(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (n noopClient) Topic() string { return n.topic }

// kafkaClient publishes with a hash balancer so messages sharing a key land
// on one partition, and consumes through a consumer group.
type kafkaClient struct {
	writer       *kafka.Writer
	reader       *kafka.Reader
	topic        string
	fetchBackoff time.Duration
	logger       *zap.Logger
}

func newKafkaClient(cfg config.Messaging, logger *zap.Logger) *kafkaClient {
	k := cfg.Kafka
	writer := &kafka.Writer{
		Addr:         kafka.TCP(k.Brokers...),
		Topic:        k.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Logger:       kafkaLogger{logger: logger},
		ErrorLogger:  kafkaErrorLogger{logger: logger},
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.Brokers,
		GroupID:        cfg.ConsumerGroup,
		Topic:          k.Topic,
		MinBytes:       k.MinBytes,
		MaxBytes:       k.MaxBytes,
		CommitInterval: k.CommitInterval,
		Dialer: &kafka.Dialer{
			Timeout:  k.ConnectTimeout,
			ClientID: k.ClientID,
		},
	})
	backoff := cfg.Workers.PollInterval
	if backoff <= 0 {
		backoff = time.Second
	}
	return &kafkaClient{
		writer:       writer,
		reader:       reader,
		topic:        k.Topic,
		fetchBackoff: backoff,
		logger:       logger,
	}
}

func (k *kafkaClient) Publish(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		out[i] = kafka.Message{Key: m.Key, Value: m.Value, Headers: toKafkaHeaders(m.Headers)}
	}
	return k.writer.WriteMessages(ctx, out...)
}

func (k *kafkaClient) Consume(ctx context.Context, handler Handler) error {
	for {
		km, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			k.logger.Error("kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(k.fetchBackoff):
			}
			continue
		}

		if err := handler(ctx, fromKafka(km)); err != nil {
			k.logger.Error("message handler failed", zap.Error(err), zap.Int64("offset", km.Offset))
			continue
		}
		if err := k.reader.CommitMessages(ctx, km); err != nil {
			k.logger.Warn("commit failed", zap.Error(err), zap.Int64("offset", km.Offset))
		}
	}
}

func (k *kafkaClient) Topic() string { return k.topic }

func (k *kafkaClient) Close() error {
	return errors.Join(k.writer.Close(), k.reader.Close())
}

func fromKafka(km kafka.Message) Message {
	return Message{
		Topic:   km.Topic,
		Key:     append([]byte(nil), km.Key...),
		Value:   append([]byte(nil), km.Value...),
		Headers: fromKafkaHeaders(km.Headers),
		Offset:  km.Offset,
		Time:    km.Time,
	}
}

func toKafkaHeaders(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(h))
	for key, value := range h {
		out = append(out, kafka.Header{Key: key, Value: []byte(value)})
	}
	return out
}

func fromKafkaHeaders(h []kafka.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for _, kh := range h {
		out[kh.Key] = string(kh.Value)
	}
	return out
}

type kafkaLogger struct {
	logger *zap.Logger
}

func (k kafkaLogger) Printf(msg string, args ...any) {
	k.logger.Sugar().Debugf(msg, args...)
}

type kafkaErrorLogger struct {
	logger *zap.Logger
}

func (k kafkaErrorLogger) Printf(msg string, args ...any) {
	k.logger.Sugar().Warnf(msg, args...)
}
