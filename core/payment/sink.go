package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"v4vfm/logger"
	"v4vfm/model"
)

// Sink consumes payment instructions and performs the actual payment.
type Sink interface {
	Publish(ctx context.Context, instructions []model.PaymentInstruction) error
	Close() error
}

// LogSink only logs instructions. Used when no broker is configured.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, instructions []model.PaymentInstruction) error {
	for _, in := range instructions {
		logger.Info("[LogSink] 支付指令",
			logger.String("id", in.ID),
			logger.String("kind", string(in.Kind)),
			logger.String("recipient", in.RecipientName),
			logger.Int64("amount_sats", in.AmountSats))
	}
	return nil
}

func (LogSink) Close() error { return nil }

// messageWriter is the part of kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each instruction as a JSON message keyed by instruction ID.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// NewKafkaSink creates a producer for the comma separated broker list.
func NewKafkaSink(brokers, topic string) *KafkaSink {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            3,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &KafkaSink{writer: writer, topic: topic}
}

func (s *KafkaSink) Publish(ctx context.Context, instructions []model.PaymentInstruction) error {
	if len(instructions) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(instructions))
	for _, in := range instructions {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal instruction %s: %w", in.ID, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(in.ID), Value: data, Time: in.CreatedAt})
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		logger.Error("[KafkaSink] 发送支付指令失败", logger.String("topic", s.topic), logger.ErrorField(err))
		return fmt.Errorf("failed to publish payment instructions: %w", err)
	}
	logger.Info("[KafkaSink] 已发送支付指令", logger.String("topic", s.topic), logger.Int("count", len(msgs)))
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
