package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/akylbek/payment-system/payment-verifier/internal/models"
)

const (
	TopicPaymentStateChanged      = "payment.state.changed"
	TopicVerificationRequested    = "payment.verification.requested"
	DefaultVerificationConsumerID = "payment-verifier"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes payment state changes keyed by payment id, so all
// events for one payment land on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaWriter accepts a comma-separated broker list.
func NewKafkaWriter(brokers string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
		Topic:                  TopicPaymentStateChanged,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           2 * time.Second,
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaReader consumes verification requests as part of groupID.
func NewKafkaReader(brokers, groupID string) *kafka.Reader {
	if groupID == "" {
		groupID = DefaultVerificationConsumerID
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(brokers, ","),
		Topic:    TopicVerificationRequested,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

func NewKafkaPublisher(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) PublishStateChange(ctx context.Context, event models.StateChangeEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode state change: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.PaymentID),
		Value: eventJSON,
	})
}
