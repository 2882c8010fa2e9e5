package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-verifier/internal/models"
	"github.com/akylbek/payment-system/payment-verifier/internal/telemetry"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// VerificationConsumer runs verifications requested over Kafka. Every message
// is committed once handled, whatever the verification outcome; the payment
// record carries the result.
type VerificationConsumer struct {
	reader        messageReader
	verifier      PaymentVerifier
	finalityDelay time.Duration
}

func NewVerificationConsumer(reader messageReader, verifier PaymentVerifier, finalityDelay time.Duration) *VerificationConsumer {
	return &VerificationConsumer{
		reader:        reader,
		verifier:      verifier,
		finalityDelay: finalityDelay,
	}
}

// Run consumes until ctx is cancelled.
func (c *VerificationConsumer) Run(ctx context.Context) error {
	telemetry.Logger.Info("Started consuming verification requests")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			telemetry.Logger.Error("Error reading message from Kafka", zap.Error(err))
			if sleep(ctx, time.Second) != nil {
				return nil
			}
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			telemetry.Logger.Error("Error committing message",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

func (c *VerificationConsumer) handle(ctx context.Context, msg kafka.Message) {
	var event models.VerificationRequestedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		telemetry.Logger.Error("Error unmarshaling verification request",
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return
	}

	telemetry.Logger.Info("Processing verification request",
		zap.String("payment_id", event.PaymentID),
		zap.String("digest", event.TxnDigest),
	)

	_, err := VerifyWithFinality(ctx, c.verifier, VerifyRequest{
		PaymentID:      event.PaymentID,
		TxnDigest:      event.TxnDigest,
		CustomerWallet: event.CustomerWallet,
	}, c.finalityDelay)

	switch {
	case err == nil:
		telemetry.Logger.Info("Verification request settled payment", zap.String("payment_id", event.PaymentID))
	case errors.Is(err, ErrAlreadyPaid), errors.Is(err, ErrPaymentClosed):
		telemetry.Logger.Info("Verification request for closed payment",
			zap.String("payment_id", event.PaymentID),
			zap.Error(err),
		)
	default:
		telemetry.Logger.Warn("Verification request rejected",
			zap.String("payment_id", event.PaymentID),
			zap.String("reason", string(ReasonOf(err))),
			zap.Error(err),
		)
	}
}
