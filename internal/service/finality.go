package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-verifier/internal/models"
	"github.com/akylbek/payment-system/payment-verifier/internal/telemetry"
)

const DefaultFinalityDelay = 3 * time.Second

type PaymentVerifier interface {
	Verify(ctx context.Context, req VerifyRequest) (*models.Payment, error)
}

// VerifyWithFinality makes a non-final attempt and, if the transaction is not
// visible yet, one final attempt after delay. A cancelled wait returns the
// first attempt's error.
func VerifyWithFinality(ctx context.Context, v PaymentVerifier, req VerifyRequest, delay time.Duration) (*models.Payment, error) {
	req.Final = false
	payment, err := v.Verify(ctx, req)
	if !errors.Is(err, ErrTransactionNotFound) {
		return payment, err
	}

	telemetry.Logger.Info("Transaction not visible, retrying after finality delay",
		zap.String("payment_id", req.PaymentID),
		zap.String("digest", req.TxnDigest),
		zap.Duration("delay", delay),
	)
	if waitErr := sleep(ctx, delay); waitErr != nil {
		return nil, err
	}

	req.Final = true
	return v.Verify(ctx, req)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
