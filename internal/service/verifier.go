package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-verifier/internal/interfaces"
	"github.com/akylbek/payment-system/payment-verifier/internal/ledger"
	"github.com/akylbek/payment-system/payment-verifier/internal/models"
	"github.com/akylbek/payment-system/payment-verifier/internal/notify"
	"github.com/akylbek/payment-system/payment-verifier/internal/reconcile"
	"github.com/akylbek/payment-system/payment-verifier/internal/repository"
	"github.com/akylbek/payment-system/payment-verifier/internal/telemetry"
)

const (
	DefaultLedgerTimeout = 5 * time.Second

	// DefaultPublishTimeout bounds the post-commit state event so a broker
	// outage cannot hold the caller.
	DefaultPublishTimeout = 2 * time.Second
)

type VerifyRequest struct {
	PaymentID      string
	TxnDigest      string
	CustomerWallet string

	// Final marks the caller's last attempt. Only then does a digest the
	// ledger confirms absent fail the payment; earlier misses may be
	// finality lag.
	Final bool
}

// Verifier decides whether a submitted transaction pays a pending payment and
// performs the single pending -> paid|failed transition. Each call is
// synchronous and makes at most one ledger query.
type Verifier struct {
	payments       interfaces.PaymentRepository
	merchants      interfaces.MerchantRepository
	ledger         interfaces.Ledger
	publisher      interfaces.StatePublisher
	notifications  interfaces.NotificationQueue
	ledgerTimeout  time.Duration
	publishTimeout time.Duration
	now            func() time.Time
}

// NewVerifier wires the engine. publisher and notifications may be nil.
func NewVerifier(
	payments interfaces.PaymentRepository,
	merchants interfaces.MerchantRepository,
	ledgerClient interfaces.Ledger,
	publisher interfaces.StatePublisher,
	notifications interfaces.NotificationQueue,
	ledgerTimeout time.Duration,
) *Verifier {
	if ledgerTimeout <= 0 {
		ledgerTimeout = DefaultLedgerTimeout
	}
	return &Verifier{
		payments:       payments,
		merchants:      merchants,
		ledger:         ledgerClient,
		publisher:      publisher,
		notifications:  notifications,
		ledgerTimeout:  ledgerTimeout,
		publishTimeout: DefaultPublishTimeout,
		now:            time.Now,
	}
}

// Verify runs one verification attempt. Once started it runs to completion
// even if ctx is cancelled; only the ledger query is bounded, by ledgerTimeout.
func (v *Verifier) Verify(ctx context.Context, req VerifyRequest) (*models.Payment, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := telemetry.Tracer.Start(ctx, "verifier.Verify")
	defer span.End()
	span.SetAttributes(
		telemetry.AttrPaymentID.String(req.PaymentID),
		attribute.String("ledger.digest", req.TxnDigest),
		attribute.Bool("verify.final", req.Final),
	)

	payment, err := v.verify(ctx, req)

	outcome := string(ReasonOf(err))
	if outcome == "" {
		outcome = outcomeLabel(err)
	}
	telemetry.VerificationsTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("verify.outcome", outcome))

	return payment, err
}

func (v *Verifier) verify(ctx context.Context, req VerifyRequest) (*models.Payment, error) {
	if req.PaymentID == "" || req.TxnDigest == "" {
		return nil, fmt.Errorf("%w: payment id and transaction digest are required", ErrInvalidRequest)
	}

	payment, err := v.loadPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}

	if !payment.IsPending() {
		if payment.Status == models.StatusPaid {
			return nil, ErrAlreadyPaid
		}
		return nil, ErrPaymentClosed
	}

	merchant := v.loadMerchant(ctx, payment)

	recipient := payment.Recipient
	if recipient == "" && merchant != nil {
		recipient = merchant.WalletAddress
	}
	if recipient == "" {
		return nil, ErrMissingRecipient
	}

	tx, err := v.queryLedger(ctx, req.TxnDigest)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			telemetry.Logger.Info("Transaction not on ledger",
				zap.String("payment_id", payment.ID),
				zap.String("digest", req.TxnDigest),
				zap.Bool("final", req.Final),
			)
			if req.Final {
				v.markFailed(ctx, payment, req.TxnDigest, models.ReasonTransactionNotFound)
			}
		} else {
			telemetry.Logger.Warn("Ledger query failed",
				zap.String("payment_id", payment.ID),
				zap.String("digest", req.TxnDigest),
				zap.Error(err),
			)
		}
		return nil, ErrTransactionNotFound
	}

	if !tx.Succeeded() {
		telemetry.Logger.Info("Transaction failed on ledger",
			zap.String("payment_id", payment.ID),
			zap.String("digest", req.TxnDigest),
			zap.String("exec_error", tx.ExecError),
		)
		v.markFailed(ctx, payment, req.TxnDigest, models.ReasonTransactionFailed)
		return nil, ErrTransactionFailed
	}

	result := reconcile.Reconcile(payment.Amount, recipient, tx.BalanceChanges, tx.Events)
	if !result.Valid {
		telemetry.Logger.Info("Transaction does not satisfy payment",
			zap.String("payment_id", payment.ID),
			zap.String("digest", req.TxnDigest),
			zap.String("reason", string(result.Reason)),
		)
		return nil, &MismatchError{Reason: result.Reason}
	}

	paidAt := v.now().UTC()
	updated, err := v.payments.MarkPaid(ctx, payment.ID, req.TxnDigest, req.CustomerWallet, paidAt)
	if err != nil {
		return nil, fmt.Errorf("failed to mark payment paid: %w", err)
	}
	if !updated {
		// Another verification won the compare-and-set.
		return nil, v.lostRace(ctx, payment.ID)
	}

	payment.Status = models.StatusPaid
	payment.TxnDigest = req.TxnDigest
	payment.CustomerWallet = req.CustomerWallet
	payment.PaidAt = &paidAt

	telemetry.Logger.Info("Payment state transition",
		zap.String("payment_id", payment.ID),
		zap.String("from_state", string(models.StatusPending)),
		zap.String("to_state", string(models.StatusPaid)),
		zap.String("digest", req.TxnDigest),
	)

	v.publish(ctx, payment, models.StatusPaid, "")
	v.notify(ctx, payment, merchant)

	return payment, nil
}

func (v *Verifier) loadPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := v.payments.GetByID(ctx, paymentID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrPaymentNotFound
	case errors.Is(err, repository.ErrCorruptRecord):
		telemetry.Logger.Error("Corrupt payment record", zap.String("payment_id", paymentID), zap.Error(err))
		return nil, ErrCorruptPayment
	case err != nil:
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return payment, nil
}

// loadMerchant returns nil when the payment has no merchant or it cannot be
// loaded; the merchant only supplies a fallback recipient and the webhook URL.
func (v *Verifier) loadMerchant(ctx context.Context, payment *models.Payment) *models.Merchant {
	if payment.MerchantID == "" || v.merchants == nil {
		return nil
	}
	merchant, err := v.merchants.GetByID(ctx, payment.MerchantID)
	if err != nil {
		telemetry.Logger.Warn("Failed to load merchant",
			zap.String("payment_id", payment.ID),
			zap.String("merchant_id", payment.MerchantID),
			zap.Error(err),
		)
		return nil
	}
	return merchant
}

func (v *Verifier) queryLedger(ctx context.Context, digest string) (*ledger.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, v.ledgerTimeout)
	defer cancel()
	return v.ledger.GetTransaction(ctx, digest)
}

func (v *Verifier) lostRace(ctx context.Context, paymentID string) error {
	current, err := v.payments.GetByID(ctx, paymentID)
	if err == nil && current.Status == models.StatusPaid {
		return ErrAlreadyPaid
	}
	return ErrPaymentClosed
}

func (v *Verifier) markFailed(ctx context.Context, payment *models.Payment, digest string, reason models.VerificationReason) {
	updated, err := v.payments.MarkFailed(ctx, payment.ID, digest)
	if err != nil {
		telemetry.Logger.Error("Failed to mark payment failed",
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
		return
	}
	if !updated {
		return
	}

	payment.Status = models.StatusFailed
	payment.TxnDigest = digest

	telemetry.Logger.Info("Payment state transition",
		zap.String("payment_id", payment.ID),
		zap.String("from_state", string(models.StatusPending)),
		zap.String("to_state", string(models.StatusFailed)),
		zap.String("reason", string(reason)),
	)
	v.publish(ctx, payment, models.StatusFailed, reason)
}

func (v *Verifier) publish(ctx context.Context, payment *models.Payment, state models.PaymentStatus, reason models.VerificationReason) {
	if v.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, v.publishTimeout)
	defer cancel()

	err := v.publisher.PublishStateChange(ctx, models.StateChangeEvent{
		PaymentID:     payment.ID,
		State:         state,
		PreviousState: models.StatusPending,
		TxnDigest:     payment.TxnDigest,
		Reason:        string(reason),
		Timestamp:     v.now().UTC(),
	})

	result := "ok"
	if err != nil {
		result = "error"
		telemetry.Logger.Error("Failed to publish state change",
			zap.String("payment_id", payment.ID),
			zap.String("state", string(state)),
			zap.Error(err),
		)
	}
	telemetry.StateEventsTotal.WithLabelValues(string(state), result).Inc()
}

func (v *Verifier) notify(ctx context.Context, payment *models.Payment, merchant *models.Merchant) {
	if v.notifications == nil || merchant == nil || merchant.WebhookURL == "" {
		return
	}

	job := notify.Job{URL: merchant.WebhookURL, Event: notify.PaymentSuccessEvent(payment)}
	if err := v.notifications.Enqueue(ctx, job); err != nil {
		telemetry.Logger.Warn("Failed to enqueue webhook",
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, ErrPaymentNotFound):
		return "payment_not_found"
	case errors.Is(err, ErrPaymentClosed):
		return "payment_closed"
	case errors.Is(err, ErrMissingRecipient):
		return "missing_recipient"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "error"
	}
}
