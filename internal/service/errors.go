package service

import (
	"errors"
	"fmt"

	"github.com/akylbek/payment-system/payment-verifier/internal/models"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrCorruptPayment      = errors.New("payment record is corrupt")
	ErrAlreadyPaid         = errors.New("payment already paid")
	ErrPaymentClosed       = errors.New("payment is no longer pending")
	ErrMissingRecipient    = errors.New("payment has no recipient address")
	ErrTransactionNotFound = errors.New("transaction not found on ledger")
	ErrTransactionFailed   = errors.New("transaction failed on ledger")

	// ErrVerificationMismatch matches any *MismatchError.
	ErrVerificationMismatch = errors.New("transaction does not satisfy payment")

	ErrMerchantNotFound = errors.New("merchant not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrInvalidAmount    = errors.New("amount must be a non-negative number")
)

// MismatchError reports a transaction that exists and succeeded but does not
// pay the expected recipient the expected amount. The payment stays pending.
type MismatchError struct {
	Reason models.VerificationReason
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s", ErrVerificationMismatch, e.Reason)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrVerificationMismatch
}

// ReasonOf maps a Verify error to the verification reason reported to callers.
// It returns "" for errors that are not verification outcomes.
func ReasonOf(err error) models.VerificationReason {
	var mismatch *MismatchError
	switch {
	case err == nil:
		return models.ReasonOK
	case errors.As(err, &mismatch):
		return mismatch.Reason
	case errors.Is(err, ErrTransactionNotFound):
		return models.ReasonTransactionNotFound
	case errors.Is(err, ErrTransactionFailed):
		return models.ReasonTransactionFailed
	default:
		return ""
	}
}
