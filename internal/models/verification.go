package models

type VerificationReason string

const (
	ReasonTransactionNotFound VerificationReason = "transaction_not_found"
	ReasonTransactionFailed   VerificationReason = "transaction_failed"
	ReasonRecipientMismatch   VerificationReason = "recipient_mismatch"
	ReasonAmountInsufficient  VerificationReason = "amount_insufficient"
	ReasonOK                  VerificationReason = "ok"
)

// VerificationResult is never persisted.
type VerificationResult struct {
	Valid  bool               `json:"valid"`
	Reason VerificationReason `json:"reason"`
}

func Valid() VerificationResult {
	return VerificationResult{Valid: true, Reason: ReasonOK}
}

func Invalid(reason VerificationReason) VerificationResult {
	return VerificationResult{Valid: false, Reason: reason}
}
