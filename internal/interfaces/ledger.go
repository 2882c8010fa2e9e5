package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/payment-verifier/internal/ledger"
)

// Ledger fetches finalized transactions by digest.
type Ledger interface {
	GetTransaction(ctx context.Context, digest string) (*ledger.Transaction, error)
}
