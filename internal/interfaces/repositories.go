package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/payment-system/payment-verifier/internal/models"
)

// PaymentRepository defines the contract for payment record access. MarkPaid
// and MarkFailed are compare-and-set: they only change a pending payment and
// report whether they did.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, paymentID string) (*models.Payment, error)
	MarkPaid(ctx context.Context, paymentID, txnDigest, customerWallet string, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, paymentID, txnDigest string) (bool, error)
}

type MerchantRepository interface {
	GetByID(ctx context.Context, merchantID string) (*models.Merchant, error)
}

type ProductRepository interface {
	GetByID(ctx context.Context, productID string) (*models.Product, error)
}
