package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-verifier/internal/interfaces"
	"github.com/akylbek/payment-system/payment-verifier/internal/models"
	"github.com/akylbek/payment-system/payment-verifier/internal/repository"
	"github.com/akylbek/payment-system/payment-verifier/internal/telemetry"
)

type CreatePaymentRequest struct {
	MerchantID  string
	ProductID   string
	Amount      *decimal.Decimal
	Description string
	Reference   string
}

// Checkout opens pending payments. Amount and recipient come from the product
// when one is referenced, otherwise from the request and its merchant.
type Checkout struct {
	payments        interfaces.PaymentRepository
	merchants       interfaces.MerchantRepository
	products        interfaces.ProductRepository
	frontendBaseURL string
	now             func() time.Time
}

func NewCheckout(
	payments interfaces.PaymentRepository,
	merchants interfaces.MerchantRepository,
	products interfaces.ProductRepository,
	frontendBaseURL string,
) *Checkout {
	return &Checkout{
		payments:        payments,
		merchants:       merchants,
		products:        products,
		frontendBaseURL: strings.TrimRight(frontendBaseURL, "/"),
		now:             time.Now,
	}
}

func (c *Checkout) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*models.Payment, error) {
	payment := &models.Payment{
		ID:          uuid.NewString(),
		Currency:    models.DefaultCurrency,
		Description: req.Description,
		Reference:   req.Reference,
		Status:      models.StatusPending,
		CreatedAt:   c.now().UTC(),
	}

	if req.ProductID != "" {
		product, err := c.products.GetByID(ctx, req.ProductID)
		if err != nil {
			return nil, lookupError(err, ErrProductNotFound)
		}
		payment.ProductID = product.ID
		payment.MerchantID = product.MerchantID
		payment.Amount = product.PriceInSui
		payment.Recipient = product.MerchantAddress
		payment.PaymentLink = product.PaymentLink
	} else {
		if req.MerchantID == "" {
			return nil, fmt.Errorf("%w: merchantId or productId is required", ErrInvalidRequest)
		}
		if req.Amount == nil {
			return nil, ErrInvalidAmount
		}
		merchant, err := c.merchants.GetByID(ctx, req.MerchantID)
		if err != nil {
			return nil, lookupError(err, ErrMerchantNotFound)
		}
		payment.MerchantID = merchant.ID
		payment.Amount = *req.Amount
	}

	if payment.Amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if payment.PaymentLink == "" {
		payment.PaymentLink = fmt.Sprintf("%s/pay/%s", c.frontendBaseURL, payment.ID)
	}

	if err := c.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	telemetry.Logger.Info("Payment created",
		zap.String("payment_id", payment.ID),
		zap.String("merchant_id", payment.MerchantID),
		zap.String("product_id", payment.ProductID),
		zap.String("amount", payment.Amount.String()),
	)

	return payment, nil
}

func lookupError(err, notFound error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrCorruptRecord):
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	default:
		return err
	}
}
