package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-verifier/internal/interfaces"
	"github.com/akylbek/payment-system/payment-verifier/internal/models"
	"github.com/akylbek/payment-system/payment-verifier/internal/service"
	"github.com/akylbek/payment-system/payment-verifier/internal/telemetry"
)

type PaymentCreator interface {
	CreatePayment(ctx context.Context, req service.CreatePaymentRequest) (*models.Payment, error)
}

type PaymentHandler struct {
	verifier      service.PaymentVerifier
	checkout      PaymentCreator
	products      interfaces.ProductRepository
	finalityDelay time.Duration
}

func NewPaymentHandler(
	verifier service.PaymentVerifier,
	checkout PaymentCreator,
	products interfaces.ProductRepository,
	finalityDelay time.Duration,
) *PaymentHandler {
	return &PaymentHandler{
		verifier:      verifier,
		checkout:      checkout,
		products:      products,
		finalityDelay: finalityDelay,
	}
}

// verifyPaymentBody accepts both the checkout widget's field names and the
// longer API names.
type verifyPaymentBody struct {
	PaymentID             string `json:"paymentId"`
	TxnHash               string `json:"txnHash"`
	TransactionDigest     string `json:"transactionDigest"`
	CustomerWallet        string `json:"customerWallet"`
	CustomerWalletAddress string `json:"customerWalletAddress"`
}

func (b verifyPaymentBody) digest() string {
	if b.TxnHash != "" {
		return b.TxnHash
	}
	return b.TransactionDigest
}

func (b verifyPaymentBody) wallet() string {
	if b.CustomerWalletAddress != "" {
		return b.CustomerWalletAddress
	}
	return b.CustomerWallet
}

type createPaymentBody struct {
	MerchantID  string           `json:"merchantId"`
	ProductID   string           `json:"productId"`
	Amount      *decimal.Decimal `json:"amount"`
	Description string           `json:"description"`
	Reference   string           `json:"reference"`
}

func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	var body verifyPaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		telemetry.Logger.Warn("Error decoding verify request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	paymentID := c.Param("id")
	if body.PaymentID != "" && body.PaymentID != paymentID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paymentId does not match the request path", "payment_id": paymentID})
		return
	}

	ctx := c.Request.Context()
	req := service.VerifyRequest{
		PaymentID:      paymentID,
		TxnDigest:      body.digest(),
		CustomerWallet: body.wallet(),
	}

	payment, err := service.VerifyWithFinality(ctx, h.verifier, req, h.finalityDelay)
	if err != nil {
		h.writeVerifyError(c, req.PaymentID, err)
		return
	}

	response := gin.H{
		"message": "Payment verified",
		"payment": payment,
	}
	if redirect := h.redirectURL(ctx, payment); redirect != "" {
		response["redirect_url"] = redirect
	}
	c.JSON(http.StatusOK, response)
}

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var body createPaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		telemetry.Logger.Warn("Error decoding create payment request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	payment, err := h.checkout.CreatePayment(c.Request.Context(), service.CreatePaymentRequest{
		MerchantID:  body.MerchantID,
		ProductID:   body.ProductID,
		Amount:      body.Amount,
		Description: body.Description,
		Reference:   body.Reference,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidAmount):
			status = http.StatusBadRequest
		case errors.Is(err, service.ErrMerchantNotFound), errors.Is(err, service.ErrProductNotFound):
			status = http.StatusNotFound
		default:
			telemetry.Logger.Error("Error creating payment", zap.Error(err))
		}
		c.JSON(status, gin.H{"error": errorMessage(status, err)})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"paymentId":   payment.ID,
		"paymentLink": payment.PaymentLink,
		"payment":     payment,
	})
}

func (h *PaymentHandler) writeVerifyError(c *gin.Context, paymentID string, err error) {
	status := verifyStatus(err)
	if status == http.StatusInternalServerError {
		telemetry.Logger.Error("Error verifying payment",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
	}

	response := gin.H{"error": errorMessage(status, err), "payment_id": paymentID}
	if reason := service.ReasonOf(err); reason != "" {
		response["reason"] = reason
	}
	c.JSON(status, response)
}

func verifyStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrTransactionNotFound),
		errors.Is(err, service.ErrTransactionFailed),
		errors.Is(err, service.ErrVerificationMismatch):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAlreadyPaid), errors.Is(err, service.ErrPaymentClosed):
		return http.StatusConflict
	case errors.Is(err, service.ErrMissingRecipient):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// redirectURL returns the product's redirect target with the payment id
// appended, or "" when the payment has no product or it has no redirect.
func (h *PaymentHandler) redirectURL(ctx context.Context, payment *models.Payment) string {
	if payment.ProductID == "" || h.products == nil {
		return ""
	}

	product, err := h.products.GetByID(ctx, payment.ProductID)
	if err != nil {
		telemetry.Logger.Warn("Failed to load product for redirect",
			zap.String("payment_id", payment.ID),
			zap.String("product_id", payment.ProductID),
			zap.Error(err),
		)
		return ""
	}
	if product.RedirectURL == "" {
		return ""
	}

	target, err := url.Parse(product.RedirectURL)
	if err != nil {
		telemetry.Logger.Warn("Invalid product redirect URL",
			zap.String("product_id", product.ID),
			zap.Error(err),
		)
		return ""
	}
	query := target.Query()
	query.Set("paymentId", payment.ID)
	target.RawQuery = query.Encode()
	return target.String()
}

func errorMessage(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
