package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-verifier/internal/interfaces"
	"github.com/akylbek/payment-system/payment-verifier/internal/repository"
	"github.com/akylbek/payment-system/payment-verifier/internal/telemetry"
)

type PaymentStateHandler struct {
	repo interfaces.PaymentRepository
}

func NewPaymentStateHandler(repo interfaces.PaymentRepository) *PaymentStateHandler {
	return &PaymentStateHandler{repo: repo}
}

func (h *PaymentStateHandler) GetPayment(c *gin.Context) {
	paymentID := c.Param("id")

	payment, err := h.repo.GetByID(c.Request.Context(), paymentID)
	if err != nil {
		writeLookupError(c, paymentID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment status retrieved",
		"status":  payment.Status,
		"payment": payment,
	})
}

func (h *PaymentStateHandler) GetPaymentState(c *gin.Context) {
	paymentID := c.Param("id")

	payment, err := h.repo.GetByID(c.Request.Context(), paymentID)
	if err != nil {
		writeLookupError(c, paymentID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment_id": paymentID,
		"state":      payment.Status,
		"txn_hash":   payment.TxnDigest,
		"paid_at":    payment.PaidAt,
		"created_at": payment.CreatedAt,
	})
}

func writeLookupError(c *gin.Context, paymentID string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		return
	}

	telemetry.Logger.Error("Failed to fetch payment",
		zap.String("payment_id", paymentID),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payment"})
}
