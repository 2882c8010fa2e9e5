package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/payment-verifier/internal/handlers"
	"github.com/akylbek/payment-system/payment-verifier/internal/telemetry"
)

func NewRouter(paymentHandler *handlers.PaymentHandler, stateHandler *handlers.PaymentStateHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": telemetry.ServiceName})
	})

	// Payment routes
	payments := r.Group("/api/payments")
	payments.POST("/create", paymentHandler.CreatePayment)
	payments.POST("/:id/verify", paymentHandler.VerifyPayment)
	payments.GET("/:id", stateHandler.GetPayment)
	payments.GET("/:id/state", stateHandler.GetPaymentState)

	return r
}
