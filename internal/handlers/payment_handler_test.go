package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/payment-verifier/internal/models"
	"github.com/akylbek/payment-system/payment-verifier/internal/repository"
	"github.com/akylbek/payment-system/payment-verifier/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockVerifier struct {
	Requests   []service.VerifyRequest
	VerifyFunc func(req service.VerifyRequest) (*models.Payment, error)
}

func (m *MockVerifier) Verify(_ context.Context, req service.VerifyRequest) (*models.Payment, error) {
	m.Requests = append(m.Requests, req)
	return m.VerifyFunc(req)
}

type MockCreator struct {
	Request    service.CreatePaymentRequest
	CreateFunc func(req service.CreatePaymentRequest) (*models.Payment, error)
}

func (m *MockCreator) CreatePayment(_ context.Context, req service.CreatePaymentRequest) (*models.Payment, error) {
	m.Request = req
	return m.CreateFunc(req)
}

type MockProducts struct {
	GetByIDFunc func(id string) (*models.Product, error)
}

func (m *MockProducts) GetByID(_ context.Context, id string) (*models.Product, error) {
	return m.GetByIDFunc(id)
}

type MockPaymentRepository struct {
	GetByIDFunc func(id string) (*models.Payment, error)
}

func (m *MockPaymentRepository) Create(context.Context, *models.Payment) error { return nil }

func (m *MockPaymentRepository) GetByID(_ context.Context, id string) (*models.Payment, error) {
	return m.GetByIDFunc(id)
}

func (m *MockPaymentRepository) MarkPaid(context.Context, string, string, string, time.Time) (bool, error) {
	return false, nil
}

func (m *MockPaymentRepository) MarkFailed(context.Context, string, string) (bool, error) {
	return false, nil
}

func paidPayment(productID string) *models.Payment {
	paidAt := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	return &models.Payment{
		ID:        "pay-1",
		ProductID: productID,
		Amount:    decimal.RequireFromString("1.5"),
		Currency:  models.DefaultCurrency,
		Status:    models.StatusPaid,
		TxnDigest: "digest-1",
		PaidAt:    &paidAt,
	}
}

func newTestRouter(h *PaymentHandler, state *PaymentStateHandler) *gin.Engine {
	r := gin.New()
	if h != nil {
		r.POST("/api/payments/create", h.CreatePayment)
		r.POST("/api/payments/:id/verify", h.VerifyPayment)
	}
	if state != nil {
		r.GET("/api/payments/:id", state.GetPayment)
		r.GET("/api/payments/:id/state", state.GetPaymentState)
	}
	return r
}

func perform(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

func TestVerifyPaymentReturnsPaymentAndRedirect(t *testing.T) {
	verifier := &MockVerifier{VerifyFunc: func(service.VerifyRequest) (*models.Payment, error) {
		return paidPayment("prod-1"), nil
	}}
	products := &MockProducts{GetByIDFunc: func(id string) (*models.Product, error) {
		return &models.Product{ID: id, RedirectURL: "https://shop.example/thanks?src=sui"}, nil
	}}
	r := newTestRouter(NewPaymentHandler(verifier, nil, products, 0), nil)

	w, body := perform(r, http.MethodPost, "/api/payments/pay-1/verify",
		`{"txnHash":"digest-1","customerWallet":"0xC0FFEE"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://shop.example/thanks?paymentId=pay-1&src=sui", body["redirect_url"])
	payment := body["payment"].(map[string]interface{})
	assert.Equal(t, "paid", payment["status"])
	assert.Equal(t, "digest-1", payment["txn_hash"])

	require.Len(t, verifier.Requests, 1)
	assert.Equal(t, service.VerifyRequest{PaymentID: "pay-1", TxnDigest: "digest-1", CustomerWallet: "0xC0FFEE"}, verifier.Requests[0])
}

func TestVerifyPaymentWithoutProductOmitsRedirect(t *testing.T) {
	verifier := &MockVerifier{VerifyFunc: func(service.VerifyRequest) (*models.Payment, error) {
		return paidPayment(""), nil
	}}
	r := newTestRouter(NewPaymentHandler(verifier, nil, nil, 0), nil)

	w, body := perform(r, http.MethodPost, "/api/payments/pay-1/verify", `{"transactionDigest":"digest-1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, body, "redirect_url")
	assert.Equal(t, "digest-1", verifier.Requests[0].TxnDigest)
}

func TestVerifyPaymentAcceptsLongFieldNames(t *testing.T) {
	verifier := &MockVerifier{VerifyFunc: func(service.VerifyRequest) (*models.Payment, error) {
		return paidPayment(""), nil
	}}
	r := newTestRouter(NewPaymentHandler(verifier, nil, nil, 0), nil)

	w, _ := perform(r, http.MethodPost, "/api/payments/pay-1/verify",
		`{"paymentId":"pay-1","transactionDigest":"d1","customerWalletAddress":"0xC0FFEE"}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, verifier.Requests, 1)
	assert.Equal(t, service.VerifyRequest{PaymentID: "pay-1", TxnDigest: "d1", CustomerWallet: "0xC0FFEE"}, verifier.Requests[0])
}

func TestVerifyPaymentRejectsConflictingPaymentID(t *testing.T) {
	verifier := &MockVerifier{}
	r := newTestRouter(NewPaymentHandler(verifier, nil, nil, 0), nil)

	w, _ := perform(r, http.MethodPost, "/api/payments/pay-1/verify",
		`{"paymentId":"pay-2","transactionDigest":"d1","customerWalletAddress":"0xC0FFEE"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, verifier.Requests)
}

func TestVerifyPaymentRetriesOnceAsFinal(t *testing.T) {
	verifier := &MockVerifier{VerifyFunc: func(req service.VerifyRequest) (*models.Payment, error) {
		if !req.Final {
			return nil, service.ErrTransactionNotFound
		}
		return paidPayment(""), nil
	}}
	r := newTestRouter(NewPaymentHandler(verifier, nil, nil, time.Millisecond), nil)

	w, _ := perform(r, http.MethodPost, "/api/payments/pay-1/verify", `{"txnHash":"digest-1"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, verifier.Requests, 2)
	assert.False(t, verifier.Requests[0].Final)
	assert.True(t, verifier.Requests[1].Final)
}

func TestVerifyPaymentNotFoundAfterRetry(t *testing.T) {
	verifier := &MockVerifier{VerifyFunc: func(service.VerifyRequest) (*models.Payment, error) {
		return nil, service.ErrTransactionNotFound
	}}
	r := newTestRouter(NewPaymentHandler(verifier, nil, nil, 0), nil)

	w, body := perform(r, http.MethodPost, "/api/payments/pay-1/verify", `{"txnHash":"digest-1"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "transaction_not_found", body["reason"])
	assert.Len(t, verifier.Requests, 2)
}

func TestVerifyPaymentErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{name: "payment not found", err: service.ErrPaymentNotFound, wantStatus: http.StatusNotFound},
		{name: "invalid request", err: service.ErrInvalidRequest, wantStatus: http.StatusBadRequest},
		{name: "transaction failed", err: service.ErrTransactionFailed, wantStatus: http.StatusBadRequest, wantReason: "transaction_failed"},
		{
			name:       "recipient mismatch",
			err:        &service.MismatchError{Reason: models.ReasonRecipientMismatch},
			wantStatus: http.StatusBadRequest,
			wantReason: "recipient_mismatch",
		},
		{
			name:       "amount insufficient",
			err:        &service.MismatchError{Reason: models.ReasonAmountInsufficient},
			wantStatus: http.StatusBadRequest,
			wantReason: "amount_insufficient",
		},
		{name: "already paid", err: service.ErrAlreadyPaid, wantStatus: http.StatusConflict},
		{name: "closed", err: service.ErrPaymentClosed, wantStatus: http.StatusConflict},
		{name: "missing recipient", err: service.ErrMissingRecipient, wantStatus: http.StatusUnprocessableEntity},
		{name: "corrupt record", err: service.ErrCorruptPayment, wantStatus: http.StatusInternalServerError},
		{name: "database down", err: errors.New("dial tcp: connection refused"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &MockVerifier{VerifyFunc: func(service.VerifyRequest) (*models.Payment, error) {
				return nil, tt.err
			}}
			r := newTestRouter(NewPaymentHandler(verifier, nil, nil, 0), nil)

			w, body := perform(r, http.MethodPost, "/api/payments/pay-1/verify", `{"txnHash":"digest-1"}`)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Len(t, verifier.Requests, 1)
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, body["reason"])
			} else {
				assert.NotContains(t, body, "reason")
			}
			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body["error"])
			}
		})
	}
}

func TestVerifyPaymentRejectsMalformedBody(t *testing.T) {
	verifier := &MockVerifier{}
	r := newTestRouter(NewPaymentHandler(verifier, nil, nil, 0), nil)

	w, _ := perform(r, http.MethodPost, "/api/payments/pay-1/verify", `{"txnHash":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, verifier.Requests)
}

func TestCreatePayment(t *testing.T) {
	creator := &MockCreator{CreateFunc: func(req service.CreatePaymentRequest) (*models.Payment, error) {
		return &models.Payment{
			ID:          "pay-9",
			MerchantID:  req.MerchantID,
			Amount:      *req.Amount,
			Status:      models.StatusPending,
			PaymentLink: "https://pay.example/pay/pay-9",
		}, nil
	}}
	r := newTestRouter(NewPaymentHandler(nil, creator, nil, 0), nil)

	w, body := perform(r, http.MethodPost, "/api/payments/create",
		`{"merchantId":"m-1","amount":"2.5","reference":"order-7"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "pay-9", body["paymentId"])
	assert.Equal(t, "https://pay.example/pay/pay-9", body["paymentLink"])
	assert.Equal(t, "m-1", creator.Request.MerchantID)
	assert.Equal(t, "order-7", creator.Request.Reference)
	require.NotNil(t, creator.Request.Amount)
	assert.Equal(t, "2.5", creator.Request.Amount.String())
}

func TestCreatePaymentErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{service.ErrInvalidRequest, http.StatusBadRequest},
		{service.ErrInvalidAmount, http.StatusBadRequest},
		{service.ErrMerchantNotFound, http.StatusNotFound},
		{service.ErrProductNotFound, http.StatusNotFound},
		{errors.New("insert failed"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		creator := &MockCreator{CreateFunc: func(service.CreatePaymentRequest) (*models.Payment, error) {
			return nil, tt.err
		}}
		r := newTestRouter(NewPaymentHandler(nil, creator, nil, 0), nil)

		w, _ := perform(r, http.MethodPost, "/api/payments/create", `{"productId":"prod-1"}`)
		assert.Equal(t, tt.wantStatus, w.Code, tt.err.Error())
	}
}

func TestGetPayment(t *testing.T) {
	repo := &MockPaymentRepository{GetByIDFunc: func(id string) (*models.Payment, error) {
		switch id {
		case "pay-1":
			return paidPayment(""), nil
		case "broken":
			return nil, repository.ErrCorruptRecord
		default:
			return nil, repository.ErrNotFound
		}
	}}
	r := newTestRouter(nil, NewPaymentStateHandler(repo))

	w, body := perform(r, http.MethodGet, "/api/payments/pay-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paid", body["status"])

	w, body = perform(r, http.MethodGet, "/api/payments/pay-1/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paid", body["state"])
	assert.Equal(t, "digest-1", body["txn_hash"])

	w, _ = perform(r, http.MethodGet, "/api/payments/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = perform(r, http.MethodGet, "/api/payments/broken/state", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
