package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-verifier/internal/models"
	"github.com/akylbek/payment-system/payment-verifier/internal/telemetry"
)

const (
	EventPaymentSuccess = "payment.success"

	SignatureHeader = "X-Signature"
	EventHeader     = "X-Event-Type"

	DefaultTimeout = 10 * time.Second
)

// Event is the payload posted to a merchant's webhook URL.
type Event struct {
	Event     string      `json:"event"`
	PaymentID string      `json:"paymentId"`
	Amount    json.Number `json:"amount"`
	Txn       string      `json:"txn"`
	Status    string      `json:"status"`
	Reference string      `json:"reference,omitempty"`
	PaidAt    *time.Time  `json:"paidAt,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Job is one webhook delivery.
type Job struct {
	URL   string `json:"url"`
	Event Event  `json:"event"`
}

func PaymentSuccessEvent(p *models.Payment) Event {
	return Event{
		Event:     EventPaymentSuccess,
		PaymentID: p.ID,
		Amount:    json.Number(p.Amount.String()),
		Txn:       p.TxnDigest,
		Status:    string(p.Status),
		Reference: p.Reference,
		PaidAt:    p.PaidAt,
		CreatedAt: p.CreatedAt,
	}
}

type DispatcherConfig struct {
	// Secret signs request bodies with HMAC-SHA256 when set (optional)
	Secret string

	// Timeout for a single delivery (optional, defaults to 10s)
	Timeout time.Duration

	// HTTPClient overrides the transport (optional)
	HTTPClient *http.Client
}

// Dispatcher performs single-attempt webhook deliveries. Failures are logged
// and counted, never returned.
type Dispatcher struct {
	http   *resty.Client
	secret []byte
}

func NewDispatcher(config *DispatcherConfig) *Dispatcher {
	if config == nil {
		config = &DispatcherConfig{}
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	var client *resty.Client
	if config.HTTPClient != nil {
		client = resty.NewWithClient(config.HTTPClient)
	} else {
		client = resty.New()
	}
	client.SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")

	d := &Dispatcher{http: client}
	if config.Secret != "" {
		d.secret = []byte(config.Secret)
	}
	return d
}

func (d *Dispatcher) Deliver(ctx context.Context, job Job) {
	if job.URL == "" {
		return
	}

	if err := d.post(ctx, job); err != nil {
		telemetry.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
		telemetry.Logger.Warn("Webhook delivery failed",
			zap.String("payment_id", job.Event.PaymentID),
			zap.String("url", job.URL),
			zap.Error(err),
		)
		return
	}

	telemetry.WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()
	telemetry.Logger.Info("Webhook delivered",
		zap.String("payment_id", job.Event.PaymentID),
		zap.String("event", job.Event.Event),
	)
}

func (d *Dispatcher) post(ctx context.Context, job Job) error {
	body, err := json.Marshal(job.Event)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req := d.http.R().
		SetContext(ctx).
		SetHeader(EventHeader, job.Event.Event).
		SetBody(body)
	if d.secret != nil {
		req.SetHeader(SignatureHeader, Sign(d.secret, body))
	}

	resp, err := req.Post(job.URL)
	if err != nil {
		return err
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode())
	}
	return nil
}

// Sign returns the X-Signature value for body: "sha256=" followed by the hex
// HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
