package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusPaid    PaymentStatus = "paid"
	StatusFailed  PaymentStatus = "failed"
)

// DefaultCurrency is the merchant-facing currency of every payment link.
const DefaultCurrency = "SUI"

type Payment struct {
	ID             string          `json:"id"`
	MerchantID     string          `json:"merchant_id,omitempty"`
	ProductID      string          `json:"product_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Description    string          `json:"description,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	Recipient      string          `json:"merchant_address,omitempty"`
	PaymentLink    string          `json:"payment_link,omitempty"`
	Status         PaymentStatus   `json:"status"`
	TxnDigest      string          `json:"txn_hash,omitempty"`
	CustomerWallet string          `json:"customer_wallet,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
}

func (p *Payment) IsPending() bool {
	return p.Status == StatusPending
}

type Merchant struct {
	ID            string    `json:"id"`
	BusinessName  string    `json:"business_name"`
	WalletAddress string    `json:"wallet_address"`
	WebhookURL    string    `json:"webhook_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Product struct {
	ID              string          `json:"id"`
	MerchantID      string          `json:"merchant_id,omitempty"`
	Name            string          `json:"name"`
	PriceInSui      decimal.Decimal `json:"price_in_sui"`
	MerchantAddress string          `json:"merchant_address"`
	RedirectURL     string          `json:"redirect_url,omitempty"`
	PaymentLink     string          `json:"payment_link,omitempty"`
}

// StateChangeEvent is published whenever a payment leaves the pending state.
type StateChangeEvent struct {
	PaymentID     string        `json:"payment_id"`
	State         PaymentStatus `json:"state"`
	PreviousState PaymentStatus `json:"previous_state"`
	TxnDigest     string        `json:"txn_hash,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// VerificationRequestedEvent asks the verifier to check a submitted
// transaction asynchronously.
type VerificationRequestedEvent struct {
	PaymentID      string `json:"payment_id"`
	TxnDigest      string `json:"txn_hash"`
	CustomerWallet string `json:"customer_wallet,omitempty"`
}
