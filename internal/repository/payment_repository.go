package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/payment-verifier/internal/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrCorruptRecord = errors.New("corrupt record")
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// InitDB creates the tables this service reads and writes. Merchants and
// products are owned by other parts of the platform; the definitions here only
// cover the columns verification depends on.
func (r *PaymentRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS merchants (
			id VARCHAR(64) PRIMARY KEY,
			business_name VARCHAR(255) NOT NULL DEFAULT '',
			wallet_address VARCHAR(128) NOT NULL,
			webhook_url TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id VARCHAR(64) PRIMARY KEY,
			merchant_id VARCHAR(64) REFERENCES merchants(id),
			name VARCHAR(255) NOT NULL,
			price_in_sui NUMERIC(30, 9) NOT NULL,
			merchant_address VARCHAR(128) NOT NULL,
			redirect_url TEXT,
			payment_link TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id VARCHAR(64) PRIMARY KEY,
			merchant_id VARCHAR(64) REFERENCES merchants(id),
			product_id VARCHAR(64) REFERENCES products(id),
			amount NUMERIC(30, 9) NOT NULL,
			currency VARCHAR(16) NOT NULL DEFAULT 'SUI',
			description TEXT,
			reference VARCHAR(255),
			recipient VARCHAR(128),
			payment_link TEXT,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			txn_digest VARCHAR(128),
			customer_wallet VARCHAR(128),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			paid_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_merchant ON payments(merchant_id)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	if p.Amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrCorruptRecord, p.Amount)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, merchant_id, product_id, amount, currency, description,
			reference, recipient, payment_link, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, nullString(p.MerchantID), nullString(p.ProductID), p.Amount.String(), p.Currency,
		nullString(p.Description), nullString(p.Reference), nullString(p.Recipient),
		nullString(p.PaymentLink), p.Status, p.CreatedAt)
	return err
}

func (r *PaymentRepository) GetByID(ctx context.Context, paymentID string) (*models.Payment, error) {
	var p models.Payment
	var merchantID, productID, description, ref sql.NullString
	var recipient, link, txnDigest, wallet, amount sql.NullString
	var paidAt sql.NullTime

	err := r.db.QueryRowContext(ctx, `
		SELECT id, merchant_id, product_id, amount, currency, description, reference,
			recipient, payment_link, status, txn_digest, customer_wallet, created_at, paid_at
		FROM payments WHERE id = $1
	`, paymentID).Scan(&p.ID, &merchantID, &productID, &amount, &p.Currency, &description, &ref,
		&recipient, &link, &p.Status, &txnDigest, &wallet, &p.CreatedAt, &paidAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Amount, err = parseAmount(amount)
	if err != nil {
		return nil, fmt.Errorf("payment %s: %w", paymentID, err)
	}

	p.MerchantID = merchantID.String
	p.ProductID = productID.String
	p.Description = description.String
	p.Reference = ref.String
	p.Recipient = recipient.String
	p.PaymentLink = link.String
	p.TxnDigest = txnDigest.String
	p.CustomerWallet = wallet.String
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}

	return &p, nil
}

// MarkPaid moves a pending payment to paid. It returns false when the payment
// was no longer pending, in which case nothing was written.
func (r *PaymentRepository) MarkPaid(ctx context.Context, paymentID, txnDigest, customerWallet string, paidAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, txn_digest = $2, customer_wallet = $3, paid_at = $4
		WHERE id = $5 AND status = $6
	`, models.StatusPaid, txnDigest, nullString(customerWallet), paidAt, paymentID, models.StatusPending)
	if err != nil {
		return false, err
	}
	return exactlyOne(result)
}

// MarkFailed moves a pending payment to failed, recording the digest that
// failed it.
func (r *PaymentRepository) MarkFailed(ctx context.Context, paymentID, txnDigest string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, txn_digest = $2
		WHERE id = $3 AND status = $4
	`, models.StatusFailed, txnDigest, paymentID, models.StatusPending)
	if err != nil {
		return false, err
	}
	return exactlyOne(result)
}

// PurgeCorrupt deletes pending payments whose amount violates the
// non-negative invariant and returns how many were removed.
func (r *PaymentRepository) PurgeCorrupt(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM payments WHERE status = $1 AND amount < 0`, models.StatusPending)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func exactlyOne(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func parseAmount(raw sql.NullString) (decimal.Decimal, error) {
	if !raw.Valid {
		return decimal.Zero, fmt.Errorf("%w: missing amount", ErrCorruptRecord)
	}
	amount, err := decimal.NewFromString(raw.String)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: non-numeric amount %q", ErrCorruptRecord, raw.String)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative amount %s", ErrCorruptRecord, raw.String)
	}
	return amount, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
