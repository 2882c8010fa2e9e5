package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akylbek/payment-system/payment-verifier/internal/models"
)

type MerchantRepository struct {
	db *sql.DB
}

func NewMerchantRepository(db *sql.DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

func (r *MerchantRepository) GetByID(ctx context.Context, merchantID string) (*models.Merchant, error) {
	var m models.Merchant
	var webhookURL sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, business_name, wallet_address, webhook_url, created_at
		FROM merchants WHERE id = $1
	`, merchantID).Scan(&m.ID, &m.BusinessName, &m.WalletAddress, &webhookURL, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	m.WebhookURL = webhookURL.String
	return &m, nil
}

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) GetByID(ctx context.Context, productID string) (*models.Product, error) {
	var p models.Product
	var merchantID, redirectURL, link, price sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, merchant_id, name, price_in_sui, merchant_address, redirect_url, payment_link
		FROM products WHERE id = $1
	`, productID).Scan(&p.ID, &merchantID, &p.Name, &price, &p.MerchantAddress, &redirectURL, &link)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.PriceInSui, err = parseAmount(price)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", productID, err)
	}
	p.MerchantID = merchantID.String
	p.RedirectURL = redirectURL.String
	p.PaymentLink = link.String

	return &p, nil
}
