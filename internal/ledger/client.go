package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-verifier/internal/telemetry"
)

const (
	DefaultRPCURL  = "https://fullnode.testnet.sui.io:443"
	DefaultTimeout = 5 * time.Second

	methodGetTransactionBlock = "sui_getTransactionBlock"

	// Sui answers an unknown or malformed digest with an invalid-params error.
	rpcCodeInvalidParams = -32602
)

type ClientConfig struct {
	// URL of the full node JSON-RPC endpoint
	URL string

	// Timeout bounds a single lookup (defaults to 5s)
	Timeout time.Duration

	// HTTPClient overrides the transport (optional)
	HTTPClient *http.Client
}

// Client looks up finalized transactions on a Sui full node. Each call is a
// single request; callers own any retry policy.
type Client struct {
	rpc   *resty.Client
	url   string
	reqID atomic.Int64
}

func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = &ClientConfig{}
	}

	url := config.URL
	if url == "" {
		url = DefaultRPCURL
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	var rpc *resty.Client
	if config.HTTPClient != nil {
		rpc = resty.NewWithClient(config.HTTPClient)
	} else {
		rpc = resty.New()
	}
	rpc.SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{rpc: rpc, url: url}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result *transactionBlock `json:"result"`
	Error  *rpcError         `json:"error"`
}

type transactionBlock struct {
	Digest  string `json:"digest"`
	Effects *struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
	} `json:"effects"`
	BalanceChanges []struct {
		Owner    Owner  `json:"owner"`
		CoinType string `json:"coinType"`
		Amount   string `json:"amount"`
	} `json:"balanceChanges"`
	Events []struct {
		Type       string                 `json:"type"`
		Sender     string                 `json:"sender"`
		ParsedJSON map[string]interface{} `json:"parsedJson"`
	} `json:"events"`
}

// GetTransaction fetches the transaction with its effects status, balance
// changes and events. It returns ErrNotFound when the node does not know the
// digest.
func (c *Client) GetTransaction(ctx context.Context, digest string) (*Transaction, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "ledger.GetTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("ledger.digest", digest))

	start := time.Now()
	tx, err := c.getTransaction(ctx, digest)

	result := "found"
	switch {
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
		span.RecordError(err)
	}
	telemetry.LedgerQueryDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	return tx, err
}

func (c *Client) getTransaction(ctx context.Context, digest string) (*Transaction, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  methodGetTransactionBlock,
		Params: []interface{}{
			digest,
			map[string]bool{
				"showEffects":        true,
				"showBalanceChanges": true,
				"showEvents":         true,
			},
		},
	}

	resp, err := c.rpc.R().
		SetContext(ctx).
		SetBody(req).
		Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("ledger returned non-2xx status: %d", resp.StatusCode())
	}

	var body rpcResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("failed to decode ledger response: %w", err)
	}

	if body.Error != nil {
		if isNotFound(body.Error) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, digest)
		}
		return nil, body.Error
	}

	if body.Result == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, digest)
	}

	return body.Result.toTransaction(digest)
}

func isNotFound(e *rpcError) bool {
	if e.Code == rpcCodeInvalidParams {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "could not find") || strings.Contains(msg, "not found")
}

func (b *transactionBlock) toTransaction(requested string) (*Transaction, error) {
	tx := &Transaction{
		Digest:         b.Digest,
		BalanceChanges: make([]BalanceChange, 0, len(b.BalanceChanges)),
		Events:         make([]Event, 0, len(b.Events)),
	}
	if tx.Digest == "" {
		tx.Digest = requested
	}

	if b.Effects == nil {
		// Without effects the node cannot vouch for finality.
		return nil, fmt.Errorf("ledger response for %s carries no effects", requested)
	}
	tx.Status = ExecutionStatus(b.Effects.Status.Status)
	tx.ExecError = b.Effects.Status.Error

	for _, bc := range b.BalanceChanges {
		amount, err := decimal.NewFromString(bc.Amount)
		if err != nil {
			telemetry.Logger.Warn("Skipping balance change with malformed amount",
				zap.String("digest", tx.Digest),
				zap.String("amount", bc.Amount),
			)
			continue
		}
		tx.BalanceChanges = append(tx.BalanceChanges, BalanceChange{
			Owner:    bc.Owner,
			CoinType: bc.CoinType,
			Amount:   amount,
		})
	}

	for _, ev := range b.Events {
		tx.Events = append(tx.Events, Event{
			Type:       ev.Type,
			Sender:     NormalizeAddress(ev.Sender),
			ParsedJSON: ev.ParsedJSON,
		})
	}

	return tx, nil
}
