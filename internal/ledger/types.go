package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotFound means the node has no record of the digest. A transaction that
// exists but failed execution is reported through Transaction.Status instead.
var ErrNotFound = errors.New("ledger: transaction not found")

// NativeCoinType is the fully qualified type of the platform's native asset.
const NativeCoinType = "0x2::sui::SUI"

type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailure ExecutionStatus = "failure"
)

type Transaction struct {
	Digest         string          `json:"digest"`
	Status         ExecutionStatus `json:"status"`
	ExecError      string          `json:"exec_error,omitempty"`
	BalanceChanges []BalanceChange `json:"balance_changes"`
	Events         []Event         `json:"events"`
}

func (t *Transaction) Succeeded() bool {
	return t.Status == ExecutionSuccess
}

// BalanceChange is a signed movement of a coin type for one owner, in base units.
type BalanceChange struct {
	Owner    Owner           `json:"owner"`
	CoinType string          `json:"coin_type"`
	Amount   decimal.Decimal `json:"amount"`
}

type Event struct {
	Type       string                 `json:"type"`
	Sender     string                 `json:"sender,omitempty"`
	ParsedJSON map[string]interface{} `json:"parsed_json,omitempty"`
}

type OwnerKind string

const (
	OwnerAddress   OwnerKind = "AddressOwner"
	OwnerObject    OwnerKind = "ObjectOwner"
	OwnerShared    OwnerKind = "Shared"
	OwnerImmutable OwnerKind = "Immutable"
)

// Owner is the owner of a balance change. Nodes report it either as a bare
// address string or wrapped in an owner-kind object; both decode to the same
// canonical address.
type Owner struct {
	Kind    OwnerKind
	address string
}

func AddressOwnerOf(addr string) Owner {
	return Owner{Kind: OwnerAddress, address: NormalizeAddress(addr)}
}

// Address returns the canonical owner address, or "" for shared and
// immutable owners.
func (o Owner) Address() string {
	return o.address
}

func (o *Owner) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if OwnerKind(s) == OwnerImmutable {
			*o = Owner{Kind: OwnerImmutable}
			return nil
		}
		*o = AddressOwnerOf(s)
		return nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("ledger: unsupported owner %s", string(data))
	}

	for _, kind := range []OwnerKind{OwnerAddress, OwnerObject} {
		raw, ok := wrapped[string(kind)]
		if !ok {
			continue
		}
		var addr string
		if err := json.Unmarshal(raw, &addr); err != nil {
			return fmt.Errorf("ledger: %s owner: %w", kind, err)
		}
		*o = Owner{Kind: kind, address: NormalizeAddress(addr)}
		return nil
	}

	if _, ok := wrapped[string(OwnerShared)]; ok {
		*o = Owner{Kind: OwnerShared}
		return nil
	}

	// Owner kinds this service does not know can never be a merchant wallet.
	for kind := range wrapped {
		*o = Owner{Kind: OwnerKind(kind)}
		return nil
	}
	return fmt.Errorf("ledger: empty owner %s", string(data))
}

func (o Owner) MarshalJSON() ([]byte, error) {
	switch o.Kind {
	case OwnerImmutable:
		return json.Marshal(string(OwnerImmutable))
	case OwnerAddress, "":
		return json.Marshal(map[string]string{string(OwnerAddress): o.address})
	case OwnerObject:
		return json.Marshal(map[string]string{string(OwnerObject): o.address})
	default:
		return json.Marshal(map[string]interface{}{string(o.Kind): struct{}{}})
	}
}

// NormalizeAddress lowercases a hex address and left-pads it to 32 bytes so
// short and long spellings compare equal. Non-hex input is only trimmed and
// lowercased.
func NormalizeAddress(addr string) string {
	a := strings.ToLower(strings.TrimSpace(addr))
	hex := strings.TrimPrefix(a, "0x")
	if hex == "" || len(hex) > 64 || !isHex(hex) {
		return a
	}
	return "0x" + strings.Repeat("0", 64-len(hex)) + hex
}

// IsNativeCoin reports whether coinType names the native asset, accepting the
// short and zero-padded package address forms.
func IsNativeCoin(coinType string) bool {
	parts := strings.SplitN(strings.TrimSpace(coinType), "::", 2)
	if len(parts) != 2 {
		return false
	}
	return NormalizeAddress(parts[0]) == NormalizeAddress("0x2") && parts[1] == "sui::SUI"
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
