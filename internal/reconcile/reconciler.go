// Package reconcile matches an expected merchant amount against the balance
// movement a ledger transaction actually produced.
package reconcile

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/payment-verifier/internal/ledger"
	"github.com/akylbek/payment-system/payment-verifier/internal/models"
)

var (
	// BaseUnitsPerCoin converts one merchant-currency unit to ledger base units.
	BaseUnitsPerCoin = decimal.New(1, 9)

	// Tolerance absorbs network fee deductions: 0.001 of one currency unit.
	Tolerance = decimal.New(1, 6)
)

var eventRecipientKeys = []string{"recipient", "to", "receiver"}

// ToBaseUnits converts a merchant-currency amount to base units, flooring any
// fraction smaller than one base unit.
func ToBaseUnits(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(BaseUnitsPerCoin).Floor()
}

// WithinTolerance reports whether observed is within Tolerance of expected.
func WithinTolerance(expected, observed decimal.Decimal) bool {
	return expected.Sub(observed).Abs().LessThanOrEqual(Tolerance)
}

// Reconcile returns ok for the first native-asset credit to recipient that is
// within tolerance of expected. When balance changes do not settle it, transfer
// events addressed to recipient are consulted, since some nodes omit balance
// changes for certain transaction shapes. Such an event settles the payment
// on its recipient alone.
func Reconcile(expected decimal.Decimal, recipient string, changes []ledger.BalanceChange, events []ledger.Event) models.VerificationResult {
	want := ToBaseUnits(expected)
	recipient = ledger.NormalizeAddress(recipient)
	if recipient == "" {
		return models.Invalid(models.ReasonRecipientMismatch)
	}

	creditedRecipient := false
	for _, bc := range changes {
		if bc.Owner.Address() != recipient || !ledger.IsNativeCoin(bc.CoinType) || !bc.Amount.IsPositive() {
			continue
		}
		creditedRecipient = true
		if WithinTolerance(want, bc.Amount) {
			return models.Valid()
		}
	}

	for _, ev := range events {
		if isTransferEvent(ev) && eventRecipient(ev) == recipient {
			return models.Valid()
		}
	}

	if creditedRecipient {
		return models.Invalid(models.ReasonAmountInsufficient)
	}
	return models.Invalid(models.ReasonRecipientMismatch)
}

func isTransferEvent(ev ledger.Event) bool {
	return strings.Contains(strings.ToLower(ev.Type), "transfer")
}

func eventRecipient(ev ledger.Event) string {
	for _, key := range eventRecipientKeys {
		if v, ok := ev.ParsedJSON[key].(string); ok && v != "" {
			return ledger.NormalizeAddress(v)
		}
	}
	return ""
}
