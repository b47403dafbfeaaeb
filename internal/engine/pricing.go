package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"barledger/backend/internal/domain"
)

var (
	// taxServiceRate combines 10% consumption tax and 20% service charge.
	taxServiceRate = decimal.RequireFromString("1.2")
	cardRate       = decimal.RequireFromString("1.1")
)

type OrderLine struct {
	UnitPrice        int64                  `json:"unit_price"`
	Quantity         int                    `json:"quantity"`
	TaxApplicable    bool                   `json:"tax_applicable"`
	Category         domain.ProductCategory `json:"category"`
	ExtensionMinutes int                    `json:"extension_minutes,omitempty"`
	IsCancelled      bool                   `json:"is_cancelled"`
}

// LineCharge is the customer-facing charge of one line. Taxable lines are
// floored individually before any summing.
func LineCharge(unitPrice int64, quantity int, taxApplicable bool) (int64, error) {
	if unitPrice < 0 {
		return 0, invalidInput("unit_price", "must not be negative")
	}
	if quantity < 0 {
		return 0, invalidInput("quantity", "must not be negative")
	}
	gross := yen(unitPrice).Mul(decimal.NewFromInt(int64(quantity)))
	if !taxApplicable {
		return gross.IntPart(), nil
	}
	return gross.Mul(taxServiceRate).Floor().IntPart(), nil
}

// LinesSubtotal sums the line charges of non-cancelled lines without the final rounding.
func LinesSubtotal(lines []OrderLine) (int64, error) {
	var sum int64
	for i, line := range lines {
		if line.IsCancelled {
			continue
		}
		charge, err := LineCharge(line.UnitPrice, line.Quantity, line.TaxApplicable)
		if err != nil {
			return 0, fmt.Errorf("line %d: %w", i, err)
		}
		sum += charge
	}
	return sum, nil
}

// BillTotal sums non-cancelled line charges and adjustment deltas, then
// floors the grand sum to 10 yen.
func BillTotal(lines []OrderLine, adjustments []int64) (int64, error) {
	sum, err := LinesSubtotal(lines)
	if err != nil {
		return 0, err
	}
	for _, delta := range adjustments {
		sum += delta
	}
	total := FloorToNearest10(yen(sum))
	if total < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeTotal, total)
	}
	return total, nil
}

func ApplyTaxServiceAndRound(base decimal.Decimal) int64 {
	return FloorToNearest10(base.Mul(taxServiceRate))
}

func HasCardSurcharge(method domain.PaymentMethod) bool {
	switch method {
	case domain.PaymentCard, domain.PaymentQR, domain.PaymentContactless, domain.PaymentSplit:
		return true
	default:
		return false
	}
}

func CardTaxAmount(total int64) int64 {
	return CeilToNearest100(yen(total).Mul(cardRate))
}

// CardSurcharge returns the amount shown to the customer for the chosen
// payment method. It is a display value and never stored on the bill.
func CardSurcharge(total int64, method domain.PaymentMethod) int64 {
	if !HasCardSurcharge(method) {
		return total
	}
	return CardTaxAmount(total)
}

// ExtensionPreview applies tax and service to the pre-tax base plus the extension price.
func ExtensionPreview(currentBase decimal.Decimal, extensionPrice int64) int64 {
	return ApplyTaxServiceAndRound(currentBase.Add(yen(extensionPrice)))
}

// PreTaxBase reverses the tax and service multiplier on a displayed total,
// rounded to two decimals. Line flooring and the final 10 yen floor are not
// recoverable, so the result is an approximation of the ledger base.
func PreTaxBase(displayedTotal int64) decimal.Decimal {
	return yen(displayedTotal).DivRound(taxServiceRate, 2)
}
