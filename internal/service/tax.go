package service

import (
	"bizledger/internal/model"

	"github.com/shopspring/decimal"
)

var (
	// TaxRate is the single VAT rate applied to every taxed document.
	TaxRate    = decimal.RequireFromString("0.20")
	taxDivisor = decimal.NewFromInt(1).Add(TaxRate)
)

// Totals holds full-precision document totals. Round only when rendering.
type Totals struct {
	Exclusive decimal.Decimal
	Tax       decimal.Decimal
	Payable   decimal.Decimal
}

// Settlement is the payable amount in currency units, the figure payments
// are compared against.
func (t Totals) Settlement() decimal.Decimal {
	return t.Payable.Round(2)
}

// ExclusiveAmount strips tax from a tax-inclusive amount.
func ExclusiveAmount(inclusive decimal.Decimal) decimal.Decimal {
	return inclusive.Div(taxDivisor)
}

// InclusiveAmount adds tax to a tax-exclusive amount.
func InclusiveAmount(exclusive decimal.Decimal) decimal.Decimal {
	return exclusive.Mul(taxDivisor)
}

// LineExclusiveTotal is (unit price - discount) x quantity, with tax removed
// from both amounts when the document is taxed.
func LineExclusiveTotal(line model.DocumentLine, taxIncluded bool) decimal.Decimal {
	unit, discount := line.UnitPrice, line.Discount
	if taxIncluded {
		unit = ExclusiveAmount(unit)
		discount = ExclusiveAmount(discount)
	}
	return unit.Sub(discount).Mul(decimal.NewFromInt(int64(line.Quantity)))
}

func ComputeTotals(doc *model.Document) Totals {
	exclusive := decimal.Zero
	for _, line := range doc.Lines {
		exclusive = exclusive.Add(LineExclusiveTotal(line, doc.TaxIncluded))
	}
	if !doc.TaxIncluded {
		return Totals{Exclusive: exclusive, Tax: decimal.Zero, Payable: exclusive}
	}
	tax := exclusive.Mul(TaxRate)
	return Totals{Exclusive: exclusive, Tax: tax, Payable: exclusive.Add(tax)}
}
