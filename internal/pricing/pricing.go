// Package pricing derives the chargeable amount for a checkout: per-line
// amounts in minor currency units plus a single synthetic transaction-fee
// line. All math is exact decimal; cents are produced only at the edges.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrEmptyCheckout = errors.New("checkout must contain at least one item")

// BaseFeeCents is the flat part of the transaction fee, charged once per
// checkout regardless of size.
const BaseFeeCents int64 = 500

var (
	cent       = decimal.NewFromInt(100)
	feePercent = decimal.RequireFromString("0.05")

	discountMid  = decimal.RequireFromString("0.3")
	discountHigh = decimal.RequireFromString("0.5")
)

type Line struct {
	Name        string
	Description string
	ImageURL    string
	UnitPrice   decimal.Decimal
	Quantity    int
}

type QuotedLine struct {
	Line
	// UnitAmountCents is the unit price in minor units, rounded half up.
	UnitAmountCents int64
}

type Quote struct {
	Lines         []QuotedLine
	Subtotal      decimal.Decimal
	TotalQuantity int
	FeeCents      int64
}

// DiscountPercent is tiered by the total quantity across the whole
// checkout, not per line: 0% for 1-5 units, 30% for 6-11, 50% for 12+.
func DiscountPercent(totalQuantity int) decimal.Decimal {
	switch {
	case totalQuantity >= 12:
		return discountHigh
	case totalQuantity >= 6:
		return discountMid
	default:
		return decimal.Zero
	}
}

// TransactionFee computes the fee in cents for a checkout with the given
// subtotal (major units) and total quantity. The percentage part is rounded
// exactly once, after the discount is applied.
func TransactionFee(subtotal decimal.Decimal, totalQuantity int) int64 {
	discounted := subtotal.Mul(feePercent).Mul(cent).
		Mul(decimal.NewFromInt(1).Sub(DiscountPercent(totalQuantity)))
	return BaseFeeCents + discounted.Round(0).IntPart()
}

// NewQuote prices an ordered sequence of checkout lines. Both call shapes
// (one product with any quantity, or multiple distinct cart lines) go
// through here; only the subtotal aggregation differs.
func NewQuote(lines []Line) (*Quote, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCheckout
	}

	q := &Quote{Subtotal: decimal.Zero}
	for _, ln := range lines {
		if ln.Quantity <= 0 {
			return nil, errors.New("pricing: line quantity must be positive")
		}
		q.Lines = append(q.Lines, QuotedLine{
			Line:            ln,
			UnitAmountCents: ln.UnitPrice.Mul(cent).Round(0).IntPart(),
		})
		q.TotalQuantity += ln.Quantity
		q.Subtotal = q.Subtotal.Add(ln.UnitPrice.Mul(decimal.NewFromInt(int64(ln.Quantity))))
	}
	q.FeeCents = TransactionFee(q.Subtotal, q.TotalQuantity)
	return q, nil
}
