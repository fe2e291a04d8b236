package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electrovision/storefront/internal/pricing"
)

func TestDiscountPercent_Tiers(t *testing.T) {
	tests := []struct {
		quantity int
		want     string
	}{
		{1, "0"},
		{5, "0"},
		{6, "0.3"},
		{11, "0.3"},
		{12, "0.5"},
		{50, "0.5"},
	}
	for _, tt := range tests {
		got := pricing.DiscountPercent(tt.quantity)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
			"quantity %d: want %s, got %s", tt.quantity, tt.want, got)
	}
}

func TestTransactionFee_RoundsOnceAfterDiscount(t *testing.T) {
	// subtotal 100.00 (10000 cents), 6 units:
	// 500 + round(10000 * 0.05 * 0.7) = 500 + 350
	fee := pricing.TransactionFee(decimal.RequireFromString("100.00"), 6)
	assert.Equal(t, int64(850), fee)

	// Fractional cents must survive until the single final rounding:
	// subtotal 33.33 -> 3333 * 0.05 = 166.65, * 0.7 = 116.655 -> 117
	fee = pricing.TransactionFee(decimal.RequireFromString("33.33"), 6)
	assert.Equal(t, int64(617), fee)

	// No discount tier: 3333 * 0.05 = 166.65 -> 167
	fee = pricing.TransactionFee(decimal.RequireFromString("33.33"), 1)
	assert.Equal(t, int64(667), fee)
}

func TestNewQuote_SingleLine(t *testing.T) {
	q, err := pricing.NewQuote([]pricing.Line{
		{Name: "Keyboard", UnitPrice: decimal.RequireFromString("199.90"), Quantity: 2},
	})
	require.NoError(t, err)

	require.Len(t, q.Lines, 1)
	assert.Equal(t, int64(19990), q.Lines[0].UnitAmountCents)
	assert.Equal(t, 2, q.TotalQuantity)
	assert.True(t, q.Subtotal.Equal(decimal.RequireFromString("399.80")))
	// 500 + round(39980 * 0.05) = 500 + 1999
	assert.Equal(t, int64(2499), q.FeeCents)
}

func TestNewQuote_MultipleLines_DiscountByTotalQuantity(t *testing.T) {
	// 4 + 3 units crosses the 6-unit tier even though no single line does.
	q, err := pricing.NewQuote([]pricing.Line{
		{Name: "Mouse", UnitPrice: decimal.RequireFromString("25.00"), Quantity: 4},
		{Name: "Hub", UnitPrice: decimal.RequireFromString("40.00"), Quantity: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, 7, q.TotalQuantity)
	assert.True(t, q.Subtotal.Equal(decimal.RequireFromString("220.00")))
	// 500 + round(22000 * 0.05 * 0.7) = 500 + 770
	assert.Equal(t, int64(1270), q.FeeCents)
}

func TestNewQuote_EmptyCheckoutRejected(t *testing.T) {
	_, err := pricing.NewQuote(nil)
	assert.ErrorIs(t, err, pricing.ErrEmptyCheckout)
}

func TestNewQuote_NonPositiveQuantityRejected(t *testing.T) {
	_, err := pricing.NewQuote([]pricing.Line{
		{Name: "Mouse", UnitPrice: decimal.RequireFromString("25.00"), Quantity: 0},
	})
	assert.Error(t, err)
}
