package checkout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electrovision/storefront/internal/checkout"
)

func TestMetadata_SingleProductRoundTrip(t *testing.T) {
	in := checkout.SingleProduct{UserID: 7, ProductID: 42, Quantity: 3}

	got, err := checkout.ParseMetadata(in.Encode())
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestMetadata_CartRoundTrip(t *testing.T) {
	in := checkout.CartCheckout{UserID: 7, CartItemIDs: []int64{1, 2, 3}}

	got, err := checkout.ParseMetadata(in.Encode())
	require.NoError(t, err)
	// The ordered set must come back identical.
	assert.Equal(t, in, got)
}

func TestParseMetadata_Malformed(t *testing.T) {
	tests := []struct {
		name string
		md   map[string]string
	}{
		{"empty", map[string]string{}},
		{"unknown type", map[string]string{"checkoutType": "subscription", "userId": "1"}},
		{"non-numeric user id", map[string]string{"checkoutType": "cart", "userId": "abc", "cartItemIds": "[1]"}},
		{"negative user id", map[string]string{"checkoutType": "cart", "userId": "-1", "cartItemIds": "[1]"}},
		{"malformed item ids json", map[string]string{"checkoutType": "cart", "userId": "1", "cartItemIds": "[1,2"}},
		{"empty item ids", map[string]string{"checkoutType": "cart", "userId": "1", "cartItemIds": "[]"}},
		{"non-positive item id", map[string]string{"checkoutType": "cart", "userId": "1", "cartItemIds": "[1,0]"}},
		{"non-numeric product id", map[string]string{"checkoutType": "single_product", "userId": "1", "productId": "x", "quantity": "1"}},
		{"zero quantity", map[string]string{"checkoutType": "single_product", "userId": "1", "productId": "2", "quantity": "0"}},
		{"non-numeric quantity", map[string]string{"checkoutType": "single_product", "userId": "1", "productId": "2", "quantity": "two"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := checkout.ParseMetadata(tt.md)
			assert.ErrorIs(t, err, checkout.ErrMalformedMetadata)
		})
	}
}
