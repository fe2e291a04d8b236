package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Checkout type tags carried in the payment session metadata.
const (
	TypeSingleProduct = "single_product"
	TypeCart          = "cart"
)

// Metadata keys. Stripe constrains all metadata values to strings, so
// numeric and array fields are serialized to text and must be parsed back
// with validation on the webhook side.
const (
	mdCheckoutType = "checkoutType"
	mdUserID       = "userId"
	mdProductID    = "productId"
	mdQuantity     = "quantity"
	mdCartItemIDs  = "cartItemIds"
)

var ErrMalformedMetadata = errors.New("malformed payment metadata")

// PaymentMetadata is the tagged variant the fulfillment engine dispatches
// on: exactly one of SingleProduct or CartCheckout.
type PaymentMetadata interface {
	Encode() map[string]string
	sealed()
}

type SingleProduct struct {
	UserID    int64
	ProductID int64
	Quantity  int
}

type CartCheckout struct {
	UserID      int64
	CartItemIDs []int64
}

func (SingleProduct) sealed() {}
func (CartCheckout) sealed()  {}

func (m SingleProduct) Encode() map[string]string {
	return map[string]string{
		mdCheckoutType: TypeSingleProduct,
		mdUserID:       strconv.FormatInt(m.UserID, 10),
		mdProductID:    strconv.FormatInt(m.ProductID, 10),
		mdQuantity:     strconv.Itoa(m.Quantity),
	}
}

func (m CartCheckout) Encode() map[string]string {
	ids, _ := json.Marshal(m.CartItemIDs)
	return map[string]string{
		mdCheckoutType: TypeCart,
		mdUserID:       strconv.FormatInt(m.UserID, 10),
		mdCartItemIDs:  string(ids),
	}
}

// ParseMetadata validates the provider-echoed string map once, at the
// boundary. Anything downstream can trust the typed result.
func ParseMetadata(md map[string]string) (PaymentMetadata, error) {
	userID, err := parsePositiveInt64(md[mdUserID])
	if err != nil {
		return nil, fmt.Errorf("%w: user id %q", ErrMalformedMetadata, md[mdUserID])
	}

	switch md[mdCheckoutType] {
	case TypeSingleProduct:
		productID, err := parsePositiveInt64(md[mdProductID])
		if err != nil {
			return nil, fmt.Errorf("%w: product id %q", ErrMalformedMetadata, md[mdProductID])
		}
		quantity, err := strconv.Atoi(md[mdQuantity])
		if err != nil || quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity %q", ErrMalformedMetadata, md[mdQuantity])
		}
		return SingleProduct{UserID: userID, ProductID: productID, Quantity: quantity}, nil

	case TypeCart:
		var ids []int64
		if err := json.Unmarshal([]byte(md[mdCartItemIDs]), &ids); err != nil {
			return nil, fmt.Errorf("%w: cart item ids %q", ErrMalformedMetadata, md[mdCartItemIDs])
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: empty cart item ids", ErrMalformedMetadata)
		}
		for _, id := range ids {
			if id <= 0 {
				return nil, fmt.Errorf("%w: cart item id %d", ErrMalformedMetadata, id)
			}
		}
		return CartCheckout{UserID: userID, CartItemIDs: ids}, nil

	default:
		return nil, fmt.Errorf("%w: unknown checkout type %q", ErrMalformedMetadata, md[mdCheckoutType])
	}
}

func parsePositiveInt64(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("not a positive integer: %q", s)
	}
	return v, nil
}
