package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/electrovision/storefront/internal/cart"
	"github.com/electrovision/storefront/internal/catalog"
	"github.com/electrovision/storefront/internal/pricing"
)

var (
	ErrInsufficientStock = errors.New("not enough items in stock")
	ErrNotOwnedItem      = errors.New("selected cart item is not from your cart")
	ErrNoItemsSelected   = errors.New("no selected cart items found")
)

// SessionCreator is the slice of the Stripe API the initiator needs;
// tests substitute a stub.
type SessionCreator interface {
	Create(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeSessions struct{ api *client.API }

func NewStripeSessions(apiKey string) SessionCreator {
	return &stripeSessions{api: client.New(apiKey, nil)}
}

func (s *stripeSessions) Create(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return s.api.CheckoutSessions.New(params)
}

// Initiator validates a requested purchase against live stock and
// ownership, then requests a hosted payment session. It never writes to
// storage: durable state changes only happen after payment succeeds, in
// the fulfillment engine, so an abandoned checkout leaves nothing behind.
type Initiator struct {
	sessions    SessionCreator
	products    catalog.Repository
	carts       cart.Repository
	frontendURL string
}

func NewInitiator(sessions SessionCreator, products catalog.Repository, carts cart.Repository, frontendURL string) *Initiator {
	return &Initiator{sessions: sessions, products: products, carts: carts, frontendURL: frontendURL}
}

// SingleProductSession prices one product at any quantity and returns the
// provider's redirect URL.
func (i *Initiator) SingleProductSession(ctx context.Context, userID, productID int64, quantity int) (string, error) {
	product, err := i.products.GetByID(ctx, productID)
	if err != nil {
		return "", err
	}
	if product.Stock < quantity {
		return "", ErrInsufficientStock
	}

	quote, err := pricing.NewQuote([]pricing.Line{{
		Name:        product.Name,
		Description: product.Description,
		ImageURL:    product.ImageURL,
		UnitPrice:   product.Price,
		Quantity:    quantity,
	}})
	if err != nil {
		return "", err
	}

	meta := SingleProduct{UserID: userID, ProductID: product.ID, Quantity: quantity}
	return i.createSession(quote, meta)
}

// CartSession prices the named cart items. Every referenced item must sit
// in the caller's own cart and fit the live stock; validation fails fast
// before any call to the provider.
func (i *Initiator) CartSession(ctx context.Context, userID int64, itemIDs []int64) (string, error) {
	userCart, err := i.carts.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}

	items, err := i.carts.ItemsByIDs(ctx, itemIDs)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", ErrNoItemsSelected
	}

	lines := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		if it.CartID != userCart.ID {
			return "", ErrNotOwnedItem
		}
		if it.Product.Stock < it.Quantity {
			return "", fmt.Errorf("%w: %s", ErrInsufficientStock, it.Product.Name)
		}
		lines = append(lines, pricing.Line{
			Name:        it.Product.Name,
			Description: it.Product.Description,
			ImageURL:    it.Product.ImageURL,
			UnitPrice:   it.Product.Price,
			Quantity:    it.Quantity,
		})
	}

	quote, err := pricing.NewQuote(lines)
	if err != nil {
		return "", err
	}

	meta := CartCheckout{UserID: userID, CartItemIDs: itemIDs}
	return i.createSession(quote, meta)
}

func (i *Initiator) createSession(quote *pricing.Quote, meta PaymentMetadata) (string, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(quote.Lines)+1)
	for _, ln := range quote.Lines {
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(ln.Name),
		}
		if ln.Description != "" {
			productData.Description = stripe.String(ln.Description)
		}
		if ln.ImageURL != "" {
			productData.Images = stripe.StringSlice([]string{ln.ImageURL})
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount:  stripe.Int64(ln.UnitAmountCents),
				ProductData: productData,
			},
			Quantity: stripe.Int64(int64(ln.Quantity)),
		})
	}
	// The fee is a single synthetic line, charged once per checkout.
	lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(string(stripe.CurrencyUSD)),
			UnitAmount: stripe.Int64(quote.FeeCents),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String("Transaction fees"),
			},
		},
		Quantity: stripe.Int64(1),
	})

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          lineItems,
		SuccessURL:         stripe.String(i.frontendURL + "/payment-success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:          stripe.String(i.frontendURL + "/payment-cancelled"),
	}
	for k, v := range meta.Encode() {
		params.AddMetadata(k, v)
	}

	sess, err := i.sessions.Create(params)
	if err != nil {
		return "", fmt.Errorf("checkout: create session: %w", err)
	}
	return sess.URL, nil
}
