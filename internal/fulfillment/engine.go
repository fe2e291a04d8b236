// Package fulfillment turns a verified payment-completion event into an
// atomic state transition: one order, its items, stock decrements and cart
// cleanup commit together or not at all. Payment success is the only
// trigger for durable state change; session creation writes nothing.
package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/electrovision/storefront/internal/checkout"
	"github.com/electrovision/storefront/internal/mail"
	"github.com/electrovision/storefront/internal/order"
)

// ErrBadSignature marks an event whose signature does not verify against
// the shared webhook secret. Storage is never touched in that case.
var ErrBadSignature = errors.New("webhook signature verification failed")

type Engine struct {
	store    Store
	notifier mail.Notifier
	secret   string
	timeout  time.Duration
}

func NewEngine(store Store, notifier mail.Notifier, webhookSecret string, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Engine{store: store, notifier: notifier, secret: webhookSecret, timeout: timeout}
}

// HandleEvent processes one raw webhook delivery. A nil return means the
// delivery is acknowledged: fulfilled, a duplicate, or an event type this
// engine ignores. ErrBadSignature means reject; any other error means the
// transaction failed and the provider should redeliver.
func (e *Engine) HandleEvent(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, e.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	// Only completed checkout sessions trigger fulfillment; everything
	// else is acknowledged and ignored.
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		log.Debug().Str("event_type", string(event.Type)).Msg("ignoring webhook event")
		return nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("fulfillment: decode session: %w", err)
	}

	meta, err := checkout.ParseMetadata(session.Metadata)
	if err != nil {
		return fmt.Errorf("fulfillment: %w", err)
	}

	// The captured amount from the provider is authoritative; it is stored
	// verbatim, never recomputed from line items. AmountTotal is in cents.
	total := decimal.New(session.AmountTotal, -2)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var summary *mail.OrderSummary
	err = e.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.RecordEvent(ctx, event.ID); err != nil {
			return err
		}
		var txErr error
		switch m := meta.(type) {
		case checkout.SingleProduct:
			summary, txErr = e.fulfillSingleProduct(ctx, tx, m, event.ID, total)
		case checkout.CartCheckout:
			summary, txErr = e.fulfillCart(ctx, tx, m, event.ID, total)
		}
		return txErr
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			log.Info().Str("event_id", event.ID).Msg("duplicate webhook delivery, already fulfilled")
			return nil
		}
		return err
	}

	// Strictly after commit: the notification is not transactional and
	// must neither be rolled back with storage changes nor extend lock
	// hold time.
	if notifyErr := e.notifier.OrderConfirmation(ctx, *summary); notifyErr != nil {
		log.Error().Err(notifyErr).Int64("order_id", summary.OrderID).Msg("confirmation email failed")
	}
	return nil
}

func (e *Engine) fulfillSingleProduct(ctx context.Context, tx Tx, m checkout.SingleProduct, eventID string, total decimal.Decimal) (*mail.OrderSummary, error) {
	u, err := tx.GetUser(ctx, m.UserID)
	if err != nil {
		return nil, err
	}
	product, err := tx.GetProduct(ctx, m.ProductID)
	if err != nil {
		return nil, err
	}
	// Stock may have changed between session creation and payment
	// completion; the conditional decrement below is the authoritative
	// guard, this check just fails earlier with a clearer error.
	if product.Stock < m.Quantity {
		return nil, fmt.Errorf("%w: product %d", ErrInsufficientStock, product.ID)
	}

	orderID, err := tx.InsertOrder(ctx, u.ID, total, order.StatusCompleted)
	if err != nil {
		return nil, err
	}
	if err := tx.InsertOrderItem(ctx, orderID, product.ID, m.Quantity, product.Price); err != nil {
		return nil, err
	}
	if err := tx.DecrementStock(ctx, product.ID, m.Quantity); err != nil {
		return nil, err
	}
	// Cleanup: the user just bought this product directly, so drop any
	// cart line for it. Not essential to correctness.
	if err := tx.DeleteCartItemsByProduct(ctx, u.ID, product.ID); err != nil {
		return nil, err
	}
	if err := tx.LinkEventOrder(ctx, eventID, orderID); err != nil {
		return nil, err
	}

	return &mail.OrderSummary{
		To:          u.Email,
		OrderID:     orderID,
		TotalAmount: total,
		Items: []mail.OrderItem{{
			ProductName: product.Name,
			ImageURL:    product.ImageURL,
			Quantity:    m.Quantity,
			UnitPrice:   product.Price,
		}},
	}, nil
}

func (e *Engine) fulfillCart(ctx context.Context, tx Tx, m checkout.CartCheckout, eventID string, total decimal.Decimal) (*mail.OrderSummary, error) {
	u, err := tx.GetUser(ctx, m.UserID)
	if err != nil {
		return nil, err
	}
	// Exactly the item ids named in the session metadata, not the whole
	// cart: the cart may have changed since, and partial checkouts of the
	// same cart must not consume unrelated lines.
	items, err := tx.CartItemsByIDs(ctx, m.CartItemIDs)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNoCartItems
	}

	orderID, err := tx.InsertOrder(ctx, u.ID, total, order.StatusCompleted)
	if err != nil {
		return nil, err
	}

	summaryItems := make([]mail.OrderItem, 0, len(items))
	for _, it := range items {
		if err := tx.InsertOrderItem(ctx, orderID, it.ProductID, it.Quantity, it.Product.Price); err != nil {
			return nil, err
		}
		if err := tx.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			return nil, err
		}
		summaryItems = append(summaryItems, mail.OrderItem{
			ProductName: it.Product.Name,
			ImageURL:    it.Product.ImageURL,
			Quantity:    it.Quantity,
			UnitPrice:   it.Product.Price,
		})
	}

	if err := tx.DeleteCartItems(ctx, m.CartItemIDs); err != nil {
		return nil, err
	}
	if err := tx.LinkEventOrder(ctx, eventID, orderID); err != nil {
		return nil, err
	}

	return &mail.OrderSummary{
		To:          u.Email,
		OrderID:     orderID,
		TotalAmount: total,
		Items:       summaryItems,
	}, nil
}
