package fulfillment_test

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/electrovision/storefront/internal/cart"
	"github.com/electrovision/storefront/internal/catalog"
	"github.com/electrovision/storefront/internal/fulfillment"
	"github.com/electrovision/storefront/internal/mail"
	"github.com/electrovision/storefront/internal/order"
	"github.com/electrovision/storefront/internal/user"
)

const testSecret = "whsec_test_secret"

// signedPayload wraps a checkout session object in a Stripe event envelope
// signed the way Stripe signs deliveries.
func signedPayload(eventType, sessionJSON string) ([]byte, string) {
	payload := []byte(fmt.Sprintf(
		`{"id":"evt_test_1","object":"event","type":%q,"data":{"object":%s}}`,
		eventType, sessionJSON))
	ts := time.Now()
	sig := webhook.ComputeSignature(ts, payload, testSecret)
	header := fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(sig))
	return payload, header
}

// spyTx records every storage call so tests can assert both behavior and
// the absence of writes.
type spyTx struct {
	calls []string

	recordEventErr error
	getUserFunc    func(id int64) (*user.User, error)
	getProductFunc func(id int64) (*catalog.Product, error)
	cartItemsFunc  func(ids []int64) ([]cart.ItemWithProduct, error)
	decrementErr   error

	insertedOrders     []insertedOrder
	insertedItems      []insertedItem
	decrements         []decrement
	deletedCartItemIDs []int64
	linkedOrderID      int64
}

type insertedOrder struct {
	userID int64
	total  decimal.Decimal
	status order.Status
}

type insertedItem struct {
	orderID, productID int64
	quantity           int
	unitPrice          decimal.Decimal
}

type decrement struct {
	productID int64
	quantity  int
}

func (s *spyTx) RecordEvent(_ context.Context, eventID string) error {
	s.calls = append(s.calls, "RecordEvent")
	return s.recordEventErr
}

func (s *spyTx) LinkEventOrder(_ context.Context, eventID string, orderID int64) error {
	s.calls = append(s.calls, "LinkEventOrder")
	s.linkedOrderID = orderID
	return nil
}

func (s *spyTx) GetUser(_ context.Context, id int64) (*user.User, error) {
	s.calls = append(s.calls, "GetUser")
	return s.getUserFunc(id)
}

func (s *spyTx) GetProduct(_ context.Context, id int64) (*catalog.Product, error) {
	s.calls = append(s.calls, "GetProduct")
	return s.getProductFunc(id)
}

func (s *spyTx) CartItemsByIDs(_ context.Context, ids []int64) ([]cart.ItemWithProduct, error) {
	s.calls = append(s.calls, "CartItemsByIDs")
	return s.cartItemsFunc(ids)
}

func (s *spyTx) InsertOrder(_ context.Context, userID int64, total decimal.Decimal, status order.Status) (int64, error) {
	s.calls = append(s.calls, "InsertOrder")
	s.insertedOrders = append(s.insertedOrders, insertedOrder{userID, total, status})
	return 1001, nil
}

func (s *spyTx) InsertOrderItem(_ context.Context, orderID, productID int64, quantity int, unitPrice decimal.Decimal) error {
	s.calls = append(s.calls, "InsertOrderItem")
	s.insertedItems = append(s.insertedItems, insertedItem{orderID, productID, quantity, unitPrice})
	return nil
}

func (s *spyTx) DecrementStock(_ context.Context, productID int64, quantity int) error {
	s.calls = append(s.calls, "DecrementStock")
	if s.decrementErr != nil {
		return s.decrementErr
	}
	s.decrements = append(s.decrements, decrement{productID, quantity})
	return nil
}

func (s *spyTx) DeleteCartItems(_ context.Context, itemIDs []int64) error {
	s.calls = append(s.calls, "DeleteCartItems")
	s.deletedCartItemIDs = append(s.deletedCartItemIDs, itemIDs...)
	return nil
}

func (s *spyTx) DeleteCartItemsByProduct(_ context.Context, userID, productID int64) error {
	s.calls = append(s.calls, "DeleteCartItemsByProduct")
	return nil
}

// spyStore runs the transaction body against the spy and tracks whether
// the transaction would have committed.
type spyStore struct {
	tx      *spyTx
	started int
	commits int
}

func (s *spyStore) WithTx(_ context.Context, fn func(tx fulfillment.Tx) error) error {
	s.started++
	if err := fn(s.tx); err != nil {
		return err
	}
	s.commits++
	return nil
}

type spyNotifier struct {
	calls     int
	summaries []mail.OrderSummary
	err       error
}

func (n *spyNotifier) OrderConfirmation(_ context.Context, s mail.OrderSummary) error {
	n.calls++
	n.summaries = append(n.summaries, s)
	return n.err
}

func zoro() *user.User {
	return &user.User{ID: 7, Username: "zoro", Email: "zoro@example.com"}
}

func keyboard(stock int) *catalog.Product {
	return &catalog.Product{
		ID:       42,
		Name:     "Mechanical Keyboard",
		ImageURL: "https://img.example/kb.png",
		Price:    decimal.RequireFromString("199.90"),
		Stock:    stock,
	}
}

func newEngine(tx *spyTx) (*fulfillment.Engine, *spyStore, *spyNotifier) {
	store := &spyStore{tx: tx}
	notifier := &spyNotifier{}
	return fulfillment.NewEngine(store, notifier, testSecret, time.Second), store, notifier
}

func TestHandleEvent_TamperedPayloadTouchesNoStorage(t *testing.T) {
	payload, header := signedPayload("checkout.session.completed",
		`{"id":"cs_1","amount_total":100,"metadata":{"checkoutType":"single_product","userId":"7","productId":"42","quantity":"1"}}`)

	tx := &spyTx{}
	engine, store, notifier := newEngine(tx)

	// Flip one byte of the body.
	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)/2] ^= 0x01
	err := engine.HandleEvent(context.Background(), tampered, header)
	assert.ErrorIs(t, err, fulfillment.ErrBadSignature)

	// Tamper with the header instead.
	err = engine.HandleEvent(context.Background(), payload, header+"00")
	assert.ErrorIs(t, err, fulfillment.ErrBadSignature)

	assert.Zero(t, store.started)
	assert.Empty(t, tx.calls)
	assert.Zero(t, notifier.calls)
}

func TestHandleEvent_IgnoresOtherEventTypes(t *testing.T) {
	payload, header := signedPayload("payment_intent.succeeded", `{"id":"pi_1"}`)

	tx := &spyTx{}
	engine, store, notifier := newEngine(tx)

	err := engine.HandleEvent(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Zero(t, store.started)
	assert.Zero(t, notifier.calls)
}

func TestHandleEvent_MalformedMetadataFailsBeforeTransaction(t *testing.T) {
	payload, header := signedPayload("checkout.session.completed",
		`{"id":"cs_1","amount_total":100,"metadata":{"checkoutType":"cart","userId":"7","cartItemIds":"[1,2"}}`)

	tx := &spyTx{}
	engine, store, _ := newEngine(tx)

	err := engine.HandleEvent(context.Background(), payload, header)
	assert.Error(t, err)
	assert.Zero(t, store.started)
}

func TestHandleEvent_SingleProductFulfillment(t *testing.T) {
	payload, header := signedPayload("checkout.session.completed",
		`{"id":"cs_1","amount_total":42479,"metadata":{"checkoutType":"single_product","userId":"7","productId":"42","quantity":"2"}}`)

	tx := &spyTx{
		getUserFunc:    func(id int64) (*user.User, error) { return zoro(), nil },
		getProductFunc: func(id int64) (*catalog.Product, error) { return keyboard(10), nil },
	}
	engine, store, notifier := newEngine(tx)

	err := engine.HandleEvent(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, 1, store.commits)

	require.Len(t, tx.insertedOrders, 1)
	created := tx.insertedOrders[0]
	assert.Equal(t, int64(7), created.userID)
	assert.Equal(t, order.StatusCompleted, created.status)
	// The provider-reported captured amount, not a local recomputation.
	assert.True(t, created.total.Equal(decimal.RequireFromString("424.79")),
		"total %s", created.total)

	require.Len(t, tx.insertedItems, 1)
	item := tx.insertedItems[0]
	assert.Equal(t, int64(1001), item.orderID)
	assert.Equal(t, int64(42), item.productID)
	assert.Equal(t, 2, item.quantity)
	assert.True(t, item.unitPrice.Equal(decimal.RequireFromString("199.90")))

	assert.Equal(t, []decrement{{productID: 42, quantity: 2}}, tx.decrements)
	assert.Contains(t, tx.calls, "DeleteCartItemsByProduct")
	assert.Equal(t, int64(1001), tx.linkedOrderID)

	require.Equal(t, 1, notifier.calls)
	summary := notifier.summaries[0]
	assert.Equal(t, "zoro@example.com", summary.To)
	assert.Equal(t, int64(1001), summary.OrderID)
	require.Len(t, summary.Items, 1)
	assert.Equal(t, "Mechanical Keyboard", summary.Items[0].ProductName)
}

func TestHandleEvent_SingleProductInsufficientStockAborts(t *testing.T) {
	payload, header := signedPayload("checkout.session.completed",
		`{"id":"cs_1","amount_total":100,"metadata":{"checkoutType":"single_product","userId":"7","productId":"42","quantity":"5"}}`)

	tx := &spyTx{
		getUserFunc:    func(id int64) (*user.User, error) { return zoro(), nil },
		getProductFunc: func(id int64) (*catalog.Product, error) { return keyboard(3), nil },
	}
	engine, store, notifier := newEngine(tx)

	err := engine.HandleEvent(context.Background(), payload, header)
	assert.ErrorIs(t, err, fulfillment.ErrInsufficientStock)
	assert.Zero(t, store.commits)
	assert.Empty(t, tx.insertedOrders)
	assert.Empty(t, tx.decrements)
	assert.Zero(t, notifier.calls)
}

func cartLine(id int64, qty int, price string) cart.ItemWithProduct {
	return cart.ItemWithProduct{
		Item: cart.Item{ID: id, CartID: 99, ProductID: id * 10, Quantity: qty},
		Product: catalog.Product{
			ID:    id * 10,
			Name:  fmt.Sprintf("Product %d", id),
			Price: decimal.RequireFromString(price),
			Stock: 50,
		},
	}
}

func TestHandleEvent_CartFulfillment(t *testing.T) {
	payload, header := signedPayload("checkout.session.completed",
		`{"id":"cs_1","amount_total":23270,"metadata":{"checkoutType":"cart","userId":"7","cartItemIds":"[5,9]"}}`)

	tx := &spyTx{
		getUserFunc: func(id int64) (*user.User, error) { return zoro(), nil },
		cartItemsFunc: func(ids []int64) ([]cart.ItemWithProduct, error) {
			require.Equal(t, []int64{5, 9}, ids)
			return []cart.ItemWithProduct{cartLine(5, 4, "25.00"), cartLine(9, 3, "40.00")}, nil
		},
	}
	engine, store, notifier := newEngine(tx)

	err := engine.HandleEvent(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, 1, store.commits)

	// Exactly one order for the whole batch, one item per cart line.
	require.Len(t, tx.insertedOrders, 1)
	require.Len(t, tx.insertedItems, 2)
	assert.Equal(t, int64(50), tx.insertedItems[0].productID)
	assert.Equal(t, 4, tx.insertedItems[0].quantity)
	assert.True(t, tx.insertedItems[0].unitPrice.Equal(decimal.RequireFromString("25.00")))
	assert.Equal(t, int64(90), tx.insertedItems[1].productID)
	assert.Equal(t, 3, tx.insertedItems[1].quantity)

	// Each product decremented by its own quantity.
	assert.Equal(t, []decrement{{50, 4}, {90, 3}}, tx.decrements)

	// Exactly the consumed cart items deleted, nothing else.
	assert.Equal(t, []int64{5, 9}, tx.deletedCartItemIDs)

	require.Equal(t, 1, notifier.calls)
	assert.Len(t, notifier.summaries[0].Items, 2)
}

func TestHandleEvent_CartWithNoItemsAborts(t *testing.T) {
	payload, header := signedPayload("checkout.session.completed",
		`{"id":"cs_1","amount_total":100,"metadata":{"checkoutType":"cart","userId":"7","cartItemIds":"[5]"}}`)

	tx := &spyTx{
		getUserFunc:   func(id int64) (*user.User, error) { return zoro(), nil },
		cartItemsFunc: func([]int64) ([]cart.ItemWithProduct, error) { return nil, nil },
	}
	engine, store, _ := newEngine(tx)

	err := engine.HandleEvent(context.Background(), payload, header)
	assert.ErrorIs(t, err, fulfillment.ErrNoCartItems)
	assert.Zero(t, store.commits)
	assert.Empty(t, tx.insertedOrders)
}

func TestHandleEvent_CartUnderstockedLineAbortsWholeBatch(t *testing.T) {
	payload, header := signedPayload("checkout.session.completed",
		`{"id":"cs_1","amount_total":100,"metadata":{"checkoutType":"cart","userId":"7","cartItemIds":"[5,9]"}}`)

	tx := &spyTx{
		getUserFunc: func(id int64) (*user.User, error) { return zoro(), nil },
		cartItemsFunc: func([]int64) ([]cart.ItemWithProduct, error) {
			return []cart.ItemWithProduct{cartLine(5, 4, "25.00"), cartLine(9, 3, "40.00")}, nil
		},
		decrementErr: fulfillment.ErrInsufficientStock,
	}
	engine, store, notifier := newEngine(tx)

	err := engine.HandleEvent(context.Background(), payload, header)
	assert.ErrorIs(t, err, fulfillment.ErrInsufficientStock)
	assert.Zero(t, store.commits)
	assert.Empty(t, tx.deletedCartItemIDs)
	assert.Zero(t, notifier.calls)
}

func TestHandleEvent_DuplicateDeliveryIsNoOpSuccess(t *testing.T) {
	payload, header := signedPayload("checkout.session.completed",
		`{"id":"cs_1","amount_total":100,"metadata":{"checkoutType":"single_product","userId":"7","productId":"42","quantity":"1"}}`)

	tx := &spyTx{recordEventErr: fulfillment.ErrDuplicateEvent}
	engine, store, notifier := newEngine(tx)

	err := engine.HandleEvent(context.Background(), payload, header)
	require.NoError(t, err)
	// The second delivery must not create another order nor touch stock.
	assert.Zero(t, store.commits)
	assert.Empty(t, tx.insertedOrders)
	assert.Empty(t, tx.decrements)
	assert.Zero(t, notifier.calls)
}

func TestHandleEvent_NotifierFailureDoesNotFailFulfillment(t *testing.T) {
	payload, header := signedPayload("checkout.session.completed",
		`{"id":"cs_1","amount_total":100,"metadata":{"checkoutType":"single_product","userId":"7","productId":"42","quantity":"1"}}`)

	tx := &spyTx{
		getUserFunc:    func(id int64) (*user.User, error) { return zoro(), nil },
		getProductFunc: func(id int64) (*catalog.Product, error) { return keyboard(10), nil },
	}
	store := &spyStore{tx: tx}
	notifier := &spyNotifier{err: errors.New("smtp unreachable")}
	engine := fulfillment.NewEngine(store, notifier, testSecret, time.Second)

	err := engine.HandleEvent(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, 1, store.commits)
	assert.Equal(t, 1, notifier.calls)
}

func TestHandleEvent_VanishedUserAborts(t *testing.T) {
	payload, header := signedPayload("checkout.session.completed",
		`{"id":"cs_1","amount_total":100,"metadata":{"checkoutType":"single_product","userId":"7","productId":"42","quantity":"1"}}`)

	tx := &spyTx{
		getUserFunc: func(id int64) (*user.User, error) { return nil, fulfillment.ErrUserNotFound },
	}
	engine, store, _ := newEngine(tx)

	err := engine.HandleEvent(context.Background(), payload, header)
	assert.ErrorIs(t, err, fulfillment.ErrUserNotFound)
	assert.Zero(t, store.commits)
}
