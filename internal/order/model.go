package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/electrovision/storefront/internal/catalog"
)

type Status string

const (
	StatusNotCompleted Status = "not_completed"
	StatusCompleted    Status = "completed"
)

// Order.TotalAmount is the amount the payment provider reported as
// captured, never a local recomputation from line items.
type Order struct {
	ID          int64             `json:"id"`
	UserID      int64             `json:"user_id"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	Status      Status            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	Items       []ItemWithProduct `json:"order_items"`
}

// Item.UnitPrice is a snapshot of the product price at purchase time and
// is never rewritten, even if the live product price changes later.
type Item struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type ItemWithProduct struct {
	Item
	Product catalog.Product `json:"products"`
}
