package cart

import (
	"time"

	"github.com/electrovision/storefront/internal/catalog"
)

// Cart is created lazily on the first add and never deleted; it is
// logically empty once all items are removed.
type Cart struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Item carries no price: the price is always looked up live from the
// product, and only snapshotted into an order item at fulfillment.
type Item struct {
	ID        int64     `json:"id"`
	CartID    int64     `json:"cart_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

type ItemWithProduct struct {
	Item
	Product catalog.Product `json:"products"`
}
