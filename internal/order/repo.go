package order

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository is the read side of orders. Writes happen only inside the
// fulfillment transaction.
type Repository interface {
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, total_amount::text, status, created_at
		FROM orders WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ordersByID := make(map[int64]*Order)
	var orderIDs []int64
	for rows.Next() {
		var o Order
		var total string
		if err := rows.Scan(&o.ID, &o.UserID, &total, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		o.Items = []ItemWithProduct{}
		ordersByID[o.ID] = &o
		orderIDs = append(orderIDs, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	itemRows, err := r.db.Query(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.unit_price::text,
		       p.id, p.name, p.description, p.image_url, p.price::text, p.stock, p.created_at
		FROM order_items oi JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.id
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var it ItemWithProduct
		if err := scanItemWithProduct(itemRows, &it); err != nil {
			return nil, err
		}
		if o, ok := ordersByID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	out := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		out = append(out, *ordersByID[id])
	}
	return out, nil
}

func scanItemWithProduct(row pgx.Row, it *ItemWithProduct) error {
	var unitPrice, productPrice string
	if err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &unitPrice,
		&it.Product.ID, &it.Product.Name, &it.Product.Description,
		&it.Product.ImageURL, &productPrice, &it.Product.Stock, &it.Product.CreatedAt,
	); err != nil {
		return err
	}
	var err error
	if it.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return err
	}
	if it.Product.Price, err = decimal.NewFromString(productPrice); err != nil {
		return err
	}
	return nil
}
