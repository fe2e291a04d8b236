package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/electrovision/storefront/internal/cart"
	"github.com/electrovision/storefront/internal/catalog"
	"github.com/electrovision/storefront/internal/order"
	"github.com/electrovision/storefront/internal/user"
)

var (
	ErrDuplicateEvent    = errors.New("event already processed")
	ErrInsufficientStock = errors.New("not enough stock to fulfill")
	ErrUserNotFound      = errors.New("user not found during fulfillment")
	ErrProductNotFound   = errors.New("product not found during fulfillment")
	ErrNoCartItems       = errors.New("no cart items found to fulfill")
)

// Tx is the set of storage operations available inside one fulfillment
// transaction. Either all of them commit together or none do.
type Tx interface {
	// RecordEvent claims the provider's event id. A second delivery of the
	// same id hits the primary key and returns ErrDuplicateEvent, which
	// makes redelivery a no-op instead of a double fulfillment.
	RecordEvent(ctx context.Context, eventID string) error
	LinkEventOrder(ctx context.Context, eventID string, orderID int64) error

	GetUser(ctx context.Context, id int64) (*user.User, error)
	GetProduct(ctx context.Context, id int64) (*catalog.Product, error)
	CartItemsByIDs(ctx context.Context, itemIDs []int64) ([]cart.ItemWithProduct, error)

	InsertOrder(ctx context.Context, userID int64, total decimal.Decimal, status order.Status) (int64, error)
	InsertOrderItem(ctx context.Context, orderID, productID int64, quantity int, unitPrice decimal.Decimal) error

	// DecrementStock performs the relative update `stock = stock - q`
	// guarded by `stock >= q`, so concurrent fulfillments serialize at the
	// database row and never drive stock negative.
	DecrementStock(ctx context.Context, productID int64, quantity int) error

	DeleteCartItems(ctx context.Context, itemIDs []int64) error
	DeleteCartItemsByProduct(ctx context.Context, userID, productID int64) error
}

// Store runs a function inside a transaction, guaranteeing commit on
// success and rollback on every other exit path.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

type PGStore struct{ db *pgxpool.Pool }

func NewPGStore(db *pgxpool.Pool) *PGStore { return &PGStore{db: db} }

func (s *PGStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("fulfillment: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("fulfillment: commit tx: %w", err)
	}
	return nil
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) RecordEvent(ctx context.Context, eventID string) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO processed_events (event_id, processed_at) VALUES ($1, NOW())
	`, eventID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateEvent
		}
		return err
	}
	return nil
}

func (t *pgTx) LinkEventOrder(ctx context.Context, eventID string, orderID int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE processed_events SET order_id=$2 WHERE event_id=$1
	`, eventID, orderID)
	return err
}

func (t *pgTx) GetUser(ctx context.Context, id int64) (*user.User, error) {
	var u user.User
	err := t.tx.QueryRow(ctx, `
		SELECT id, username, email, google_id, avatar_url, created_at
		FROM users WHERE id=$1
	`, id).Scan(&u.ID, &u.Username, &u.Email, &u.GoogleID, &u.AvatarURL, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (t *pgTx) GetProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	var p catalog.Product
	var price string
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, description, image_url, price::text, stock, created_at
		FROM products WHERE id=$1
	`, id).Scan(&p.ID, &p.Name, &p.Description, &p.ImageURL, &price, &p.Stock, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) CartItemsByIDs(ctx context.Context, itemIDs []int64) ([]cart.ItemWithProduct, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.created_at,
		       p.id, p.name, p.description, p.image_url, p.price::text, p.stock, p.created_at
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.id = ANY($1)
		ORDER BY ci.id
	`, itemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cart.ItemWithProduct
	for rows.Next() {
		var it cart.ItemWithProduct
		var price string
		if err := rows.Scan(
			&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt,
			&it.Product.ID, &it.Product.Name, &it.Product.Description,
			&it.Product.ImageURL, &price, &it.Product.Stock, &it.Product.CreatedAt,
		); err != nil {
			return nil, err
		}
		if it.Product.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertOrder(ctx context.Context, userID int64, total decimal.Decimal, status order.Status) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, total_amount, status, created_at)
		VALUES ($1,$2,$3,NOW())
		RETURNING id
	`, userID, total.StringFixed(2), string(status)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("fulfillment: insert order: %w", err)
	}
	return id, nil
}

func (t *pgTx) InsertOrderItem(ctx context.Context, orderID, productID int64, quantity int, unitPrice decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1,$2,$3,$4)
	`, orderID, productID, quantity, unitPrice.StringFixed(2))
	if err != nil {
		return fmt.Errorf("fulfillment: insert order item: %w", err)
	}
	return nil
}

func (t *pgTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %d, quantity %d", ErrInsufficientStock, productID, quantity)
	}
	return nil
}

func (t *pgTx) DeleteCartItems(ctx context.Context, itemIDs []int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE id = ANY($1)`, itemIDs)
	return err
}

func (t *pgTx) DeleteCartItemsByProduct(ctx context.Context, userID, productID int64) error {
	_, err := t.tx.Exec(ctx, `
		DELETE FROM cart_items ci
		USING cart c
		WHERE ci.cart_id = c.id AND c.user_id = $1 AND ci.product_id = $2
	`, userID, productID)
	return err
}
