package cart

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("cart item not found")
)

type Repository interface {
	GetByUserID(ctx context.Context, userID int64) (*Cart, error)
	Create(ctx context.Context, userID int64) (*Cart, error)
	GetItem(ctx context.Context, cartID, productID int64) (*Item, error)
	AddItem(ctx context.Context, cartID, productID int64, quantity int) (*Item, error)
	UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) (*Item, error)
	DeleteItem(ctx context.Context, itemID int64) error
	ItemWithProduct(ctx context.Context, itemID, cartID int64) (*ItemWithProduct, error)
	ItemsWithProducts(ctx context.Context, cartID int64) ([]ItemWithProduct, error)
	ItemsByIDs(ctx context.Context, itemIDs []int64) ([]ItemWithProduct, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) GetByUserID(ctx context.Context, userID int64) (*Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var ct Cart
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, created_at FROM cart WHERE user_id=$1
	`, userID).Scan(&ct.ID, &ct.UserID, &ct.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	return &ct, nil
}

func (r *PGRepo) Create(ctx context.Context, userID int64) (*Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var ct Cart
	err := r.db.QueryRow(ctx, `
		INSERT INTO cart (user_id, created_at) VALUES ($1, NOW())
		RETURNING id, user_id, created_at
	`, userID).Scan(&ct.ID, &ct.UserID, &ct.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ct, nil
}

func (r *PGRepo) GetItem(ctx context.Context, cartID, productID int64) (*Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var it Item
	err := r.db.QueryRow(ctx, `
		SELECT id, cart_id, product_id, quantity, created_at
		FROM cart_items WHERE cart_id=$1 AND product_id=$2
	`, cartID, productID).Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (r *PGRepo) AddItem(ctx context.Context, cartID, productID int64, quantity int) (*Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var it Item
	err := r.db.QueryRow(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity, created_at)
		VALUES ($1,$2,$3,NOW())
		RETURNING id, cart_id, product_id, quantity, created_at
	`, cartID, productID, quantity).Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *PGRepo) UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) (*Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var it Item
	err := r.db.QueryRow(ctx, `
		UPDATE cart_items SET quantity=$2 WHERE id=$1
		RETURNING id, cart_id, product_id, quantity, created_at
	`, itemID, quantity).Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (r *PGRepo) DeleteItem(ctx context.Context, itemID int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE id=$1`, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

const itemWithProductCols = `
	ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.created_at,
	p.id, p.name, p.description, p.image_url, p.price::text, p.stock, p.created_at
`

func scanItemWithProduct(row pgx.Row, it *ItemWithProduct) error {
	var price string
	if err := row.Scan(
		&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt,
		&it.Product.ID, &it.Product.Name, &it.Product.Description,
		&it.Product.ImageURL, &price, &it.Product.Stock, &it.Product.CreatedAt,
	); err != nil {
		return err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	it.Product.Price = d
	return nil
}

func (r *PGRepo) ItemWithProduct(ctx context.Context, itemID, cartID int64) (*ItemWithProduct, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var it ItemWithProduct
	row := r.db.QueryRow(ctx, `
		SELECT `+itemWithProductCols+`
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.id=$1 AND ci.cart_id=$2
	`, itemID, cartID)
	if err := scanItemWithProduct(row, &it); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (r *PGRepo) ItemsWithProducts(ctx context.Context, cartID int64) ([]ItemWithProduct, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+itemWithProductCols+`
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id=$1
		ORDER BY ci.created_at
	`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func (r *PGRepo) ItemsByIDs(ctx context.Context, itemIDs []int64) ([]ItemWithProduct, error) {
	if len(itemIDs) == 0 {
		return []ItemWithProduct{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+itemWithProductCols+`
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.id = ANY($1)
		ORDER BY ci.id
	`, itemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func collectItems(rows pgx.Rows) ([]ItemWithProduct, error) {
	var out []ItemWithProduct
	for rows.Next() {
		var it ItemWithProduct
		if err := scanItemWithProduct(rows, &it); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
