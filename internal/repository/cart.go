package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artmarket/marketplace-api/internal/model"
)

type CartRepository interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	GetWithItems(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	// AddItem inserts the (cart, listing) row or atomically increments its
	// quantity when the pair already exists, so concurrent adds never lose
	// an update.
	AddItem(ctx context.Context, item *model.CartItem) error
	UpdateQuantity(ctx context.Context, cartID, listingID uuid.UUID, quantity int) error
	RemoveItem(ctx context.Context, cartID, listingID uuid.UUID) error
}

type pgCartRepo struct{ pool *pgxpool.Pool }

func NewCartRepository(pool *pgxpool.Pool) CartRepository {
	return &pgCartRepo{pool: pool}
}

func (r *pgCartRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart := &model.Cart{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`, userID,
	).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			cart.ID = uuid.New()
			cart.UserID = userID
			err = r.pool.QueryRow(ctx,
				`INSERT INTO carts (id, user_id, created_at, updated_at) VALUES ($1, $2, NOW(), NOW())
				 ON CONFLICT (user_id) DO UPDATE SET updated_at = carts.updated_at
				 RETURNING id, created_at, updated_at`,
				cart.ID, cart.UserID,
			).Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt)
			if err != nil {
				return nil, fmt.Errorf("create cart: %w", err)
			}
			return cart, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

func (r *pgCartRepo) GetWithItems(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, cart_id, listing_id, quantity, created_at, updated_at
		 FROM cart_items WHERE cart_id = $1 ORDER BY created_at`, cart.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.ListingID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}
	return cart, nil
}

func (r *pgCartRepo) AddItem(ctx context.Context, item *model.CartItem) error {
	item.ID = uuid.New()
	query := `INSERT INTO cart_items (id, cart_id, listing_id, quantity, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, NOW(), NOW())
			  ON CONFLICT (cart_id, listing_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
			  RETURNING id, quantity, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, item.ID, item.CartID, item.ListingID, item.Quantity).
		Scan(&item.ID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}
	return nil
}

func (r *pgCartRepo) UpdateQuantity(ctx context.Context, cartID, listingID uuid.UUID, quantity int) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE cart_items SET quantity = $3, updated_at = NOW() WHERE cart_id = $1 AND listing_id = $2`,
		cartID, listingID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgCartRepo) RemoveItem(ctx context.Context, cartID, listingID uuid.UUID) error {
	ct, err := r.pool.Exec(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1 AND listing_id = $2`, cartID, listingID,
	)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
