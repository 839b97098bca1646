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

type WishlistRepository interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*model.Wishlist, error)
	GetWithItems(ctx context.Context, userID uuid.UUID) (*model.Wishlist, error)
	// AddItem inserts the (wishlist, listing) row; returns false when the
	// pair already exists.
	AddItem(ctx context.Context, item *model.WishlistItem) (bool, error)
	RemoveItem(ctx context.Context, wishlistID, listingID uuid.UUID) error
}

type pgWishlistRepo struct{ pool *pgxpool.Pool }

func NewWishlistRepository(pool *pgxpool.Pool) WishlistRepository {
	return &pgWishlistRepo{pool: pool}
}

func (r *pgWishlistRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*model.Wishlist, error) {
	wl := &model.Wishlist{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, created_at, updated_at FROM wishlists WHERE user_id = $1`, userID,
	).Scan(&wl.ID, &wl.UserID, &wl.CreatedAt, &wl.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			wl.ID = uuid.New()
			wl.UserID = userID
			err = r.pool.QueryRow(ctx,
				`INSERT INTO wishlists (id, user_id, created_at, updated_at) VALUES ($1, $2, NOW(), NOW())
				 ON CONFLICT (user_id) DO UPDATE SET updated_at = wishlists.updated_at
				 RETURNING id, created_at, updated_at`,
				wl.ID, wl.UserID,
			).Scan(&wl.ID, &wl.CreatedAt, &wl.UpdatedAt)
			if err != nil {
				return nil, fmt.Errorf("create wishlist: %w", err)
			}
			return wl, nil
		}
		return nil, fmt.Errorf("get wishlist: %w", err)
	}
	return wl, nil
}

func (r *pgWishlistRepo) GetWithItems(ctx context.Context, userID uuid.UUID) (*model.Wishlist, error) {
	wl, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, wishlist_id, listing_id, created_at
		 FROM wishlist_items WHERE wishlist_id = $1 ORDER BY created_at`, wl.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("get wishlist items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.WishlistItem
		if err := rows.Scan(&item.ID, &item.WishlistID, &item.ListingID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wishlist item: %w", err)
		}
		wl.Items = append(wl.Items, item)
	}
	return wl, nil
}

func (r *pgWishlistRepo) AddItem(ctx context.Context, item *model.WishlistItem) (bool, error) {
	item.ID = uuid.New()
	ct, err := r.pool.Exec(ctx,
		`INSERT INTO wishlist_items (id, wishlist_id, listing_id, created_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (wishlist_id, listing_id) DO NOTHING`,
		item.ID, item.WishlistID, item.ListingID,
	)
	if err != nil {
		return false, fmt.Errorf("add wishlist item: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *pgWishlistRepo) RemoveItem(ctx context.Context, wishlistID, listingID uuid.UUID) error {
	ct, err := r.pool.Exec(ctx,
		`DELETE FROM wishlist_items WHERE wishlist_id = $1 AND listing_id = $2`, wishlistID, listingID,
	)
	if err != nil {
		return fmt.Errorf("remove wishlist item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
