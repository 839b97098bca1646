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

type ListingRepository interface {
	Create(ctx context.Context, listing *model.Listing) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Listing, error)
	// GetAvailableTx reads a listing's price/availability snapshot inside the
	// caller's transaction so a concurrent price change or availability flip
	// cannot land between the read and the order write. Returns nil when the
	// listing is missing or not available.
	GetAvailableTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Listing, error)
	List(ctx context.Context, limit, offset int, search, category, sort, order string) ([]model.Listing, int, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]model.Listing, error)
	Update(ctx context.Context, listing *model.Listing) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type pgListingRepo struct{ pool *pgxpool.Pool }

func NewListingRepository(pool *pgxpool.Pool) ListingRepository {
	return &pgListingRepo{pool: pool}
}

const listingColumns = `id, seller_id, title, description, price, category, image_url, is_available, created_at, updated_at`

func scanListing(row pgx.Row) (*model.Listing, error) {
	l := &model.Listing{}
	err := row.Scan(
		&l.ID, &l.SellerID, &l.Title, &l.Description, &l.Price,
		&l.Category, &l.ImageURL, &l.IsAvailable, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (r *pgListingRepo) Create(ctx context.Context, listing *model.Listing) error {
	listing.ID = uuid.New()
	query := `INSERT INTO listings (id, seller_id, title, description, price, category, image_url, is_available, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()) RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		listing.ID, listing.SellerID, listing.Title, listing.Description,
		listing.Price, listing.Category, listing.ImageURL, listing.IsAvailable,
	).Scan(&listing.CreatedAt, &listing.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create listing: %w", err)
	}
	return nil
}

func (r *pgListingRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Listing, error) {
	listing, err := scanListing(r.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return listing, nil
}

func (r *pgListingRepo) GetAvailableTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Listing, error) {
	listing, err := scanListing(tx.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1 AND is_available`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get available listing: %w", err)
	}
	return listing, nil
}

func (r *pgListingRepo) List(ctx context.Context, limit, offset int, search, category, sort, order string) ([]model.Listing, int, error) {
	allowedSorts := map[string]bool{"title": true, "price": true, "created_at": true}
	if !allowedSorts[sort] {
		sort = "created_at"
	}
	if order != "asc" && order != "desc" {
		order = "desc"
	}

	filter := `WHERE is_available
		AND ($1 = '' OR title ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')
		AND ($2 = '' OR category = $2)`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM listings `+filter, search, category).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count listings: %w", err)
	}

	query := fmt.Sprintf(`SELECT `+listingColumns+` FROM listings %s ORDER BY %s %s LIMIT $3 OFFSET $4`,
		filter, sort, order)
	rows, err := r.pool.Query(ctx, query, search, category, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var listings []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, *l)
	}
	return listings, total, nil
}

func (r *pgListingRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]model.Listing, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE seller_id = $1 ORDER BY created_at DESC`, sellerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list seller listings: %w", err)
	}
	defer rows.Close()

	var listings []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, *l)
	}
	return listings, nil
}

func (r *pgListingRepo) Update(ctx context.Context, listing *model.Listing) error {
	query := `UPDATE listings SET title=$2, description=$3, price=$4, category=$5, image_url=$6, is_available=$7, updated_at=NOW()
			  WHERE id=$1 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		listing.ID, listing.Title, listing.Description, listing.Price,
		listing.Category, listing.ImageURL, listing.IsAvailable,
	).Scan(&listing.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("update listing: %w", err)
	}
	return nil
}

// Delete removes the listing and its cart/wishlist references explicitly,
// children first, in one transaction. Order lines referencing the listing are
// frozen history and are never touched.
func (r *pgListingRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE listing_id = $1`, id); err != nil {
		return fmt.Errorf("delete cart references: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM wishlist_items WHERE listing_id = $1`, id); err != nil {
		return fmt.Errorf("delete wishlist references: %w", err)
	}

	ct, err := tx.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}
