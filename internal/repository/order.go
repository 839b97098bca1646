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

type OrderRepository interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	// CreateWithItems persists the order and all of its line rows inside the
	// caller's transaction; if anything fails the caller rolls back and no
	// partial order is visible.
	CreateWithItems(ctx context.Context, tx pgx.Tx, order *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]model.Order, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]model.Order, error)
	SellerHasItems(ctx context.Context, orderID, sellerID uuid.UUID) (bool, error)
	// UpdateStatus applies from -> to only when the stored status still
	// equals from, so concurrent transitions (or webhook replays) cannot
	// apply the same edge twice. Returns false when the row was not in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus) (bool, error)
}

type pgOrderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &pgOrderRepo{pool: pool}
}

func (r *pgOrderRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *pgOrderRepo) CreateWithItems(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	order.ID = uuid.New()
	err := tx.QueryRow(ctx,
		`INSERT INTO orders (id, buyer_id, status, total_amount, shipping_name, shipping_address, shipping_city, shipping_country, shipping_postal_code, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW()) RETURNING created_at, updated_at`,
		order.ID, order.BuyerID, order.Status, order.TotalAmount,
		order.ShippingName, order.ShippingAddress, order.ShippingCity,
		order.ShippingCountry, order.ShippingPostalCode,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO order_items (id, order_id, listing_id, quantity, price, created_at)
			 VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING created_at`,
			order.Items[i].ID, order.ID, order.Items[i].ListingID,
			order.Items[i].Quantity, order.Items[i].Price,
		).Scan(&order.Items[i].CreatedAt)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

const orderColumns = `id, buyer_id, status, total_amount, shipping_name, shipping_address, shipping_city, shipping_country, shipping_postal_code, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	o := &model.Order{}
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.Status, &o.TotalAmount,
		&o.ShippingName, &o.ShippingAddress, &o.ShippingCity,
		&o.ShippingCountry, &o.ShippingPostalCode, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, listing_id, quantity, price, created_at FROM order_items WHERE order_id = $1 ORDER BY created_at`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.ListingID, &item.Quantity, &item.Price, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.OrderID = order.ID
		order.Items = append(order.Items, item)
	}
	return order, nil
}

func (r *pgOrderRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`, buyerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *pgOrderRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT o.id, o.buyer_id, o.status, o.total_amount, o.shipping_name, o.shipping_address, o.shipping_city, o.shipping_country, o.shipping_postal_code, o.created_at, o.updated_at
		 FROM orders o
		 JOIN order_items oi ON oi.order_id = o.id
		 JOIN listings l ON l.id = oi.listing_id
		 WHERE l.seller_id = $1
		 ORDER BY o.created_at DESC`, sellerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list seller orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

func (r *pgOrderRepo) SellerHasItems(ctx context.Context, orderID, sellerID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM order_items oi
			JOIN listings l ON l.id = oi.listing_id
			WHERE oi.order_id = $1 AND l.seller_id = $2
		)`, orderID, sellerID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check seller items: %w", err)
	}
	return exists, nil
}

func (r *pgOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus) (bool, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
