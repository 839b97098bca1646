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

type DeliveryRepository interface {
	// CreateIfAbsent inserts a delivery for the order unless one already
	// exists; at most one delivery per order. Returns false when a row was
	// already there.
	CreateIfAbsent(ctx context.Context, delivery *model.Delivery) (bool, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Delivery, error)
	Update(ctx context.Context, delivery *model.Delivery) error
}

type pgDeliveryRepo struct{ pool *pgxpool.Pool }

func NewDeliveryRepository(pool *pgxpool.Pool) DeliveryRepository {
	return &pgDeliveryRepo{pool: pool}
}

func (r *pgDeliveryRepo) CreateIfAbsent(ctx context.Context, delivery *model.Delivery) (bool, error) {
	delivery.ID = uuid.New()
	ct, err := r.pool.Exec(ctx,
		`INSERT INTO deliveries (id, order_id, status, carrier, tracking_number, estimated_delivery, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 ON CONFLICT (order_id) DO NOTHING`,
		delivery.ID, delivery.OrderID, delivery.Status, delivery.Carrier,
		delivery.TrackingNumber, delivery.EstimatedDelivery,
	)
	if err != nil {
		return false, fmt.Errorf("create delivery: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *pgDeliveryRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Delivery, error) {
	d := &model.Delivery{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, order_id, status, carrier, tracking_number, estimated_delivery, created_at, updated_at
		 FROM deliveries WHERE order_id = $1`, orderID,
	).Scan(&d.ID, &d.OrderID, &d.Status, &d.Carrier, &d.TrackingNumber, &d.EstimatedDelivery, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return d, nil
}

func (r *pgDeliveryRepo) Update(ctx context.Context, delivery *model.Delivery) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE deliveries SET status=$2, carrier=$3, tracking_number=$4, estimated_delivery=$5, updated_at=NOW()
		 WHERE id=$1 RETURNING updated_at`,
		delivery.ID, delivery.Status, delivery.Carrier, delivery.TrackingNumber, delivery.EstimatedDelivery,
	).Scan(&delivery.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("update delivery: %w", err)
	}
	return nil
}
