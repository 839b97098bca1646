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

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	GetByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Payment, error)
	// CompleteIfPending flips the payment to completed only when it is still
	// pending. The conditional update is the idempotency barrier for webhook
	// replays: the first delivery wins, every other one observes false.
	CompleteIfPending(ctx context.Context, id uuid.UUID) (bool, error)
	FailIfPending(ctx context.Context, id uuid.UUID) (bool, error)
}

type pgPaymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepository(pool *pgxpool.Pool) PaymentRepository {
	return &pgPaymentRepo{pool: pool}
}

func (r *pgPaymentRepo) Create(ctx context.Context, payment *model.Payment) error {
	payment.ID = uuid.New()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO payments (id, order_id, amount, provider, status, transaction_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING created_at, updated_at`,
		payment.ID, payment.OrderID, payment.Amount, payment.Provider, payment.Status, payment.TransactionID,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *pgPaymentRepo) GetByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
	p := &model.Payment{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, order_id, amount, provider, status, transaction_id, created_at, updated_at
		 FROM payments WHERE transaction_id = $1`, transactionID,
	).Scan(&p.ID, &p.OrderID, &p.Amount, &p.Provider, &p.Status, &p.TransactionID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by transaction id: %w", err)
	}
	return p, nil
}

func (r *pgPaymentRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, amount, provider, status, transaction_id, created_at, updated_at
		 FROM payments WHERE order_id = $1 ORDER BY created_at DESC`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Provider, &p.Status, &p.TransactionID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, nil
}

func (r *pgPaymentRepo) CompleteIfPending(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.setIfPending(ctx, id, model.PaymentStatusCompleted)
}

func (r *pgPaymentRepo) FailIfPending(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.setIfPending(ctx, id, model.PaymentStatusFailed)
}

func (r *pgPaymentRepo) setIfPending(ctx context.Context, id uuid.UUID, status model.PaymentStatus) (bool, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`,
		id, status, model.PaymentStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
