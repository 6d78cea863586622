package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Repository interface {
	GetByTradeNo(ctx context.Context, tradeNo string) (*Order, error)
	// MarkPaid reports false when the order was no longer pending.
	MarkPaid(ctx context.Context, tradeNo, callbackNo string, paidAt time.Time) (bool, error)
	SetPayment(ctx context.Context, orderID, paymentID, handlingAmount, totalAmount int64) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByTradeNo(ctx context.Context, tradeNo string) (*Order, error) {
	query := `
		SELECT id, trade_no, user_id, payment_id, COALESCE(email, ''),
			total_amount, handling_amount, status, COALESCE(callback_no, ''),
			paid_at, created_at, updated_at
		FROM orders
		WHERE trade_no = $1
		LIMIT 1
	`

	var (
		o         Order
		paymentID sql.NullInt64
		paidAt    sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, tradeNo).Scan(
		&o.ID, &o.TradeNo, &o.UserID, &paymentID, &o.Email,
		&o.TotalAmount, &o.HandlingAmount, &o.Status, &o.CallbackNo,
		&paidAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if paymentID.Valid {
		id := paymentID.Int64
		o.PaymentID = &id
	}
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}

	return &o, nil
}

func (r *repository) MarkPaid(ctx context.Context, tradeNo, callbackNo string, paidAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, callback_no = $2, paid_at = $3, updated_at = NOW()
		WHERE trade_no = $4 AND status = $5
	`, StatusPaid, callbackNo, paidAt, tradeNo, StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows == 1, nil
}

func (r *repository) SetPayment(ctx context.Context, orderID, paymentID, handlingAmount, totalAmount int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_id = $1, handling_amount = $2, total_amount = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`, paymentID, handlingAmount, totalAmount, orderID, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to set order payment: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrOrderNotPending
	}
	return nil
}
