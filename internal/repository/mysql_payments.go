package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
)

// MySQLPaymentRepository keeps active_order_id set only while an intent is
// INITIATED or SUCCEEDED. Its unique index allows one active intent per order.
type MySQLPaymentRepository struct {
	db *sql.DB
}

func NewMySQLPaymentRepository(db *sql.DB) *MySQLPaymentRepository {
	return &MySQLPaymentRepository{db}
}

const paymentColumns = `id, order_id, amount, payment_method, status, transaction_id, refund_id, failure_reason, created_at, updated_at`

func scanPayment(row interface{ Scan(...interface{}) error }) (*entity.PaymentIntent, error) {
	p := &entity.PaymentIntent{}
	err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.PaymentMethod, &p.Status, &p.TransactionID, &p.RefundID, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func activeOrderID(p *entity.PaymentIntent) interface{} {
	if p.Status.IsActive() {
		return p.OrderID
	}
	return nil
}

func (r *MySQLPaymentRepository) Create(ctx context.Context, intent *entity.PaymentIntent) (*entity.PaymentIntent, error) {
	query := `INSERT INTO payment_intents (` + paymentColumns + `, active_order_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, intent.ID, intent.OrderID, intent.Amount, intent.PaymentMethod, intent.Status,
		intent.TransactionID, intent.RefundID, intent.FailureReason, intent.CreatedAt, intent.UpdatedAt, activeOrderID(intent))
	if err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("order %d already has an active payment intent: %w", intent.OrderID, ErrDuplicate)
		}
		return nil, err
	}
	c := *intent
	return &c, nil
}

func (r *MySQLPaymentRepository) GetByID(ctx context.Context, id string) (*entity.PaymentIntent, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payment_intents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment intent %s: %w", id, ErrNotFound)
	}
	return p, err
}

func (r *MySQLPaymentRepository) ListForOrder(ctx context.Context, orderID int64) ([]*entity.PaymentIntent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payment_intents WHERE order_id = ? ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*entity.PaymentIntent, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *MySQLPaymentRepository) CompareAndSetStatus(ctx context.Context, id string, expected, next entity.PaymentStatus, mutate func(*entity.PaymentIntent)) (*entity.PaymentIntent, error) {
	var updated *entity.PaymentIntent
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		p, err := scanPayment(tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payment_intents WHERE id = ? FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("payment intent %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if p.Status != expected {
			return &StatusConflictError{Expected: string(expected), Current: string(p.Status)}
		}

		if mutate != nil {
			mutate(p)
		}
		p.Status = next
		p.UpdatedAt = time.Now().UTC()

		query := `UPDATE payment_intents SET status = ?, transaction_id = ?, refund_id = ?, failure_reason = ?, updated_at = ?, active_order_id = ? WHERE id = ?`
		_, err = tx.ExecContext(ctx, query, p.Status, p.TransactionID, p.RefundID, p.FailureReason, p.UpdatedAt, activeOrderID(p), p.ID)
		if err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
