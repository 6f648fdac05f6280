package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
)

// MySQLInventoryLedger holds stock rows with SELECT ... FOR UPDATE. Rows are
// always locked in ascending product id order.
type MySQLInventoryLedger struct {
	db *sql.DB
}

func NewMySQLInventoryLedger(db *sql.DB) *MySQLInventoryLedger {
	return &MySQLInventoryLedger{db}
}

func (l *MySQLInventoryLedger) Reserve(ctx context.Context, orderRef string, lines []entity.ReservationLine) (*entity.Reservation, error) {
	merged, err := MergeLines(lines)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res := &entity.Reservation{
		ID:        uuid.NewString(),
		OrderRef:  orderRef,
		Lines:     merged,
		Status:    entity.ReservationReserved,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = withTx(ctx, l.db, func(tx *sql.Tx) error {
		ids := make([]interface{}, 0, len(merged))
		for _, line := range merged {
			ids = append(ids, line.ProductID)
		}

		query := `SELECT product_id, available FROM inventory WHERE product_id IN (` + placeholders(len(ids)) + `) ORDER BY product_id FOR UPDATE`
		rows, err := tx.QueryContext(ctx, query, ids...)
		if err != nil {
			return err
		}
		available := make(map[int64]int, len(merged))
		for rows.Next() {
			var productID int64
			var qty int
			if err := rows.Scan(&productID, &qty); err != nil {
				rows.Close()
				return err
			}
			available[productID] = qty
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, line := range merged {
			if available[line.ProductID] < line.Quantity {
				return &InsufficientStockError{ProductID: line.ProductID, Requested: line.Quantity, Available: available[line.ProductID]}
			}
		}

		for _, line := range merged {
			_, err := tx.ExecContext(ctx, `UPDATE inventory SET available = available - ?, reserved = reserved + ? WHERE product_id = ?`, line.Quantity, line.Quantity, line.ProductID)
			if err != nil {
				return err
			}
		}

		insert := `INSERT INTO inventory_reservations (id, product_id, order_ref, quantity, status, created_at, updated_at) VALUES `
		var values []interface{}
		for _, line := range merged {
			insert += "(?, ?, ?, ?, ?, ?, ?),"
			values = append(values, res.ID, line.ProductID, orderRef, line.Quantity, res.Status, now, now)
		}
		insert = insert[:len(insert)-1]

		_, err = tx.ExecContext(ctx, insert, values...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (l *MySQLInventoryLedger) Release(ctx context.Context, reservationID string) (bool, error) {
	return l.settle(ctx, reservationID, entity.ReservationReleased)
}

func (l *MySQLInventoryLedger) Confirm(ctx context.Context, reservationID string) (bool, error) {
	return l.settle(ctx, reservationID, entity.ReservationConfirmed)
}

func (l *MySQLInventoryLedger) settle(ctx context.Context, reservationID string, to entity.ReservationStatus) (bool, error) {
	settled := false
	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT product_id, quantity, status FROM inventory_reservations WHERE id = ? ORDER BY product_id FOR UPDATE`, reservationID)
		if err != nil {
			return err
		}
		var lines []entity.ReservationLine
		status := entity.ReservationStatus("")
		for rows.Next() {
			var line entity.ReservationLine
			if err := rows.Scan(&line.ProductID, &line.Quantity, &status); err != nil {
				rows.Close()
				return err
			}
			lines = append(lines, line)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if len(lines) == 0 {
			return fmt.Errorf("reservation %s: %w", reservationID, ErrNotFound)
		}
		if status != entity.ReservationReserved {
			return nil
		}

		credit := 0
		if to == entity.ReservationReleased {
			credit = 1
		}
		for _, line := range lines {
			_, err := tx.ExecContext(ctx, `UPDATE inventory SET reserved = reserved - ?, available = available + ? WHERE product_id = ?`, line.Quantity, line.Quantity*credit, line.ProductID)
			if err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `UPDATE inventory_reservations SET status = ?, updated_at = UTC_TIMESTAMP(6) WHERE id = ?`, to, reservationID)
		if err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return settled, nil
}

func (l *MySQLInventoryLedger) GetReservation(ctx context.Context, reservationID string) (*entity.Reservation, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT product_id, order_ref, quantity, status, created_at, updated_at FROM inventory_reservations WHERE id = ? ORDER BY product_id`, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := &entity.Reservation{ID: reservationID}
	for rows.Next() {
		var line entity.ReservationLine
		if err := rows.Scan(&line.ProductID, &res.OrderRef, &line.Quantity, &res.Status, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		res.Lines = append(res.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(res.Lines) == 0 {
		return nil, fmt.Errorf("reservation %s: %w", reservationID, ErrNotFound)
	}
	return res, nil
}

func (l *MySQLInventoryLedger) BatchStock(ctx context.Context, productIDs []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	ids := make([]interface{}, 0, len(productIDs))
	for _, id := range productIDs {
		out[id] = 0
		ids = append(ids, id)
	}

	rows, err := l.db.QueryContext(ctx, `SELECT product_id, available FROM inventory WHERE product_id IN (`+placeholders(len(ids))+`)`, ids...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var productID int64
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		out[productID] = qty
	}
	return out, rows.Err()
}

func (l *MySQLInventoryLedger) StockLevel(ctx context.Context, productID int64) (entity.StockLevel, error) {
	lvl := entity.StockLevel{ProductID: productID}
	err := l.db.QueryRowContext(ctx, `SELECT available, reserved FROM inventory WHERE product_id = ?`, productID).Scan(&lvl.Available, &lvl.Reserved)
	if err == sql.ErrNoRows {
		return lvl, nil
	}
	return lvl, err
}

func (l *MySQLInventoryLedger) AddStock(ctx context.Context, productID int64, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("add stock for product %d: negative quantity %d", productID, quantity)
	}
	_, err := l.db.ExecContext(ctx, `INSERT INTO inventory (product_id, available, reserved) VALUES (?, ?, 0)
		ON DUPLICATE KEY UPDATE available = available + VALUES(available)`, productID, quantity)
	return err
}

func (l *MySQLInventoryLedger) SetStock(ctx context.Context, productID int64, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("set stock for product %d: negative quantity %d", productID, quantity)
	}
	_, err := l.db.ExecContext(ctx, `INSERT INTO inventory (product_id, available, reserved) VALUES (?, ?, 0)
		ON DUPLICATE KEY UPDATE available = VALUES(available)`, productID, quantity)
	return err
}
