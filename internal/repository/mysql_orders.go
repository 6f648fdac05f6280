package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/sharding"
	"golang.org/x/sync/errgroup"
)

// MySQLOrderRepository spreads orders over database shards by order id.
// Ids come from a sequence table on the first shard so the shard is known
// before the row is written.
type MySQLOrderRepository struct {
	dbShards []*sql.DB
	router   *sharding.ShardRouter
}

func NewMySQLOrderRepository(dbShards []*sql.DB, router *sharding.ShardRouter) *MySQLOrderRepository {
	return &MySQLOrderRepository{dbShards, router}
}

func (r *MySQLOrderRepository) shard(orderID int64) *sql.DB {
	return r.dbShards[r.router.GetShard(orderID)]
}

func (r *MySQLOrderRepository) NextID(ctx context.Context) (int64, error) {
	res, err := r.dbShards[0].ExecContext(ctx, `INSERT INTO order_ids () VALUES ()`)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *MySQLOrderRepository) Create(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	if order.ID == 0 {
		id, err := r.NextID(ctx)
		if err != nil {
			return nil, err
		}
		order.ID = id
	}

	err := withTx(ctx, r.shard(order.ID), func(tx *sql.Tx) error {
		orderQuery := `INSERT INTO orders (id, user_id, status, total_amount, reservation_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
		_, err := tx.ExecContext(ctx, orderQuery, order.ID, order.UserID, order.Status, order.TotalAmount, order.ReservationID, order.CreatedAt, order.UpdatedAt)
		if err != nil {
			if isDuplicate(err) {
				return fmt.Errorf("order %d: %w", order.ID, ErrDuplicate)
			}
			return err
		}

		if len(order.Items) == 0 {
			return nil
		}

		// Insert order items with batch
		itemQuery := `INSERT INTO order_items (order_id, product_id, quantity, price) VALUES `
		var values []interface{}
		for _, item := range order.Items {
			itemQuery += "(?, ?, ?, ?),"
			values = append(values, order.ID, item.ProductID, item.Quantity, item.Price)
		}
		itemQuery = itemQuery[:len(itemQuery)-1]

		_, err = tx.ExecContext(ctx, itemQuery, values...)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order.Clone(), nil
}

const orderColumns = `id, user_id, status, total_amount, reservation_id, created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*entity.Order, error) {
	order := &entity.Order{}
	err := row.Scan(&order.ID, &order.UserID, &order.Status, &order.TotalAmount, &order.ReservationID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *MySQLOrderRepository) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	db := r.shard(id)

	order, err := scanOrder(db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := loadItems(ctx, db, []*entity.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *MySQLOrderRepository) ListByUser(ctx context.Context, userID int64) ([]*entity.Order, error) {
	return r.queryAllShards(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = ?`, userID)
}

func (r *MySQLOrderRepository) ListAll(ctx context.Context) ([]*entity.Order, error) {
	return r.queryAllShards(ctx, `SELECT `+orderColumns+` FROM orders`)
}

// queryAllShards runs the query on every shard concurrently and merges the
// results newest first.
func (r *MySQLOrderRepository) queryAllShards(ctx context.Context, query string, args ...interface{}) ([]*entity.Order, error) {
	var (
		mu  sync.Mutex
		out = make([]*entity.Order, 0)
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, db := range r.dbShards {
		db := db
		g.Go(func() error {
			rows, err := db.QueryContext(ctx, query, args...)
			if err != nil {
				return err
			}
			defer rows.Close()

			var orders []*entity.Order
			for rows.Next() {
				order, err := scanOrder(rows)
				if err != nil {
					return err
				}
				orders = append(orders, order)
			}
			if err := rows.Err(); err != nil {
				return err
			}

			if err := loadItems(ctx, db, orders); err != nil {
				return err
			}

			mu.Lock()
			out = append(out, orders...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortNewestFirst(out)
	return out, nil
}

func loadItems(ctx context.Context, db *sql.DB, orders []*entity.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[int64]*entity.Order, len(orders))
	ids := make([]interface{}, 0, len(orders))
	for _, order := range orders {
		byID[order.ID] = order
		ids = append(ids, order.ID)
	}

	query := `SELECT order_id, product_id, quantity, price FROM order_items WHERE order_id IN (` + placeholders(len(ids)) + `) ORDER BY id`
	rows, err := db.QueryContext(ctx, query, ids...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var orderID int64
		item := entity.OrderItem{}
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return err
		}
		if order, ok := byID[orderID]; ok {
			order.Items = append(order.Items, item)
		}
	}
	return rows.Err()
}

func (r *MySQLOrderRepository) CompareAndSetStatus(ctx context.Context, id int64, expected, next entity.OrderStatus) (*entity.Order, error) {
	db := r.shard(id)

	res, err := db.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = UTC_TIMESTAMP(6) WHERE id = ? AND status = ?`, next, id, expected)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	order, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &StatusConflictError{Expected: string(expected), Current: string(order.Status)}
	}
	return order, nil
}
