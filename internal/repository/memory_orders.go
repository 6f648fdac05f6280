package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
)

type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[int64]*entity.Order
	seq    atomic.Int64
	now    func() time.Time
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: make(map[int64]*entity.Order),
		now:    time.Now,
	}
}

func (r *MemoryOrderRepository) NextID(_ context.Context) (int64, error) {
	return r.seq.Add(1), nil
}

func (r *MemoryOrderRepository) Create(_ context.Context, order *entity.Order) (*entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.ID == 0 {
		order.ID = r.seq.Add(1)
	}
	if _, ok := r.orders[order.ID]; ok {
		return nil, fmt.Errorf("order %d: %w", order.ID, ErrDuplicate)
	}
	r.orders[order.ID] = order.Clone()
	return order.Clone(), nil
}

func (r *MemoryOrderRepository) GetByID(_ context.Context, id int64) (*entity.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return order.Clone(), nil
}

func (r *MemoryOrderRepository) ListByUser(_ context.Context, userID int64) ([]*entity.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.Order, 0)
	for _, order := range r.orders {
		if order.UserID == userID {
			out = append(out, order.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *MemoryOrderRepository) ListAll(_ context.Context) ([]*entity.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.Order, 0, len(r.orders))
	for _, order := range r.orders {
		out = append(out, order.Clone())
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *MemoryOrderRepository) CompareAndSetStatus(_ context.Context, id int64, expected, next entity.OrderStatus) (*entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if order.Status != expected {
		return nil, &StatusConflictError{Expected: string(expected), Current: string(order.Status)}
	}
	order.Status = next
	order.UpdatedAt = r.now()
	return order.Clone(), nil
}

// sortNewestFirst orders by creation time, then id, descending.
func sortNewestFirst(orders []*entity.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}
