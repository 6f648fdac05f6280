package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
)

type MemoryPaymentRepository struct {
	mu      sync.RWMutex
	intents map[string]*entity.PaymentIntent
	now     func() time.Time
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		intents: make(map[string]*entity.PaymentIntent),
		now:     time.Now,
	}
}

// Create stores the intent unless the order already has an active one.
func (r *MemoryPaymentRepository) Create(_ context.Context, intent *entity.PaymentIntent) (*entity.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.intents[intent.ID]; ok {
		return nil, fmt.Errorf("payment intent %s: %w", intent.ID, ErrDuplicate)
	}
	for _, existing := range r.intents {
		if existing.OrderID == intent.OrderID && existing.Status.IsActive() {
			return nil, fmt.Errorf("order %d already has payment intent %s in %s: %w", intent.OrderID, existing.ID, existing.Status, ErrDuplicate)
		}
	}

	c := *intent
	r.intents[intent.ID] = &c
	out := c
	return &out, nil
}

func (r *MemoryPaymentRepository) GetByID(_ context.Context, id string) (*entity.PaymentIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	intent, ok := r.intents[id]
	if !ok {
		return nil, fmt.Errorf("payment intent %s: %w", id, ErrNotFound)
	}
	c := *intent
	return &c, nil
}

func (r *MemoryPaymentRepository) ListForOrder(_ context.Context, orderID int64) ([]*entity.PaymentIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.PaymentIntent, 0)
	for _, intent := range r.intents {
		if intent.OrderID == orderID {
			c := *intent
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryPaymentRepository) CompareAndSetStatus(_ context.Context, id string, expected, next entity.PaymentStatus, mutate func(*entity.PaymentIntent)) (*entity.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	intent, ok := r.intents[id]
	if !ok {
		return nil, fmt.Errorf("payment intent %s: %w", id, ErrNotFound)
	}
	if intent.Status != expected {
		return nil, &StatusConflictError{Expected: string(expected), Current: string(intent.Status)}
	}
	if mutate != nil {
		mutate(intent)
	}
	intent.Status = next
	intent.UpdatedAt = r.now()
	c := *intent
	return &c, nil
}
