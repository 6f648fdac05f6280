package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/sharding"
)

type stockStripe struct {
	mu     sync.Mutex
	levels map[int64]*entity.StockLevel
}

// MemoryInventoryLedger keeps stock in lock stripes picked by the shard
// router. Operations touching several products lock their stripes in
// ascending order, so products on different stripes never contend.
type MemoryInventoryLedger struct {
	router  *sharding.ShardRouter
	stripes []*stockStripe

	// resMu is always taken after the stripe locks.
	resMu        sync.Mutex
	reservations map[string]*entity.Reservation

	now func() time.Time
}

func NewMemoryInventoryLedger(router *sharding.ShardRouter) *MemoryInventoryLedger {
	stripes := make([]*stockStripe, router.ShardCount)
	for i := range stripes {
		stripes[i] = &stockStripe{levels: make(map[int64]*entity.StockLevel)}
	}
	return &MemoryInventoryLedger{
		router:       router,
		stripes:      stripes,
		reservations: make(map[string]*entity.Reservation),
		now:          time.Now,
	}
}

func (l *MemoryInventoryLedger) lock(productIDs []int64) func() {
	shards := l.router.ShardsFor(productIDs)
	for _, s := range shards {
		l.stripes[s].mu.Lock()
	}
	return func() {
		for i := len(shards) - 1; i >= 0; i-- {
			l.stripes[shards[i]].mu.Unlock()
		}
	}
}

// level must be called with the product's stripe locked.
func (l *MemoryInventoryLedger) level(productID int64, create bool) *entity.StockLevel {
	stripe := l.stripes[l.router.GetShard(productID)]
	lvl, ok := stripe.levels[productID]
	if !ok && create {
		lvl = &entity.StockLevel{ProductID: productID}
		stripe.levels[productID] = lvl
	}
	return lvl
}

func (l *MemoryInventoryLedger) Reserve(ctx context.Context, orderRef string, lines []entity.ReservationLine) (*entity.Reservation, error) {
	merged, err := MergeLines(lines)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(merged))
	for _, line := range merged {
		ids = append(ids, line.ProductID)
	}

	unlock := l.lock(ids)
	defer unlock()

	for _, line := range merged {
		available := 0
		if lvl := l.level(line.ProductID, false); lvl != nil {
			available = lvl.Available
		}
		if available < line.Quantity {
			return nil, &InsufficientStockError{ProductID: line.ProductID, Requested: line.Quantity, Available: available}
		}
	}

	for _, line := range merged {
		lvl := l.level(line.ProductID, false)
		lvl.Available -= line.Quantity
		lvl.Reserved += line.Quantity
	}

	now := l.now()
	res := &entity.Reservation{
		ID:        uuid.NewString(),
		OrderRef:  orderRef,
		Lines:     merged,
		Status:    entity.ReservationReserved,
		CreatedAt: now,
		UpdatedAt: now,
	}

	l.resMu.Lock()
	l.reservations[res.ID] = res
	l.resMu.Unlock()

	return cloneReservation(res), nil
}

func (l *MemoryInventoryLedger) Release(ctx context.Context, reservationID string) (bool, error) {
	return l.settle(ctx, reservationID, entity.ReservationReleased)
}

func (l *MemoryInventoryLedger) Confirm(ctx context.Context, reservationID string) (bool, error) {
	return l.settle(ctx, reservationID, entity.ReservationConfirmed)
}

// settle moves a RESERVED reservation to its final status. The status check
// and the stock update happen under the same locks, so each reservation is
// credited or sold at most once.
func (l *MemoryInventoryLedger) settle(ctx context.Context, reservationID string, to entity.ReservationStatus) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.resMu.Lock()
	res, ok := l.reservations[reservationID]
	var ids []int64
	if ok {
		for _, line := range res.Lines {
			ids = append(ids, line.ProductID)
		}
	}
	l.resMu.Unlock()
	if !ok {
		return false, fmt.Errorf("reservation %s: %w", reservationID, ErrNotFound)
	}

	unlock := l.lock(ids)
	defer unlock()
	l.resMu.Lock()
	defer l.resMu.Unlock()

	if res.Status != entity.ReservationReserved {
		return false, nil
	}

	for _, line := range res.Lines {
		lvl := l.level(line.ProductID, true)
		lvl.Reserved -= line.Quantity
		if to == entity.ReservationReleased {
			lvl.Available += line.Quantity
		}
	}
	res.Status = to
	res.UpdatedAt = l.now()
	return true, nil
}

func (l *MemoryInventoryLedger) GetReservation(_ context.Context, reservationID string) (*entity.Reservation, error) {
	l.resMu.Lock()
	defer l.resMu.Unlock()

	res, ok := l.reservations[reservationID]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", reservationID, ErrNotFound)
	}
	return cloneReservation(res), nil
}

// BatchStock reads each product under its own stripe lock. The result is a
// per-product snapshot, not a cross-product consistent one.
func (l *MemoryInventoryLedger) BatchStock(_ context.Context, productIDs []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(productIDs))
	for _, id := range productIDs {
		stripe := l.stripes[l.router.GetShard(id)]
		stripe.mu.Lock()
		if lvl, ok := stripe.levels[id]; ok {
			out[id] = lvl.Available
		} else {
			out[id] = 0
		}
		stripe.mu.Unlock()
	}
	return out, nil
}

func (l *MemoryInventoryLedger) StockLevel(_ context.Context, productID int64) (entity.StockLevel, error) {
	unlock := l.lock([]int64{productID})
	defer unlock()

	if lvl := l.level(productID, false); lvl != nil {
		return *lvl, nil
	}
	return entity.StockLevel{ProductID: productID}, nil
}

func (l *MemoryInventoryLedger) AddStock(_ context.Context, productID int64, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("add stock for product %d: negative quantity %d", productID, quantity)
	}
	unlock := l.lock([]int64{productID})
	defer unlock()

	l.level(productID, true).Available += quantity
	return nil
}

func (l *MemoryInventoryLedger) SetStock(_ context.Context, productID int64, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("set stock for product %d: negative quantity %d", productID, quantity)
	}
	unlock := l.lock([]int64{productID})
	defer unlock()

	l.level(productID, true).Available = quantity
	return nil
}

// MergeLines folds duplicate products together and sorts by product id.
func MergeLines(lines []entity.ReservationLine) ([]entity.ReservationLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("reserve: no lines")
	}
	byProduct := make(map[int64]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("reserve product %d: quantity must be positive, got %d", line.ProductID, line.Quantity)
		}
		byProduct[line.ProductID] += line.Quantity
	}

	merged := make([]entity.ReservationLine, 0, len(byProduct))
	for id, qty := range byProduct {
		merged = append(merged, entity.ReservationLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}

func cloneReservation(r *entity.Reservation) *entity.Reservation {
	c := *r
	c.Lines = make([]entity.ReservationLine, len(r.Lines))
	copy(c.Lines, r.Lines)
	return &c
}
