package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStatusConflict    = errors.New("status conflict")
	ErrDuplicate         = errors.New("duplicate")
)

// InsufficientStockError names the first line that could not be covered.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// StatusConflictError is returned by compare-and-set when the stored status
// is not the expected one. Current is what the caller lost against.
type StatusConflictError struct {
	Expected string
	Current  string
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("status conflict: expected %s, found %s", e.Expected, e.Current)
}

func (e *StatusConflictError) Unwrap() error { return ErrStatusConflict }

type OrderRepository interface {
	NextID(ctx context.Context) (int64, error)
	Create(ctx context.Context, order *entity.Order) (*entity.Order, error)
	GetByID(ctx context.Context, id int64) (*entity.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]*entity.Order, error)
	ListAll(ctx context.Context) ([]*entity.Order, error)
	// CompareAndSetStatus moves the order to next only if it is currently
	// in expected, and returns the updated order.
	CompareAndSetStatus(ctx context.Context, id int64, expected, next entity.OrderStatus) (*entity.Order, error)
}

// InventoryLedger owns available quantities. Nothing else writes stock.
type InventoryLedger interface {
	// Reserve decrements every line or none of them.
	Reserve(ctx context.Context, orderRef string, lines []entity.ReservationLine) (*entity.Reservation, error)
	// Release credits a RESERVED reservation back. It reports false when the
	// reservation was already released or confirmed.
	Release(ctx context.Context, reservationID string) (bool, error)
	// Confirm turns held stock into sold stock.
	Confirm(ctx context.Context, reservationID string) (bool, error)
	GetReservation(ctx context.Context, reservationID string) (*entity.Reservation, error)
	BatchStock(ctx context.Context, productIDs []int64) (map[int64]int, error)
	StockLevel(ctx context.Context, productID int64) (entity.StockLevel, error)
	AddStock(ctx context.Context, productID int64, quantity int) error
	SetStock(ctx context.Context, productID int64, quantity int) error
}

type PaymentRepository interface {
	Create(ctx context.Context, intent *entity.PaymentIntent) (*entity.PaymentIntent, error)
	GetByID(ctx context.Context, id string) (*entity.PaymentIntent, error)
	ListForOrder(ctx context.Context, orderID int64) ([]*entity.PaymentIntent, error)
	// CompareAndSetStatus applies mutate and moves the intent to next only
	// if it is currently in expected.
	CompareAndSetStatus(ctx context.Context, id string, expected, next entity.PaymentStatus, mutate func(*entity.PaymentIntent)) (*entity.PaymentIntent, error)
}

type ProductRepository interface {
	List(ctx context.Context) ([]*entity.Product, error)
	GetByID(ctx context.Context, id int64) (*entity.Product, error)
	Create(ctx context.Context, product *entity.Product) (*entity.Product, error)
}

type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	Create(ctx context.Context, user *entity.User) (*entity.User, error)
}

// ActiveIntent returns the intent blocking a new payment for the order, if any.
func ActiveIntent(intents []*entity.PaymentIntent) *entity.PaymentIntent {
	for _, intent := range intents {
		if intent.Status.IsActive() {
			return intent
		}
	}
	return nil
}

// SucceededIntent returns the captured intent of an order, if any.
func SucceededIntent(intents []*entity.PaymentIntent) *entity.PaymentIntent {
	for _, intent := range intents {
		if intent.Status == entity.PaymentSucceeded {
			return intent
		}
	}
	return nil
}
