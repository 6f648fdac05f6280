package service

import (
	"context"
	"errors"

	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/metrics"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/repository"
)

// InventoryService is the only writer of stock. Orders and payments go
// through ReserveForOrder and Release.
type InventoryService struct {
	ledger   repository.InventoryLedger
	products repository.ProductRepository
}

func NewInventoryService(ledger repository.InventoryLedger, products repository.ProductRepository) *InventoryService {
	return &InventoryService{ledger: ledger, products: products}
}

// ReserveForOrder reserves every line of the order or none of them.
func (s *InventoryService) ReserveForOrder(ctx context.Context, orderRef string, items []entity.OrderItem) (*entity.Reservation, error) {
	lines := make([]entity.ReservationLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, entity.ReservationLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	res, err := s.ledger.Reserve(ctx, orderRef, lines)
	switch {
	case err == nil:
		metrics.RecordReservation("reserved")
	case errors.Is(err, repository.ErrInsufficientStock):
		metrics.RecordReservation("insufficient")
		logger.Warn().Err(err).Str("order_ref", orderRef).Msg("Reservation rejected")
	default:
		metrics.RecordReservation("error")
		logger.Error().Err(err).Str("order_ref", orderRef).Msg("Error reserving stock")
	}
	return res, err
}

// Release credits a reservation back. Releasing twice is a no-op.
func (s *InventoryService) Release(ctx context.Context, reservationID string) (bool, error) {
	released, err := s.ledger.Release(ctx, reservationID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error releasing reservation %s", reservationID)
		return false, err
	}
	if !released {
		logger.Info().Msgf("Reservation %s already settled", reservationID)
	}
	return released, nil
}

func (s *InventoryService) Confirm(ctx context.Context, reservationID string) (bool, error) {
	confirmed, err := s.ledger.Confirm(ctx, reservationID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error confirming reservation %s", reservationID)
	}
	return confirmed, err
}

func (s *InventoryService) BatchQuery(ctx context.Context, productIDs []int64) (map[int64]int, error) {
	for _, id := range productIDs {
		if id <= 0 {
			return nil, invalid("productIds", "invalid product id %d", id)
		}
	}
	return s.ledger.BatchStock(ctx, productIDs)
}

func (s *InventoryService) AddStock(ctx context.Context, productID int64, quantity int) (entity.StockLevel, error) {
	if quantity <= 0 {
		return entity.StockLevel{}, invalid("quantity", "must be positive")
	}
	if err := s.requireProduct(ctx, productID); err != nil {
		return entity.StockLevel{}, err
	}
	if err := s.ledger.AddStock(ctx, productID, quantity); err != nil {
		logger.Error().Err(err).Msgf("Error adding stock for product %d", productID)
		return entity.StockLevel{}, err
	}
	return s.ledger.StockLevel(ctx, productID)
}

func (s *InventoryService) SetStock(ctx context.Context, productID int64, quantity int) (entity.StockLevel, error) {
	if quantity < 0 {
		return entity.StockLevel{}, invalid("quantity", "must not be negative")
	}
	if err := s.requireProduct(ctx, productID); err != nil {
		return entity.StockLevel{}, err
	}
	if err := s.ledger.SetStock(ctx, productID, quantity); err != nil {
		logger.Error().Err(err).Msgf("Error setting stock for product %d", productID)
		return entity.StockLevel{}, err
	}
	return s.ledger.StockLevel(ctx, productID)
}

func (s *InventoryService) requireProduct(ctx context.Context, productID int64) error {
	if productID <= 0 {
		return invalid("productId", "is required")
	}
	_, err := s.products.GetByID(ctx, productID)
	return notFound(err, "product", productID)
}
