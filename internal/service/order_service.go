package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/events"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/idempotency"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/metrics"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/repository"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/sharding"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// maxTransitionAttempts bounds how often an operation re-reads the order
// after losing a compare-and-set.
const maxTransitionAttempts = 5

const publishTimeout = 5 * time.Second

const orderLockStripes = 64

type OrderItemRequest struct {
	ProductID int64            `json:"productId"`
	Quantity  int              `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

type CreateOrderRequest struct {
	Items []OrderItemRequest `json:"items"`
}

// PaymentCoordinator is the payment side of the saga as the order service
// sees it.
type PaymentCoordinator interface {
	// ActiveIntent returns the INITIATED or SUCCEEDED intent of an order, or
	// nil when it has none.
	ActiveIntent(ctx context.Context, orderID int64) (*entity.PaymentIntent, error)
	// ResumeCapture applies a SUCCEEDED intent to an order still in PLACED.
	ResumeCapture(ctx context.Context, intent *entity.PaymentIntent) error
	// RequestRefund starts the refund of an order in REFUND_PENDING. The
	// result comes back through CompleteRefund.
	RequestRefund(orderID int64)
}

// OrderService drives the order saga: reserve, create, place, and the
// compensations for cancel before and after payment.
type OrderService struct {
	orders         repository.OrderRepository
	products       repository.ProductRepository
	inventory      *InventoryService
	publisher      events.Publisher
	keys           idempotency.Store
	idempotencyTTL time.Duration
	payments       PaymentCoordinator
	now            func() time.Time

	lockRouter *sharding.ShardRouter
	locks      []sync.Mutex
}

// NewOrderService creates a new instance of OrderService. keys may be nil,
// in which case Idempotency-Key headers are ignored.
func NewOrderService(orders repository.OrderRepository, products repository.ProductRepository, inventory *InventoryService, publisher events.Publisher, keys idempotency.Store, idempotencyTTL time.Duration) *OrderService {
	return &OrderService{
		orders:         orders,
		products:       products,
		inventory:      inventory,
		publisher:      publisher,
		keys:           keys,
		idempotencyTTL: idempotencyTTL,
		now:            time.Now,
		lockRouter:     sharding.NewShardRouter(orderLockStripes),
		locks:          make([]sync.Mutex, orderLockStripes),
	}
}

// SetPaymentCoordinator wires the payment side of the saga. It must be called
// before the service handles traffic.
func (s *OrderService) SetPaymentCoordinator(p PaymentCoordinator) {
	s.payments = p
}

// lockOrder serialises payment initiation with cancellation of the same
// order within this process.
func (s *OrderService) lockOrder(orderID int64) func() {
	mu := &s.locks[s.lockRouter.GetShard(orderID)]
	mu.Lock()
	return mu.Unlock
}

// CreateOrder reserves stock for every line, stores the order and places it.
// When reservation fails nothing is stored; when storing fails the
// reservation is released again.
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, req CreateOrderRequest, idempotencyKey string) (*entity.Order, error) {
	if err := validateCreateOrder(req); err != nil {
		return nil, err
	}

	items, err := s.priceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	var claimKey string
	if idempotencyKey != "" && s.keys != nil {
		claimKey = fmt.Sprintf("order:%d:%s", userID, idempotencyKey)
		existing, err := s.claimIdempotentKey(ctx, claimKey)
		if err != nil || existing != nil {
			return existing, err
		}
	}

	order, err := s.createOrder(ctx, userID, items)
	if err != nil {
		metrics.RecordOperation("create_order", false)
		if claimKey != "" {
			if relErr := s.keys.Release(context.WithoutCancel(ctx), claimKey); relErr != nil {
				logger.Error().Err(relErr).Msgf("Error releasing idempotent key %s", claimKey)
			}
		}
		return nil, err
	}
	metrics.RecordOperation("create_order", true)

	if claimKey != "" {
		if err := s.keys.Set(ctx, claimKey, strconv.FormatInt(order.ID, 10), s.idempotencyTTL); err != nil {
			logger.Error().Err(err).Msgf("Error storing idempotent key %s", claimKey)
		}
	}

	s.publish(ctx, events.OrderEvent(events.OrderCreated, order))
	return order, nil
}

func (s *OrderService) createOrder(ctx context.Context, userID int64, items []entity.OrderItem) (*entity.Order, error) {
	orderID, err := s.orders.NextID(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error allocating order id")
		return nil, err
	}

	reservation, err := s.inventory.ReserveForOrder(ctx, orderRef(orderID), items)
	if err != nil {
		return nil, err
	}

	order := entity.NewOrder(userID, items, s.now().UTC())
	order.ID = orderID
	order.ReservationID = reservation.ID

	created, err := s.orders.Create(ctx, &order)
	if err != nil {
		logger.Error().Err(err).Msgf("Error creating order %d, releasing reservation %s", orderID, reservation.ID)
		s.releaseDetached(reservation.ID)
		return nil, err
	}

	placed, err := s.transition(ctx, created, entity.EventPlace)
	if err != nil {
		// The order stays CREATED and keeps its reservation.
		logger.Error().Err(err).Msgf("Error placing order %d", orderID)
		return nil, err
	}

	logger.Info().Int64("order_id", placed.ID).Int64("user_id", userID).Str("total", placed.TotalAmount.String()).Msg("Order placed")
	return placed, nil
}

func validateCreateOrder(req CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return invalid("items", "must not be empty")
	}
	for i, item := range req.Items {
		if item.ProductID <= 0 {
			return invalid(fmt.Sprintf("items[%d].productId", i), "is required")
		}
		if item.Quantity <= 0 {
			return invalid(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
		if item.Price != nil && item.Price.IsNegative() {
			return invalid(fmt.Sprintf("items[%d].price", i), "must not be negative")
		}
	}
	return nil
}

// priceItems resolves every product and snapshots its catalog price. The
// price sent by the client is not trusted.
func (s *OrderService) priceItems(ctx context.Context, req []OrderItemRequest) ([]entity.OrderItem, error) {
	items := make([]entity.OrderItem, 0, len(req))
	for _, line := range req {
		product, err := s.products.GetByID(ctx, line.ProductID)
		if err != nil {
			return nil, notFound(err, "product", line.ProductID)
		}
		if product.Status != entity.ProductActive {
			return nil, invalid("productId", "product %d is not available", product.ID)
		}
		items = append(items, entity.OrderItem{ProductID: product.ID, Quantity: line.Quantity, Price: product.Price})
	}
	return items, nil
}

// claimIdempotentKey returns the order already created under key, or nil
// when this call now owns the key.
func (s *OrderService) claimIdempotentKey(ctx context.Context, key string) (*entity.Order, error) {
	claimed, err := s.keys.Claim(ctx, key, s.idempotencyTTL)
	if err != nil {
		logger.Error().Err(err).Msgf("Error claiming idempotent key %s", key)
		return nil, err
	}
	if claimed {
		return nil, nil
	}

	val, ok, err := s.keys.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || val == idempotency.Pending {
		return nil, &ConflictError{Message: "a request with this idempotency key is still in progress"}
	}

	orderID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("idempotent key %s holds %q: %w", key, val, err)
	}
	logger.Info().Msgf("Replaying order %d for idempotent key %s", orderID, key)
	order, err := s.orders.GetByID(ctx, orderID)
	return order, notFound(err, "order", orderID)
}

// CancelOrder is safe to repeat. Before payment it releases the stock; after
// payment it moves the order to REFUND_PENDING and hands the refund to the
// payment side. Orders already on the cancel path are returned as they are,
// and a PLACED order whose charge is still in flight is a conflict.
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64, actor Actor) (*entity.Order, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		order, err := s.GetOrder(ctx, orderID, actor)
		if err != nil {
			return nil, err
		}

		switch {
		case order.Status.InCancelPath():
			return order, nil

		case order.Status == entity.StatusPlaced:
			cancelled, retry, err := s.cancelPlaced(ctx, orderID)
			if retry {
				continue
			}
			if err != nil {
				metrics.RecordOperation("cancel_order", false)
				return nil, err
			}
			if _, err := s.inventory.Release(context.WithoutCancel(ctx), cancelled.ReservationID); err != nil {
				logger.Error().Err(err).Msgf("Order %d cancelled but reservation %s was not released", orderID, cancelled.ReservationID)
			}
			metrics.RecordOperation("cancel_order", true)
			s.publish(ctx, events.OrderEvent(events.OrderCancelled, cancelled))
			return cancelled, nil

		case order.Status == entity.StatusPaid:
			pending, err := s.transition(ctx, order, entity.EventCancel)
			if errors.Is(err, repository.ErrStatusConflict) {
				continue
			}
			if err != nil {
				metrics.RecordOperation("cancel_order", false)
				return nil, err
			}
			metrics.RecordOperation("cancel_order", true)
			s.publish(ctx, events.OrderEvent(events.RefundRequested, pending))
			if s.payments == nil {
				logger.Error().Bool("alert", true).Msgf("Order %d is waiting for a refund but no refund handler is configured", orderID)
			} else {
				s.payments.RequestRefund(orderID)
			}
			return pending, nil

		default:
			return nil, conflict(order, "order %d cannot be cancelled", orderID)
		}
	}

	order, err := s.GetOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	return nil, conflict(order, "order %d is changing concurrently", orderID)
}

// cancelPlaced cancels a PLACED order that has no payment in flight. An
// INITIATED intent is a conflict until the gateway answers. A SUCCEEDED
// intent that never reached the order is applied first, and retry tells the
// caller to take the after-payment path on the order's new status.
func (s *OrderService) cancelPlaced(ctx context.Context, orderID int64) (cancelled *entity.Order, retry bool, err error) {
	unlock := s.lockOrder(orderID)
	defer unlock()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, false, notFound(err, "order", orderID)
	}
	if order.Status != entity.StatusPlaced {
		return nil, true, nil
	}

	if s.payments != nil {
		intent, err := s.payments.ActiveIntent(ctx, orderID)
		if err != nil {
			logger.Error().Err(err).Msgf("Error looking up payment of order %d", orderID)
			return nil, false, err
		}
		switch {
		case intent == nil:
		case intent.Status == entity.PaymentInitiated:
			return nil, false, conflict(order, "order %d has a payment in progress", orderID)
		default:
			logger.Warn().Str("intent_id", intent.ID).Int64("order_id", orderID).Msg("Captured payment not applied to order, applying before cancel")
			if err := s.payments.ResumeCapture(ctx, intent); err != nil {
				return nil, false, err
			}
			return nil, true, nil
		}
	}

	cancelled, err = s.transition(ctx, order, entity.EventCancel)
	if errors.Is(err, repository.ErrStatusConflict) {
		return nil, true, nil
	}
	return cancelled, false, err
}

// DeliverOrder closes a PLACED or PAID order and turns its reservation into
// sold stock.
func (s *OrderService) DeliverOrder(ctx context.Context, orderID int64, actor Actor) (*entity.Order, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		order, err := s.GetOrder(ctx, orderID, actor)
		if err != nil {
			return nil, err
		}
		if !order.Status.CanApply(entity.EventDeliver) {
			return nil, conflict(order, "order %d cannot be delivered", orderID)
		}

		delivered, err := s.transition(ctx, order, entity.EventDeliver)
		if errors.Is(err, repository.ErrStatusConflict) {
			continue
		}
		if err != nil {
			metrics.RecordOperation("deliver_order", false)
			return nil, err
		}
		if _, err := s.inventory.Confirm(context.WithoutCancel(ctx), delivered.ReservationID); err != nil {
			logger.Error().Err(err).Msgf("Order %d delivered but reservation %s was not confirmed", orderID, delivered.ReservationID)
		}
		metrics.RecordOperation("deliver_order", true)
		s.publish(ctx, events.OrderEvent(events.OrderDelivered, delivered))
		return delivered, nil
	}

	order, err := s.GetOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	return nil, conflict(order, "order %d is changing concurrently", orderID)
}

// OnPaymentSucceeded moves a PLACED order to PAID. A StatusConflictError
// carries the status the order had moved to instead.
func (s *OrderService) OnPaymentSucceeded(ctx context.Context, orderID int64) (*entity.Order, error) {
	next, err := entity.NextStatus(entity.StatusPlaced, entity.EventPaymentSucceeded)
	if err != nil {
		return nil, err
	}

	paid, err := s.orders.CompareAndSetStatus(ctx, orderID, entity.StatusPlaced, next)
	if err != nil {
		logger.Warn().Err(err).Msgf("Order %d not marked paid", orderID)
		metrics.RecordOperation("mark_paid", false)
		return nil, err
	}
	metrics.RecordOperation("mark_paid", true)
	logger.Info().Int64("order_id", orderID).Msg("Order paid")
	return paid, nil
}

// CompleteRefund finishes the cancel-after-payment path. A successful refund
// releases the stock and cancels the order. A failed refund parks the order
// in REFUND_FAILED with its stock still held; it is not retried.
func (s *OrderService) CompleteRefund(ctx context.Context, orderID int64, succeeded bool, reason string) (*entity.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order", orderID)
	}

	event := entity.EventRefundFailed
	if succeeded {
		event = entity.EventRefundSucceeded
	}

	updated, err := s.transition(ctx, order, event)
	if err != nil {
		logger.Error().Err(err).Msgf("Error completing refund for order %d", orderID)
		return nil, err
	}

	if succeeded {
		if _, err := s.inventory.Release(ctx, updated.ReservationID); err != nil {
			logger.Error().Err(err).Msgf("Order %d refunded but reservation %s was not released", orderID, updated.ReservationID)
		}
		metrics.RecordOperation("refund", true)
		s.publish(ctx, events.OrderEvent(events.RefundSuccess, updated))
		return updated, nil
	}

	metrics.RecordOperation("refund", false)
	metrics.RecordRefundFailure()
	logger.Error().
		Bool("alert", true).
		Int64("order_id", orderID).
		Str("reason", reason).
		Msg("Refund failed, order needs manual intervention")

	ev := events.OrderEvent(events.RefundFailed, updated)
	ev.Reason = reason
	s.publish(ctx, ev)
	return updated, nil
}

// GetOrder returns the order if actor owns it or is an admin.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64, actor Actor) (*entity.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order", orderID)
	}
	if !actor.canSee(order) {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *OrderService) ListMyOrders(ctx context.Context, actor Actor) ([]*entity.Order, error) {
	return s.orders.ListByUser(ctx, actor.UserID)
}

func (s *OrderService) ListAllOrders(ctx context.Context, actor Actor) ([]*entity.Order, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	return s.orders.ListAll(ctx)
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID int64, actor Actor) ([]*entity.Order, error) {
	if !actor.Admin && actor.UserID != userID {
		return nil, ErrForbidden
	}
	return s.orders.ListByUser(ctx, userID)
}

// transition applies ev to the order through a compare-and-set on its
// current status.
func (s *OrderService) transition(ctx context.Context, order *entity.Order, ev entity.OrderEvent) (*entity.Order, error) {
	next, err := entity.NextStatus(order.Status, ev)
	if err != nil {
		return nil, conflict(order, "order %d: %v", order.ID, err)
	}
	return s.orders.CompareAndSetStatus(ctx, order.ID, order.Status, next)
}

// releaseDetached releases a reservation even if the request context is
// already cancelled.
func (s *OrderService) releaseDetached(reservationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if _, err := s.inventory.Release(ctx, reservationID); err != nil {
		logger.Error().Err(err).Bool("alert", true).Msgf("Error releasing reservation %s", reservationID)
	}
}

// publish is best effort: the state change is already stored.
func (s *OrderService) publish(ctx context.Context, ev events.Event) {
	publishEvent(ctx, s.publisher, ev)
}

func publishEvent(ctx context.Context, publisher events.Publisher, ev events.Event) {
	if publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := publisher.Publish(ctx, ev); err != nil {
		logger.Error().Err(err).Str("event_type", string(ev.Type)).Int64("order_id", ev.OrderID).Msg("Error publishing event")
	}
}

func orderRef(orderID int64) string {
	return "order-" + strconv.FormatInt(orderID, 10)
}
