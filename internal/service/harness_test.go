package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/events"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/gateway"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/idempotency"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/repository"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/sharding"
	"github.com/stretchr/testify/require"
)

const (
	widgetID   int64 = 1 // 10.00, 5 in stock
	gadgetID   int64 = 2 // 2.50, 1 in stock
	retiredID  int64 = 3 // inactive
	customerID int64 = 100
	otherID    int64 = 200
)

var (
	customer = Actor{UserID: customerID}
	stranger = Actor{UserID: otherID}
	admin    = Actor{UserID: 1, Admin: true}
)

type fakeGateway struct {
	mu        sync.Mutex
	chargeErr error
	refundErr error
	hold      chan struct{}
	started   chan struct{}
	charges   int
	refunds   []gateway.RefundRequest
}

func (g *fakeGateway) Charge(ctx context.Context, req gateway.ChargeRequest) (string, error) {
	g.mu.Lock()
	g.charges++
	hold, err, started := g.hold, g.chargeErr, g.started
	g.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return "txn-" + req.IntentID, nil
}

func (g *fakeGateway) Refund(_ context.Context, req gateway.RefundRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, req)
	if g.refundErr != nil {
		return "", g.refundErr
	}
	return "refund-" + req.IntentID, nil
}

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

func (g *fakeGateway) chargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.charges
}

type harness struct {
	orders    *OrderService
	payments  *PaymentService
	inventory *InventoryService
	ledger    *repository.MemoryInventoryLedger
	intents   *repository.MemoryPaymentRepository
	recorder  *events.Recorder
	gw        *fakeGateway
}

// flakyOrders fails the next PLACED to PAID update once armed.
type flakyOrders struct {
	*repository.MemoryOrderRepository
	failPaid atomic.Bool
}

func (r *flakyOrders) CompareAndSetStatus(ctx context.Context, id int64, expected, next entity.OrderStatus) (*entity.Order, error) {
	if next == entity.StatusPaid && r.failPaid.CompareAndSwap(true, false) {
		return nil, errors.New("order store unavailable")
	}
	return r.MemoryOrderRepository.CompareAndSetStatus(ctx, id, expected, next)
}

// brokenPaymentLookup fails every ListForOrder.
type brokenPaymentLookup struct {
	*repository.MemoryPaymentRepository
}

func (r brokenPaymentLookup) ListForOrder(context.Context, int64) ([]*entity.PaymentIntent, error) {
	return nil, errors.New("payment store unavailable")
}

func newHarness(t *testing.T, gw *fakeGateway, paymentTimeout time.Duration) *harness {
	t.Helper()
	return newHarnessWithOrders(t, gw, paymentTimeout, repository.NewMemoryOrderRepository())
}

func newHarnessWithOrders(t *testing.T, gw *fakeGateway, paymentTimeout time.Duration, orderRepo repository.OrderRepository) *harness {
	t.Helper()
	ctx := context.Background()

	products := repository.NewMemoryProductRepository()
	for _, p := range []*entity.Product{
		{ID: widgetID, Name: "Widget", Price: decimal.RequireFromString("10.00"), Status: entity.ProductActive},
		{ID: gadgetID, Name: "Gadget", Price: decimal.RequireFromString("2.50"), Status: entity.ProductActive},
		{ID: retiredID, Name: "Retired", Price: decimal.RequireFromString("1.00"), Status: entity.ProductInactive},
	} {
		_, err := products.Create(ctx, p)
		require.NoError(t, err)
	}

	ledger := repository.NewMemoryInventoryLedger(sharding.NewShardRouter(8))
	require.NoError(t, ledger.SetStock(ctx, widgetID, 5))
	require.NoError(t, ledger.SetStock(ctx, gadgetID, 1))
	require.NoError(t, ledger.SetStock(ctx, retiredID, 10))

	recorder := events.NewRecorder()
	keys := idempotency.NewMemoryStore()
	inventory := NewInventoryService(ledger, products)
	intents := repository.NewMemoryPaymentRepository()

	orders := NewOrderService(orderRepo, products, inventory, recorder, keys, time.Hour)
	payments := NewPaymentService(intents, orders, gw, recorder, keys, paymentTimeout)
	orders.SetPaymentCoordinator(payments)
	t.Cleanup(payments.Close)

	return &harness{
		orders:    orders,
		payments:  payments,
		inventory: inventory,
		ledger:    ledger,
		intents:   intents,
		recorder:  recorder,
		gw:        gw,
	}
}

func (h *harness) placeOrder(t *testing.T, productID int64, quantity int) *entity.Order {
	t.Helper()
	order, err := h.orders.CreateOrder(context.Background(), customerID, CreateOrderRequest{
		Items: []OrderItemRequest{{ProductID: productID, Quantity: quantity}},
	}, "")
	require.NoError(t, err)
	require.Equal(t, entity.StatusPlaced, order.Status)
	return order
}

func (h *harness) payOrder(t *testing.T, order *entity.Order) *entity.PaymentIntent {
	t.Helper()
	intent, err := h.payments.Initiate(context.Background(), customer, InitiatePaymentRequest{
		OrderID:       order.ID,
		Amount:        order.TotalAmount,
		PaymentMethod: "CARD",
	})
	require.NoError(t, err)
	return intent
}

// insertIntent stores an INITIATED intent without starting a charge, as if
// the charge ran elsewhere and reports through the results topic.
func (h *harness) insertIntent(t *testing.T, order *entity.Order, id string) *entity.PaymentIntent {
	t.Helper()
	now := time.Now().UTC()
	intent, err := h.intents.Create(context.Background(), &entity.PaymentIntent{
		ID:            id,
		OrderID:       order.ID,
		Amount:        order.TotalAmount,
		PaymentMethod: "CARD",
		Status:        entity.PaymentInitiated,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	require.NoError(t, err)
	return intent
}

func (h *harness) waitForStatus(t *testing.T, orderID int64, want entity.OrderStatus) *entity.Order {
	t.Helper()
	var last *entity.Order
	require.Eventually(t, func() bool {
		order, err := h.orders.GetOrder(context.Background(), orderID, admin)
		if err != nil {
			return false
		}
		last = order
		return order.Status == want
	}, 2*time.Second, 5*time.Millisecond, "order %d never reached %s", orderID, want)
	return last
}

func (h *harness) waitForIntent(t *testing.T, intentID string, want entity.PaymentStatus) *entity.PaymentIntent {
	t.Helper()
	var last *entity.PaymentIntent
	require.Eventually(t, func() bool {
		intent, err := h.intents.GetByID(context.Background(), intentID)
		if err != nil {
			return false
		}
		last = intent
		return intent.Status == want
	}, 2*time.Second, 5*time.Millisecond, "intent %s never reached %s", intentID, want)
	return last
}

func (h *harness) stock(t *testing.T, productID int64) entity.StockLevel {
	t.Helper()
	lvl, err := h.ledger.StockLevel(context.Background(), productID)
	require.NoError(t, err)
	return lvl
}
