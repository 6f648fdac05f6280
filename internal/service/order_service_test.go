package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/events"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCreateOrderReservesAndPlaces(t *testing.T) {
	h := newHarness(t, &fakeGateway{}, time.Second)
	clientPrice := decimal.Zero

	order, err := h.orders.CreateOrder(context.Background(), customerID, CreateOrderRequest{
		Items: []OrderItemRequest{
			{ProductID: widgetID, Quantity: 2, Price: &clientPrice},
			{ProductID: gadgetID, Quantity: 1},
		},
	}, "")
	require.NoError(t, err)

	assert.NotZero(t, order.ID)
	assert.Equal(t, customerID, order.UserID)
	assert.Equal(t, entity.StatusPlaced, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("22.50")), order.TotalAmount.String())
	assert.True(t, order.Items[0].Price.Equal(decimal.RequireFromString("10.00")), "catalog price is snapshotted")

	assert.Equal(t, entity.StockLevel{ProductID: widgetID, Available: 3, Reserved: 2}, h.stock(t, widgetID))
	assert.Equal(t, entity.StockLevel{ProductID: gadgetID, Available: 0, Reserved: 1}, h.stock(t, gadgetID))

	res, err := h.ledger.GetReservation(context.Background(), order.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, "order-"+fmt.Sprint(order.ID), res.OrderRef)

	assert.Equal(t, []events.Type{events.OrderCreated}, h.recorder.Types(order.ID))
}

func TestCreateOrderValidation(t *testing.T) {
	negative := decimal.NewFromInt(-1)

	tests := []struct {
		name string
		req  CreateOrderRequest
	}{
		{name: "no items", req: CreateOrderRequest{}},
		{name: "zero quantity", req: CreateOrderRequest{Items: []OrderItemRequest{{ProductID: widgetID, Quantity: 0}}}},
		{name: "negative quantity", req: CreateOrderRequest{Items: []OrderItemRequest{{ProductID: widgetID, Quantity: -2}}}},
		{name: "missing product", req: CreateOrderRequest{Items: []OrderItemRequest{{Quantity: 1}}}},
		{name: "negative price", req: CreateOrderRequest{Items: []OrderItemRequest{{ProductID: widgetID, Quantity: 1, Price: &negative}}}},
		{name: "inactive product", req: CreateOrderRequest{Items: []OrderItemRequest{{ProductID: retiredID, Quantity: 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, &fakeGateway{}, time.Second)

			_, err := h.orders.CreateOrder(context.Background(), customerID, tt.req, "")

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, 5, h.stock(t, widgetID).Available)
			all, err := h.orders.ListAllOrders(context.Background(), admin)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	h := newHarness(t, &fakeGateway{}, time.Second)

	_, err := h.orders.CreateOrder(context.Background(), customerID, CreateOrderRequest{
		Items: []OrderItemRequest{{ProductID: widgetID, Quantity: 1}, {ProductID: 404, Quantity: 1}},
	}, "")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "product", nf.Resource)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 5, h.stock(t, widgetID).Available)
}

func TestCreateOrderInsufficientStockLeavesNothingBehind(t *testing.T) {
	h := newHarness(t, &fakeGateway{}, time.Second)

	_, err := h.orders.CreateOrder(context.Background(), customerID, CreateOrderRequest{
		Items: []OrderItemRequest{{ProductID: widgetID, Quantity: 1}, {ProductID: gadgetID, Quantity: 2}},
	}, "")
	require.ErrorIs(t, err, repository.ErrInsufficientStock)

	assert.Equal(t, entity.StockLevel{ProductID: widgetID, Available: 5}, h.stock(t, widgetID))
	assert.Equal(t, entity.StockLevel{ProductID: gadgetID, Available: 1}, h.stock(t, gadgetID))

	mine, err := h.orders.ListMyOrders(context.Background(), customer)
	require.NoError(t, err)
	assert.Empty(t, mine)
	assert.Empty(t, h.recorder.Events())
}

func TestCreateOrderIdempotencyKeyReplays(t *testing.T) {
	h := newHarness(t, &fakeGateway{}, time.Second)
	ctx := context.Background()
	req := CreateOrderRequest{Items: []OrderItemRequest{{ProductID: widgetID, Quantity: 1}}}

	first, err := h.orders.CreateOrder(ctx, customerID, req, "key-1")
	require.NoError(t, err)
	again, err := h.orders.CreateOrder(ctx, customerID, req, "key-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 4, h.stock(t, widgetID).Available)

	other, err := h.orders.CreateOrder(ctx, otherID, req, "key-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID, "keys are scoped per user")
}

func TestCreateOrderFailedAttemptFreesIdempotencyKey(t *testing.T) {
	h := newHarness(t, &fakeGateway{}, time.Second)
	ctx := context.Background()
	req := CreateOrderRequest{Items: []OrderItemRequest{{ProductID: gadgetID, Quantity: 1}}}

	require.NoError(t, h.ledger.SetStock(ctx, gadgetID, 0))
	_, err := h.orders.CreateOrder(ctx, customerID, req, "retry-me")
	require.ErrorIs(t, err, repository.ErrInsufficientStock)

	require.NoError(t, h.ledger.SetStock(ctx, gadgetID, 1))
	order, err := h.orders.CreateOrder(ctx, customerID, req, "retry-me")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPlaced, order.Status)
}

func TestConcurrentOrdersForLastUnit(t *testing.T) {
	h := newHarness(t, &fakeGateway{}, time.Second)
	const buyers = 25

	var wins, soldOut atomic.Int32
	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		i := i
		g.Go(func() error {
			_, err := h.orders.CreateOrder(context.Background(), int64(1000+i), CreateOrderRequest{
				Items: []OrderItemRequest{{ProductID: gadgetID, Quantity: 1}},
			}, "")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, repository.ErrInsufficientStock):
				soldOut.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(buyers-1), soldOut.Load())
	assert.Equal(t, entity.StockLevel{ProductID: gadgetID, Available: 0, Reserved: 1}, h.stock(t, gadgetID))
}

func TestCancelBeforePaymentReleasesStockOnce(t *testing.T) {
	h := newHarness(t, &fakeGateway{}, time.Second)
	order := h.placeOrder(t, widgetID, 3)

	first, err := h.orders.CancelOrder(context.Background(), order.ID, customer)
	require.NoError(t, err)
	second, err := h.orders.CancelOrder(context.Background(), order.ID, customer)
	require.NoError(t, err)

	assert.Equal(t, entity.StatusCancelled, first.Status)
	assert.Equal(t, entity.StatusCancelled, second.Status)
	assert.True(t, second.TotalAmount.Equal(order.TotalAmount), "total survives cancellation")
	assert.Equal(t, entity.StockLevel{ProductID: widgetID, Available: 5}, h.stock(t, widgetID))
	assert.Equal(t, []events.Type{events.OrderCreated, events.OrderCancelled}, h.recorder.Types(order.ID))

	intents, err := h.payments.ListForOrder(context.Background(), order.ID, customer)
	require.NoError(t, err)
	assert.Empty(t, intents, "cancelled before payment never creates an intent")
	assert.Zero(t, h.gw.refundCount())
}

func TestConcurrentCancelsRunOneCompensation(t *testing.T) {
	h := newHarness(t, &fakeGateway{}, time.Second)
	order := h.placeOrder(t, widgetID, 2)

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			got, err := h.orders.CancelOrder(context.Background(), order.ID, customer)
			if err != nil {
				return err
			}
			if got.Status != entity.StatusCancelled {
				return fmt.Errorf("unexpected status %s", got.Status)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, entity.StockLevel{ProductID: widgetID, Available: 5}, h.stock(t, widgetID))
	assert.Equal(t, []events.Type{events.OrderCreated, events.OrderCancelled}, h.recorder.Types(order.ID))
}

func TestOrdersAreVisibleOnlyToOwnerAndAdmin(t *testing.T) {
	h := newHarness(t, &fakeGateway{}, time.Second)
	ctx := context.Background()
	order := h.placeOrder(t, widgetID, 1)

	_, err := h.orders.GetOrder(ctx, order.ID, stranger)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.orders.CancelOrder(ctx, order.ID, stranger)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.orders.ListAllOrders(ctx, customer)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.orders.ListUserOrders(ctx, customerID, stranger)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := h.orders.GetOrder(ctx, order.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	byUser, err := h.orders.ListUserOrders(ctx, customerID, admin)
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	mine, err := h.orders.ListMyOrders(ctx, stranger)
	require.NoError(t, err)
	assert.Empty(t, mine)

	_, err = h.orders.GetOrder(ctx, 9999, admin)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "order", nf.Resource)
}

func TestDeliverOrder(t *testing.T) {
	h := newHarness(t, &fakeGateway{}, time.Second)
	ctx := context.Background()
	order := h.placeOrder(t, widgetID, 2)

	_, err := h.orders.DeliverOrder(ctx, order.ID, customer)
	require.ErrorIs(t, err, ErrForbidden)

	delivered, err := h.orders.DeliverOrder(ctx, order.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDelivered, delivered.Status)
	assert.Equal(t, entity.StockLevel{ProductID: widgetID, Available: 3, Reserved: 0}, h.stock(t, widgetID))

	_, err = h.orders.CancelOrder(ctx, order.ID, customer)
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, entity.StatusDelivered, cerr.Current)

	_, err = h.orders.DeliverOrder(ctx, order.ID, admin)
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, entity.StatusDelivered, cerr.Current)
}

func TestCompleteRefundRequiresPendingRefund(t *testing.T) {
	h := newHarness(t, &fakeGateway{}, time.Second)
	order := h.placeOrder(t, widgetID, 1)

	_, err := h.orders.CompleteRefund(context.Background(), order.ID, true, "")

	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, entity.StatusPlaced, cerr.Current)
	assert.Equal(t, 4, h.stock(t, widgetID).Available)
}

func TestOnPaymentSucceededLosesToCancel(t *testing.T) {
	h := newHarness(t, &fakeGateway{}, time.Second)
	ctx := context.Background()
	order := h.placeOrder(t, widgetID, 1)

	_, err := h.orders.CancelOrder(ctx, order.ID, customer)
	require.NoError(t, err)

	_, err = h.orders.OnPaymentSucceeded(ctx, order.ID)
	var stale *repository.StatusConflictError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, string(entity.StatusCancelled), stale.Current)
}
