package entity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name    string
		from    OrderStatus
		event   OrderEvent
		want    OrderStatus
		wantErr bool
	}{
		{name: "place created order", from: StatusCreated, event: EventPlace, want: StatusPlaced},
		{name: "cancel before payment", from: StatusPlaced, event: EventCancel, want: StatusCancelled},
		{name: "payment succeeds", from: StatusPlaced, event: EventPaymentSucceeded, want: StatusPaid},
		{name: "cancel after payment", from: StatusPaid, event: EventCancel, want: StatusRefundPending},
		{name: "refund succeeds", from: StatusRefundPending, event: EventRefundSucceeded, want: StatusCancelled},
		{name: "refund fails", from: StatusRefundPending, event: EventRefundFailed, want: StatusRefundFailed},
		{name: "deliver placed", from: StatusPlaced, event: EventDeliver, want: StatusDelivered},
		{name: "deliver paid", from: StatusPaid, event: EventDeliver, want: StatusDelivered},
		{name: "cancel twice", from: StatusCancelled, event: EventCancel, wantErr: true},
		{name: "cancel delivered", from: StatusDelivered, event: EventCancel, wantErr: true},
		{name: "pay created order", from: StatusCreated, event: EventPaymentSucceeded, wantErr: true},
		{name: "pay cancelled order", from: StatusCancelled, event: EventPaymentSucceeded, wantErr: true},
		{name: "refund without pending", from: StatusPaid, event: EventRefundSucceeded, wantErr: true},
		{name: "deliver refund failed", from: StatusRefundFailed, event: EventDeliver, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextStatus(tt.from, tt.event)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrIllegalTransition)
				assert.False(t, tt.from.CanApply(tt.event))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, tt.from.CanApply(tt.event))
		})
	}
}

func TestTransitionsNeverReenterCreatedAndIncreaseRank(t *testing.T) {
	events := []OrderEvent{EventPlace, EventPaymentSucceeded, EventCancel, EventRefundSucceeded, EventRefundFailed, EventDeliver}

	for _, from := range AllOrderStatuses {
		for _, ev := range events {
			to, err := NextStatus(from, ev)
			if err != nil {
				continue
			}
			assert.NotEqual(t, StatusCreated, to, "%s --%s--> %s", from, ev, to)
			assert.Greater(t, to.Rank(), from.Rank(), "%s --%s--> %s", from, ev, to)
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	events := []OrderEvent{EventPlace, EventPaymentSucceeded, EventCancel, EventRefundSucceeded, EventRefundFailed, EventDeliver}

	for _, s := range AllOrderStatuses {
		if !s.IsTerminal() {
			continue
		}
		for _, ev := range events {
			assert.False(t, s.CanApply(ev), "%s accepts %s", s, ev)
		}
	}
}

func TestNewOrderComputesTotalOnce(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	items := []OrderItem{
		{ProductID: 1, Quantity: 2, Price: decimal.RequireFromString("10.25")},
		{ProductID: 2, Quantity: 1, Price: decimal.RequireFromString("4.50")},
	}

	order := NewOrder(42, items, now)
	items[0].Quantity = 100

	assert.Equal(t, StatusCreated, order.Status)
	assert.Equal(t, int64(42), order.UserID)
	assert.Equal(t, 2, order.Items[0].Quantity, "items must be copied")
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("25.00")), order.TotalAmount.String())
	assert.Equal(t, now, order.CreatedAt)
	assert.Len(t, order.ReservationLines(), 2)
}

func TestPaymentStatusIsActive(t *testing.T) {
	assert.True(t, PaymentInitiated.IsActive())
	assert.True(t, PaymentSucceeded.IsActive())
	assert.False(t, PaymentFailed.IsActive())
	assert.False(t, PaymentRefunded.IsActive())
	assert.False(t, PaymentRefundFailed.IsActive())
}
