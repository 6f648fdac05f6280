package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
)

const (
	ContractVersionHeader = "event-contract-version"
	ContractVersion       = "v1"
)

type Type string

const (
	OrderCreated    Type = "order-created"
	OrderCancelled  Type = "order-cancelled"
	OrderDelivered  Type = "order-delivered"
	PaymentSuccess  Type = "payment-success"
	PaymentFailed   Type = "payment-failed"
	RefundRequested Type = "refund-requested"
	RefundSuccess   Type = "refund-success"
	RefundFailed    Type = "refund-failed"
)

// Event is published after the state change it describes has been stored.
type Event struct {
	ID              string             `json:"eventId"`
	Type            Type               `json:"type"`
	OrderID         int64              `json:"orderId"`
	UserID          int64              `json:"userId,omitempty"`
	Status          entity.OrderStatus `json:"status,omitempty"`
	TotalAmount     *decimal.Decimal   `json:"totalAmount,omitempty"`
	Items           []entity.OrderItem `json:"items,omitempty"`
	PaymentIntentID string             `json:"paymentIntentId,omitempty"`
	Reason          string             `json:"reason,omitempty"`
	OccurredAt      time.Time          `json:"occurredAt"`
}

// OrderEvent describes the order as it is now.
func OrderEvent(t Type, order *entity.Order) Event {
	total := order.TotalAmount
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      order.Status,
		TotalAmount: &total,
		Items:       order.Items,
		OccurredAt:  time.Now().UTC(),
	}
}

func PaymentEvent(t Type, intent *entity.PaymentIntent, reason string) Event {
	amount := intent.Amount
	return Event{
		ID:              uuid.NewString(),
		Type:            t,
		OrderID:         intent.OrderID,
		TotalAmount:     &amount,
		PaymentIntentID: intent.ID,
		Reason:          reason,
		OccurredAt:      time.Now().UTC(),
	}
}

// Key partitions events by order so consumers see one order in sequence.
func (e Event) Key() string {
	return string(e.Type) + "-" + formatID(e.OrderID)
}

// Priority is higher for events that release money or stock.
func (e Event) Priority() uint8 {
	switch e.Type {
	case OrderCancelled, RefundRequested, RefundSuccess, RefundFailed:
		return 8
	default:
		return 0
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
