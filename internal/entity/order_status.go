package entity

import (
	"errors"
	"fmt"
)

type OrderStatus string

const (
	StatusCreated       OrderStatus = "CREATED"
	StatusPlaced        OrderStatus = "PLACED"
	StatusPaid          OrderStatus = "PAID"
	StatusCancelled     OrderStatus = "CANCELLED"
	StatusRefundPending OrderStatus = "REFUND_PENDING"
	StatusRefundFailed  OrderStatus = "REFUND_FAILED"
	StatusDelivered     OrderStatus = "DELIVERED"
)

type OrderEvent string

const (
	EventPlace            OrderEvent = "place"
	EventPaymentSucceeded OrderEvent = "payment_succeeded"
	EventCancel           OrderEvent = "cancel"
	EventRefundSucceeded  OrderEvent = "refund_succeeded"
	EventRefundFailed     OrderEvent = "refund_failed"
	EventDeliver          OrderEvent = "deliver"
)

var ErrIllegalTransition = errors.New("illegal order transition")

type transitionKey struct {
	from  OrderStatus
	event OrderEvent
}

// transitions is the complete order lifecycle. Anything absent is rejected.
var transitions = map[transitionKey]OrderStatus{
	{StatusCreated, EventPlace}:                 StatusPlaced,
	{StatusPlaced, EventCancel}:                 StatusCancelled,
	{StatusPlaced, EventPaymentSucceeded}:       StatusPaid,
	{StatusPlaced, EventDeliver}:                StatusDelivered,
	{StatusPaid, EventCancel}:                   StatusRefundPending,
	{StatusPaid, EventDeliver}:                  StatusDelivered,
	{StatusRefundPending, EventRefundSucceeded}: StatusCancelled,
	{StatusRefundPending, EventRefundFailed}:    StatusRefundFailed,
}

// NextStatus resolves the target status of ev applied in from.
func NextStatus(from OrderStatus, ev OrderEvent) (OrderStatus, error) {
	to, ok := transitions[transitionKey{from, ev}]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, from)
	}
	return to, nil
}

// CanApply reports whether ev is legal in status s.
func (s OrderStatus) CanApply(ev OrderEvent) bool {
	_, ok := transitions[transitionKey{s, ev}]
	return ok
}

// IsTerminal is true for statuses with no outgoing transition.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusRefundFailed, StatusDelivered:
		return true
	}
	return false
}

// InCancelPath is true once a cancel has been accepted for the order.
func (s OrderStatus) InCancelPath() bool {
	switch s {
	case StatusCancelled, StatusRefundPending, StatusRefundFailed:
		return true
	}
	return false
}

// Rank orders statuses along the saga graph. Every legal transition
// strictly increases it, which is what lets pollers rely on monotonic
// progress.
func (s OrderStatus) Rank() int {
	switch s {
	case StatusCreated:
		return 0
	case StatusPlaced:
		return 1
	case StatusPaid:
		return 2
	case StatusRefundPending:
		return 3
	case StatusCancelled, StatusRefundFailed, StatusDelivered:
		return 4
	}
	return -1
}

func (s OrderStatus) Valid() bool {
	return s.Rank() >= 0
}

var AllOrderStatuses = []OrderStatus{
	StatusCreated,
	StatusPlaced,
	StatusPaid,
	StatusCancelled,
	StatusRefundPending,
	StatusRefundFailed,
	StatusDelivered,
}
