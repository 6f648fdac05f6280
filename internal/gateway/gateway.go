package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrDeclined means the gateway answered and refused the operation.
var ErrDeclined = errors.New("declined by payment gateway")

type ChargeRequest struct {
	IntentID      string          `json:"intentId"`
	OrderID       int64           `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
}

type RefundRequest struct {
	IntentID      string          `json:"intentId"`
	OrderID       int64           `json:"orderId"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
}

// Gateway charges and refunds. Both calls must honour ctx cancellation.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (transactionID string, err error)
	Refund(ctx context.Context, req RefundRequest) (refundID string, err error)
}
