package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentInitiated    PaymentStatus = "INITIATED"
	PaymentSucceeded    PaymentStatus = "SUCCEEDED"
	PaymentFailed       PaymentStatus = "FAILED"
	PaymentRefunded     PaymentStatus = "REFUNDED"
	PaymentRefundFailed PaymentStatus = "REFUND_FAILED"
)

// IsActive reports whether the intent blocks a new one for the same order.
func (s PaymentStatus) IsActive() bool {
	return s == PaymentInitiated || s == PaymentSucceeded
}

type PaymentIntent struct {
	ID            string          `json:"id"`
	OrderID       int64           `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
	Status        PaymentStatus   `json:"status"`
	TransactionID string          `json:"transactionId,omitempty"`
	RefundID      string          `json:"refundId,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

/*
Mysql Table

CREATE TABLE payment_intents (
	id VARCHAR(36) PRIMARY KEY,
	order_id BIGINT NOT NULL,
	amount DECIMAL(12,2) NOT NULL,
	payment_method VARCHAR(32) NOT NULL,
	status VARCHAR(20) NOT NULL,
	transaction_id VARCHAR(64) NOT NULL DEFAULT '',
	refund_id VARCHAR(64) NOT NULL DEFAULT '',
	failure_reason VARCHAR(255) NOT NULL DEFAULT '',
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL,
	INDEX idx_payment_intents_order (order_id)
);

*/
