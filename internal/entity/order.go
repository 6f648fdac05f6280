package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"userId"`
	Status        OrderStatus     `json:"status"`
	Items         []OrderItem     `json:"items"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	ReservationID string          `json:"-"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// OrderItem carries the unit price captured when the order was placed.
type OrderItem struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Subtotal returns price x quantity for the line.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NewOrder builds a CREATED order and fixes its total. The total is never
// recomputed afterwards, cancellation and refunds leave it untouched.
func NewOrder(userID int64, items []OrderItem, now time.Time) Order {
	lines := make([]OrderItem, len(items))
	copy(lines, items)

	total := decimal.Zero
	for _, item := range lines {
		total = total.Add(item.Subtotal())
	}

	return Order{
		UserID:      userID,
		Status:      StatusCreated,
		Items:       lines,
		TotalAmount: total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ReservationLines flattens the order items into ledger lines.
func (o *Order) ReservationLines() []ReservationLine {
	lines := make([]ReservationLine, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, ReservationLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

// Clone returns a deep copy safe to hand out of a repository.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = make([]OrderItem, len(o.Items))
	copy(c.Items, o.Items)
	return &c
}

/*
Mysql Table

CREATE TABLE orders (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	user_id BIGINT NOT NULL,
	status VARCHAR(20) NOT NULL,
	total_amount DECIMAL(12,2) NOT NULL,
	reservation_id VARCHAR(36) NOT NULL,
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL
);

CREATE TABLE order_items (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	order_id BIGINT NOT NULL REFERENCES orders(id),
	product_id BIGINT NOT NULL,
	quantity INT NOT NULL,
	price DECIMAL(12,2) NOT NULL
);

*/
