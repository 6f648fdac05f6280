package entity

import "time"

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
)

type ReservationLine struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// Reservation ties decremented stock to the order that holds it, so that a
// release can be applied exactly once.
type Reservation struct {
	ID        string            `json:"id"`
	OrderRef  string            `json:"orderRef"`
	Lines     []ReservationLine `json:"lines"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type StockLevel struct {
	ProductID int64 `json:"productId"`
	Available int   `json:"available"`
	Reserved  int   `json:"reserved"`
}

// Total is the stock the ledger accounts for, free or held.
func (s StockLevel) Total() int {
	return s.Available + s.Reserved
}

/*
Mysql Table

CREATE TABLE inventory (
	product_id BIGINT PRIMARY KEY,
	available INT NOT NULL,
	reserved INT NOT NULL DEFAULT 0,
	CHECK (available >= 0),
	CHECK (reserved >= 0)
);

CREATE TABLE inventory_reservations (
	id VARCHAR(36) NOT NULL,
	order_ref VARCHAR(64) NOT NULL,
	product_id BIGINT NOT NULL,
	quantity INT NOT NULL,
	status VARCHAR(16) NOT NULL,
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL,
	PRIMARY KEY (id, product_id)
);

*/
