package common

import "time"

// Order is a resting or terminal order on one market's book. Market, Trade and
// Position mirror this struct's naming and doc-comment density, following
// the teacher's internal/common/order.go.
type Order struct {
	ID              string // Order tracked uuid
	MarketID        string
	UserID          string
	Side            Side
	Type            OrderType
	PriceCents      int64 // zero/ignored for MARKET orders
	Qty             int64 // originally requested quantity
	RemainingQty    int64
	LockedCents     int64
	Status          OrderStatus
	Seq             int64
	ClientOrderID   string // optional idempotency key, unique per (user, key)
	CreatedAt       time.Time
	ExchTimestamp   time.Time // time of arrival into the book
}

// Resting reports whether this order currently occupies the in-memory book.
func (o *Order) Resting() bool {
	return o.Status.Resting()
}
