package common

import "time"

// Trade records one maker/taker match (spec.md §3). Execution price is
// always the maker's resting price.
type Trade struct {
	ID             string
	MarketID       string
	MakerOrderID   string
	TakerOrderID   string
	MakerUserID    string
	TakerUserID    string
	PriceCents     int64
	Qty            int64
	TakerFeeCents  int64
	Seq            int64
	Timestamp      time.Time
}
