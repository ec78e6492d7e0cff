package engine

import "wagerbook/internal/common"

// PlaceOrderCmd is the PlaceOrder command of spec.md §4.2/§6.
type PlaceOrderCmd struct {
	MarketID      string
	UserID        string
	Side          common.Side
	Type          common.OrderType
	PriceCents    int64 // ignored for MARKET
	Qty           int64
	ClientOrderID string
}

// Fill is one execution reported back to the caller of PlaceOrder.
type Fill struct {
	MakerOrderID string
	PriceCents   int64
	Qty          int64
	FeeCents     int64
	Seq          int64
}

// PlaceOrderResult is the reply to PlaceOrder.
type PlaceOrderResult struct {
	OrderID string
	Status  common.OrderStatus
	Fills   []Fill
	Reason  string // populated only when Status == REJECTED or CANCELED (no-liquidity)
}

// CancelOrderCmd is the CancelOrder command of spec.md §4.2/§6.
type CancelOrderCmd struct {
	MarketID string
	OrderID  string
	UserID   string
	IsAdmin  bool
}

// CancelOrderResult is the reply to CancelOrder.
type CancelOrderResult struct {
	Success         bool
	AlreadyTerminal bool
}

// ResolveMarketCmd is the ResolveMarket command of spec.md §4.2/§6.
type ResolveMarketCmd struct {
	MarketID    string
	ResolvesTo  common.Resolution
	AdminUserID string
}

// ResolveMarketResult is the reply to ResolveMarket.
type ResolveMarketResult struct {
	SettledPositions  int
	TotalPayoutCents  int64
}
