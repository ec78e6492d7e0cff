package engine

import (
	"context"

	"wagerbook/internal/common"
)

// Tx is an opaque handle to one durable transaction. The engine never
// inspects it; it only threads it through Store calls so every mutation in
// one PlaceOrder/CancelOrder/ResolveMarket happens inside a single
// serializable transaction (spec.md §4.2).
type Tx interface{}

// Store is everything the matching engine needs from the durable store.
// The production implementation (internal/store) is pgx-backed; tests use
// an in-memory fake. Defined here, consumer-side, per Go convention.
type Store interface {
	// RunInTx begins one transaction for marketID and commits it if fn
	// returns nil, or rolls it back if fn returns an error.
	RunInTx(ctx context.Context, marketID string, fn func(ctx context.Context, tx Tx) error) error

	NextSeq(ctx context.Context, tx Tx, marketID string) (int64, error)

	GetMarket(ctx context.Context, tx Tx, marketID string) (common.Market, bool, error)
	SaveMarket(ctx context.Context, tx Tx, m common.Market) error

	// LockWallet reads a wallet row FOR UPDATE, creating a zero-balance row
	// if none exists yet.
	LockWallet(ctx context.Context, tx Tx, userID string) (common.Wallet, error)
	SaveWallet(ctx context.Context, tx Tx, w common.Wallet) error

	InsertOrder(ctx context.Context, tx Tx, o common.Order) error
	UpdateOrder(ctx context.Context, tx Tx, o common.Order) error
	GetOrder(ctx context.Context, tx Tx, orderID string) (common.Order, bool, error)
	GetOrderByClientID(ctx context.Context, tx Tx, userID, clientOrderID string) (common.Order, bool, error)

	InsertTrade(ctx context.Context, tx Tx, t common.Trade) error

	GetPosition(ctx context.Context, tx Tx, marketID, userID string) (common.Position, error)
	SavePosition(ctx context.Context, tx Tx, p common.Position) error

	AppendEvent(ctx context.Context, tx Tx, e common.Event) error
	AddPlatformFee(ctx context.Context, tx Tx, amountCents int64) error

	// ListOpenOrPartialOrders is used by ResolveMarket (inside its
	// transaction) and by book rebuild (outside any transaction, at
	// startup), ordered by seq ascending per spec.md §4.4.
	ListOpenOrPartialOrders(ctx context.Context, tx Tx, marketID string) ([]common.Order, error)
	ListPositions(ctx context.Context, tx Tx, marketID string) ([]common.Position, error)

	// MaxSeq returns the highest seq recorded for marketID across Orders
	// and EventLog, used to initialize the in-memory seq counter on
	// cold start (spec.md §4.4).
	MaxSeq(ctx context.Context, marketID string) (int64, error)
}
