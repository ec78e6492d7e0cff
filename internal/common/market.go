package common

import "time"

// Market is a single binary-outcome question traders exchange YES contracts
// on. TickSizeCents constrains which LIMIT prices are valid.
type Market struct {
	ID            string
	Slug          string
	Title         string
	Description   string
	TickSizeCents int64
	Status        MarketStatus
	ResolvesTo    Resolution
	ResolvedAt    *time.Time
	CreatedAt     time.Time
}

// Wallet is a per-user cash + collateral account. Invariant: LockedCents <=
// BalanceCents (spec.md §3 invariant 1, enforced at the storage layer via a
// CHECK constraint and re-verified in every transaction).
type Wallet struct {
	UserID       string
	BalanceCents int64
	LockedCents  int64
}

// Available is the spendable, unlocked balance.
func (w Wallet) Available() int64 {
	return w.BalanceCents - w.LockedCents
}

// Position is a user's net YES-share exposure in one market.
// Positive YesShares is a long position, negative is short.
type Position struct {
	MarketID         string
	UserID           string
	YesShares        int64
	AvgCostCents     int64 // weighted-average entry price for the long side
	RealizedPnlCents int64
	LockedCents      int64 // collateral reserved against short exposure
}

// Event is one append-only entry in a market's (or the platform's) audit
// log. Payload is opaque JSON, keyed by Type per the closed taxonomy.
type Event struct {
	ID        int64
	MarketID  *string
	Seq       *int64
	Type      EventType
	Payload   []byte
	CreatedAt time.Time
}
