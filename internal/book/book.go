// Package book implements the per-market in-memory limit order book:
// FIFO price levels, best-price queries, and in-place fill application.
// Adapted from the teacher's tidwall/btree-backed engine.OrderBook, split
// out into its own package and generalized to a non-mutating match planner
// per spec.md §4.1 — the matching engine decides what to do with a plan
// before any book state changes.
package book

import (
	"errors"
	"time"

	"github.com/tidwall/btree"

	"wagerbook/internal/common"
)

var (
	// ErrDuplicateOrder is returned by Add when the order id is already resting.
	ErrDuplicateOrder = errors.New("book: duplicate order id")
	// ErrOrderNotFound is returned by Remove/ApplyFill for an unknown order id.
	ErrOrderNotFound = errors.New("book: order not found")
	// ErrOverfill is returned by ApplyFill when qty exceeds the resting remainder.
	ErrOverfill = errors.New("book: fill qty exceeds remaining qty")
)

// Entry is one resting order sitting in the book.
type Entry struct {
	OrderID      string
	UserID       string
	Side         common.Side
	PriceCents   int64
	RemainingQty int64
	LockedCents  int64
	Seq          int64
	RestedAt     time.Time
}

// PriceLevel holds every resting entry at one price, in arrival order: new
// entries append to the tail, matching consumes from the head.
type PriceLevel struct {
	PriceCents int64
	Entries    []*Entry
}

type priceLevels = btree.BTreeG[*PriceLevel]

// Book is one market's limit order book.
type Book struct {
	bids  *priceLevels // ordered highest price first
	asks  *priceLevels // ordered lowest price first
	index map[string]*Entry
}

// New constructs an empty book.
func New() *Book {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.PriceCents > b.PriceCents
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.PriceCents < b.PriceCents
	})
	return &Book{
		bids:  bids,
		asks:  asks,
		index: make(map[string]*Entry),
	}
}

func (b *Book) levels(side common.Side) *priceLevels {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

// BestBid returns the highest resting bid price, if any.
func (b *Book) BestBid() (int64, bool) {
	lvl, ok := b.bids.Min()
	if !ok {
		return 0, false
	}
	return lvl.PriceCents, true
}

// BestAsk returns the lowest resting ask price, if any.
func (b *Book) BestAsk() (int64, bool) {
	lvl, ok := b.asks.Min()
	if !ok {
		return 0, false
	}
	return lvl.PriceCents, true
}

// LevelSnapshot is one aggregated price/qty pair for a book snapshot.
type LevelSnapshot struct {
	PriceCents int64
	Qty        int64
}

// Snapshot returns up to depth levels on each side: bids descending, asks
// ascending, per spec.md §4.1.
func (b *Book) Snapshot(depth int) (bids, asks []LevelSnapshot) {
	walk := func(levels *priceLevels) []LevelSnapshot {
		out := make([]LevelSnapshot, 0, depth)
		levels.Scan(func(lvl *PriceLevel) bool {
			if len(out) >= depth {
				return false
			}
			var qty int64
			for _, e := range lvl.Entries {
				qty += e.RemainingQty
			}
			out = append(out, LevelSnapshot{PriceCents: lvl.PriceCents, Qty: qty})
			return true
		})
		return out
	}
	return walk(b.bids), walk(b.asks)
}

// Add inserts a new resting entry. Returns ErrDuplicateOrder if the order id
// is already present.
func (b *Book) Add(e *Entry) error {
	if _, exists := b.index[e.OrderID]; exists {
		return ErrDuplicateOrder
	}
	levels := b.levels(e.Side)
	lvl, ok := levels.Get(&PriceLevel{PriceCents: e.PriceCents})
	if !ok {
		lvl = &PriceLevel{PriceCents: e.PriceCents}
		levels.Set(lvl)
	}
	lvl.Entries = append(lvl.Entries, e)
	b.index[e.OrderID] = e
	return nil
}

// Remove deletes an order from the book entirely (used by cancel).
func (b *Book) Remove(orderID string) error {
	e, ok := b.index[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	b.removeFromLevel(e)
	delete(b.index, orderID)
	return nil
}

func (b *Book) removeFromLevel(e *Entry) {
	levels := b.levels(e.Side)
	lvl, ok := levels.Get(&PriceLevel{PriceCents: e.PriceCents})
	if !ok {
		return
	}
	for i, entry := range lvl.Entries {
		if entry.OrderID == e.OrderID {
			lvl.Entries = append(lvl.Entries[:i], lvl.Entries[i+1:]...)
			break
		}
	}
	if len(lvl.Entries) == 0 {
		levels.Delete(lvl)
	}
}

// ApplyFill decrements a resting entry's remaining quantity by qty, removing
// it from the book if it reaches zero. Returns the new remaining quantity.
func (b *Book) ApplyFill(orderID string, qty int64) (int64, error) {
	e, ok := b.index[orderID]
	if !ok {
		return 0, ErrOrderNotFound
	}
	if qty > e.RemainingQty {
		return 0, ErrOverfill
	}
	e.RemainingQty -= qty
	if e.RemainingQty == 0 {
		b.removeFromLevel(e)
		delete(b.index, orderID)
	}
	return e.RemainingQty, nil
}

// Get returns the resting entry for orderID, if present.
func (b *Book) Get(orderID string) (*Entry, bool) {
	e, ok := b.index[orderID]
	return e, ok
}

// Len reports the number of resting orders on the book.
func (b *Book) Len() int {
	return len(b.index)
}

// PlannedFill is one step of a non-mutating match plan: a quantity to take
// from a specific resting maker entry, at the maker's price.
type PlannedFill struct {
	MakerOrderID string
	MakerUserID  string
	MakerSeq     int64
	PriceCents   int64
	Qty          int64
}

// FindMatches walks the opposite side of the book (asks ascending for a BUY,
// bids descending for a SELL) and returns a non-mutating plan of fills.
// limitPrice is nil for MARKET orders. Entries owned by excludeUserID are
// skipped silently (self-trade prevention) — their quantity is not counted
// against maxQty and they are left untouched.
func (b *Book) FindMatches(side common.Side, limitPrice *int64, maxQty int64, excludeUserID string) []PlannedFill {
	opposite := common.Sell
	if side == common.Sell {
		opposite = common.Buy
	}
	levels := b.levels(opposite)

	var plan []PlannedFill
	remaining := maxQty

	levels.Scan(func(lvl *PriceLevel) bool {
		if remaining <= 0 {
			return false
		}
		if limitPrice != nil {
			if side == common.Buy && lvl.PriceCents > *limitPrice {
				return false
			}
			if side == common.Sell && lvl.PriceCents < *limitPrice {
				return false
			}
		}
		for _, e := range lvl.Entries {
			if remaining <= 0 {
				break
			}
			if e.UserID == excludeUserID {
				continue
			}
			fillQty := min(remaining, e.RemainingQty)
			if fillQty <= 0 {
				continue
			}
			plan = append(plan, PlannedFill{
				MakerOrderID: e.OrderID,
				MakerUserID:  e.UserID,
				MakerSeq:     e.Seq,
				PriceCents:   e.PriceCents,
				Qty:          fillQty,
			})
			remaining -= fillQty
		}
		return true
	})
	return plan
}
