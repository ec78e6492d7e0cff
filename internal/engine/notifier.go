package engine

import (
	"wagerbook/internal/book"
	"wagerbook/internal/common"
)

// Notifier is the fire-and-forget event interface of spec.md §6. Delivery
// is best-effort; a Notifier must not block the writer for long and should
// drop rather than stall if a downstream consumer is slow.
type Notifier interface {
	BookSnapshot(marketID string, bids, asks []book.LevelSnapshot)
	Trade(t common.Trade)
	OrderUpdate(o common.Order)
	MarketResolved(m common.Market)
}

// NoopNotifier discards every notification. Used where no transport is
// wired yet (tests, offline tooling).
type NoopNotifier struct{}

func (NoopNotifier) BookSnapshot(marketID string, bids, asks []book.LevelSnapshot) {}
func (NoopNotifier) Trade(t common.Trade)                                          {}
func (NoopNotifier) OrderUpdate(o common.Order)                                    {}
func (NoopNotifier) MarketResolved(m common.Market)                                {}
