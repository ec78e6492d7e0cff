// Package engine implements the per-market single-writer matching engine:
// PlaceOrder, CancelOrder, and ResolveMarket, plus the cold-start book
// rebuild protocol (spec.md §4.2, §4.4, §4.5). Grounded on the teacher's
// internal/engine.Engine (a map of per-asset order books reached through
// one struct), generalized from a fixed asset enum to dynamically created
// markets and a real durable transaction underneath every mutation.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"wagerbook/internal/book"
	"wagerbook/internal/common"
	"wagerbook/internal/ledger"
	"wagerbook/internal/money"
)

// rejection is an internal sentinel carried out of a RunInTx closure to
// signal a clean, intentional rollback (insufficient funds) rather than a
// storage failure. The transaction still rolls back; PlaceOrder turns it
// into a REJECTED result instead of propagating a Go error.
type rejection struct{ reason string }

func (r rejection) Error() string { return r.reason }

// marketState is the in-memory state owned by one market's single writer.
type marketState struct {
	mu     sync.Mutex
	book   *book.Book
	market common.Market
}

// Engine is the set of all markets' single writers, sharing one durable
// Store and fee configuration.
type Engine struct {
	store    Store
	notifier Notifier
	feeBps   int64

	mu      sync.RWMutex
	markets map[string]*marketState
}

// New constructs an Engine with no markets loaded; call LoadMarket (during
// recovery) or CreateMarket for each market it should serve.
func New(store Store, notifier Notifier, feeBps int64) *Engine {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		feeBps:   feeBps,
		markets:  make(map[string]*marketState),
	}
}

// SetNotifier replaces the engine's notifier. Used at startup once the
// transport server (itself constructed from the engine) is ready to
// receive events.
func (e *Engine) SetNotifier(notifier Notifier) {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = notifier
}

func (e *Engine) getMarketState(marketID string) (*marketState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ms, ok := e.markets[marketID]
	return ms, ok
}

// LoadMarket rebuilds one market's in-memory book from durable storage
// (spec.md §4.4): every OPEN/PARTIAL order, ordered by seq ascending, is
// re-added to a fresh book. Wallets need no rebuild; their rows are
// authoritative.
func (e *Engine) LoadMarket(ctx context.Context, marketID string) error {
	m, found, err := e.store.GetMarket(ctx, nil, marketID)
	if err != nil {
		return fmt.Errorf("engine: load market %s: %w", marketID, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrMarketNotFound, marketID)
	}

	b := book.New()
	if m.Status == common.MarketOpen {
		orders, err := e.store.ListOpenOrPartialOrders(ctx, nil, marketID)
		if err != nil {
			return fmt.Errorf("engine: rebuild book for %s: %w", marketID, err)
		}
		for _, o := range orders {
			if o.PriceCents <= 0 {
				log.Warn().Str("order_id", o.ID).Msg("engine: skipping resting order with null price during rebuild")
				continue
			}
			if err := b.Add(&book.Entry{
				OrderID:      o.ID,
				UserID:       o.UserID,
				Side:         o.Side,
				PriceCents:   o.PriceCents,
				RemainingQty: o.RemainingQty,
				LockedCents:  o.LockedCents,
				Seq:          o.Seq,
				RestedAt:     o.ExchTimestamp,
			}); err != nil {
				return fmt.Errorf("engine: rebuild book for %s: %w", marketID, err)
			}
		}
		log.Info().Str("market_id", marketID).Int("resting_orders", b.Len()).Msg("engine: book rebuilt")
	}

	e.mu.Lock()
	e.markets[marketID] = &marketState{book: b, market: m}
	e.mu.Unlock()
	return nil
}

func eventPayload(v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		// Payload schemas are opaque per spec.md §4.4; a marshal failure
		// here means a programmer error in the value shape above, not a
		// runtime condition callers can act on.
		log.Error().Err(err).Msg("engine: event payload marshal failed")
		return []byte("{}")
	}
	return payload
}

// CreateMarket is a supplemented operation (spec.md assumes markets
// pre-exist); it inserts the market row, registers an empty book, and
// emits MarketCreated.
func (e *Engine) CreateMarket(ctx context.Context, slug, title, description string, tickSizeCents int64) (common.Market, error) {
	if tickSizeCents < 1 || tickSizeCents > 10 {
		return common.Market{}, fmt.Errorf("%w: tick size %d out of [1,10]", ErrInvalidPrice, tickSizeCents)
	}
	m := common.Market{
		ID:            uuid.NewString(),
		Slug:          slug,
		Title:         title,
		Description:   description,
		TickSizeCents: tickSizeCents,
		Status:        common.MarketOpen,
		ResolvesTo:    common.ResolutionNone,
		CreatedAt:     time.Now(),
	}
	err := e.store.RunInTx(ctx, m.ID, func(ctx context.Context, tx Tx) error {
		if err := e.store.SaveMarket(ctx, tx, m); err != nil {
			return err
		}
		seq, err := e.store.NextSeq(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		return e.store.AppendEvent(ctx, tx, common.Event{
			MarketID:  &m.ID,
			Seq:       &seq,
			Type:      common.EventMarketCreated,
			Payload:   eventPayload(map[string]any{"slug": slug, "title": title}),
			CreatedAt: time.Now(),
		})
	})
	if err != nil {
		return common.Market{}, fmt.Errorf("engine: create market: %w", err)
	}
	e.mu.Lock()
	e.markets[m.ID] = &marketState{book: book.New(), market: m}
	e.mu.Unlock()
	return m, nil
}

// PromoteMarket records an administrative promotion by appending a
// MarketPromoted event; it changes no market, order, wallet or position
// state. It exists only to give MarketPromoted, a member of the closed
// event taxonomy, a caller.
func (e *Engine) PromoteMarket(ctx context.Context, marketID string) error {
	if _, ok := e.getMarketState(marketID); !ok {
		return ErrMarketNotFound
	}
	return e.store.RunInTx(ctx, marketID, func(ctx context.Context, tx Tx) error {
		seq, err := e.store.NextSeq(ctx, tx, marketID)
		if err != nil {
			return err
		}
		return e.store.AppendEvent(ctx, tx, common.Event{
			MarketID:  &marketID,
			Seq:       &seq,
			Type:      common.EventMarketPromoted,
			Payload:   eventPayload(map[string]any{}),
			CreatedAt: time.Now(),
		})
	})
}

// Deposit credits a wallet's balance. Real funds movement is out of scope
// (spec.md §1); this is the trivial store mutation a wallet needs to
// originate a non-zero balance at all.
func (e *Engine) Deposit(ctx context.Context, userID string, amountCents int64) error {
	if amountCents <= 0 {
		return fmt.Errorf("%w: deposit amount must be positive", ErrInvalidQty)
	}
	return e.store.RunInTx(ctx, "", func(ctx context.Context, tx Tx) error {
		w, err := e.store.LockWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		w.BalanceCents += amountCents
		if err := e.store.SaveWallet(ctx, tx, w); err != nil {
			return err
		}
		return e.store.AppendEvent(ctx, tx, common.Event{
			Type:      common.EventDeposit,
			Payload:   eventPayload(map[string]any{"user_id": userID, "amount_cents": amountCents}),
			CreatedAt: time.Now(),
		})
	})
}

// GetOpenOrders is a supplemented read-only query, grounded on the
// teacher's debug LogBook() read path.
func (e *Engine) GetOpenOrders(ctx context.Context, marketID, userID string) ([]common.Order, error) {
	orders, err := e.store.ListOpenOrPartialOrders(ctx, nil, marketID)
	if err != nil {
		return nil, fmt.Errorf("engine: get open orders: %w", err)
	}
	out := orders[:0]
	for _, o := range orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

// GetPositions is a supplemented read-only query.
func (e *Engine) GetPositions(ctx context.Context, marketID, userID string) (common.Position, error) {
	return e.store.GetPosition(ctx, nil, marketID, userID)
}

// BookSnapshot returns the current book depth for a market (spec.md §6
// GetBookSnapshot) as a copy. It takes the market's writer lock while
// copying, so it waits for any command in progress on that market.
func (e *Engine) BookSnapshot(marketID string, depth int) (bids, asks []book.LevelSnapshot, err error) {
	ms, ok := e.getMarketState(marketID)
	if !ok {
		return nil, nil, ErrMarketNotFound
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	b, a := ms.book.Snapshot(depth)
	return b, a, nil
}

// PlaceOrder runs the full algorithm of spec.md §4.2.
func (e *Engine) PlaceOrder(ctx context.Context, cmd PlaceOrderCmd) (PlaceOrderResult, error) {
	ms, ok := e.getMarketState(cmd.MarketID)
	if !ok {
		return PlaceOrderResult{Status: common.OrderRejected, Reason: ErrMarketNotFound.Error()}, nil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	// 1. Validate statically.
	if ms.market.Status != common.MarketOpen {
		return PlaceOrderResult{Status: common.OrderRejected, Reason: ErrMarketNotOpen.Error()}, nil
	}
	if cmd.Type == common.LimitOrder {
		if !money.ValidPrice(cmd.PriceCents) || !money.DivisibleByTick(cmd.PriceCents, ms.market.TickSizeCents) {
			return PlaceOrderResult{Status: common.OrderRejected, Reason: ErrInvalidPrice.Error()}, nil
		}
	}
	if !money.ValidQty(cmd.Qty) {
		return PlaceOrderResult{Status: common.OrderRejected, Reason: ErrInvalidQty.Error()}, nil
	}
	if cmd.ClientOrderID != "" {
		_, found, err := e.store.GetOrderByClientID(ctx, nil, cmd.UserID, cmd.ClientOrderID)
		if err != nil {
			return PlaceOrderResult{}, fmt.Errorf("engine: check client order id: %w", err)
		}
		if found {
			return PlaceOrderResult{Status: common.OrderRejected, Reason: ErrDuplicateClientOrderID.Error()}, nil
		}
	}

	// 2. Compute required lock.
	perShare := ledger.PerShareLock(cmd.Side, cmd.Type, cmd.PriceCents)
	requiredLock := ledger.RequiredLock(perShare, cmd.Qty, e.feeBps, cmd.Type, cmd.PriceCents)

	// 3. Plan fills against the current book.
	var limitPrice *int64
	if cmd.Type == common.LimitOrder {
		p := cmd.PriceCents
		limitPrice = &p
	}
	plan := ms.book.FindMatches(cmd.Side, limitPrice, cmd.Qty, cmd.UserID)
	var fillTotal int64
	for _, f := range plan {
		fillTotal += f.Qty
	}
	remaining := cmd.Qty - fillTotal

	// 4. Decide status.
	var status common.OrderStatus
	var cancelReason string
	switch {
	case fillTotal == cmd.Qty:
		status = common.OrderFilled
	case fillTotal > 0 && cmd.Type == common.MarketOrder:
		status = common.OrderFilled
	case fillTotal == 0 && cmd.Type == common.MarketOrder:
		status = common.OrderCanceled
		cancelReason = "no_liquidity"
	case fillTotal > 0:
		status = common.OrderPartial
	default:
		status = common.OrderOpen
	}

	remainingQtyFinal := remaining
	if status == common.OrderFilled || status == common.OrderCanceled {
		remainingQtyFinal = 0
	}

	var finalLock int64
	if status == common.OrderOpen || status == common.OrderPartial {
		finalLock = ledger.RestingLock(cmd.Side, cmd.Type, cmd.PriceCents, remainingQtyFinal, e.feeBps)
	}

	orderID := uuid.NewString()
	now := time.Now()
	order := common.Order{
		ID:            orderID,
		MarketID:      cmd.MarketID,
		UserID:        cmd.UserID,
		Side:          cmd.Side,
		Type:          cmd.Type,
		PriceCents:    cmd.PriceCents,
		Qty:           cmd.Qty,
		RemainingQty:  remainingQtyFinal,
		LockedCents:   finalLock,
		Status:        status,
		ClientOrderID: cmd.ClientOrderID,
		CreatedAt:     now,
		ExchTimestamp: now,
	}

	var resultFills []Fill
	var committedTrades []common.Trade
	var bookMutations []book.PlannedFill

	err := e.store.RunInTx(ctx, cmd.MarketID, func(ctx context.Context, tx Tx) error {
		takerWallet, err := e.store.LockWallet(ctx, tx, cmd.UserID)
		if err != nil {
			return err
		}
		if takerWallet.Available() < requiredLock {
			return rejection{ErrInsufficientFunds.Error()}
		}

		seq, err := e.store.NextSeq(ctx, tx, cmd.MarketID)
		if err != nil {
			return err
		}
		order.Seq = seq
		if err := e.store.InsertOrder(ctx, tx, order); err != nil {
			return err
		}
		acceptedSeq, err := e.store.NextSeq(ctx, tx, cmd.MarketID)
		if err != nil {
			return err
		}
		if err := e.store.AppendEvent(ctx, tx, common.Event{
			MarketID:  &cmd.MarketID,
			Seq:       &acceptedSeq,
			Type:      common.EventOrderAccepted,
			Payload:   eventPayload(map[string]any{"order_id": order.ID, "status": status.String()}),
			CreatedAt: now,
		}); err != nil {
			return err
		}

		takerPos, err := e.store.GetPosition(ctx, tx, cmd.MarketID, cmd.UserID)
		if err != nil {
			return err
		}
		var takerPositionLockDelta int64

		for _, f := range plan {
			makerOrder, found, err := e.store.GetOrder(ctx, tx, f.MakerOrderID)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: maker order %s vanished mid-match", ErrInvariantViolation, f.MakerOrderID)
			}

			tradeSeq, err := e.store.NextSeq(ctx, tx, cmd.MarketID)
			if err != nil {
				return err
			}
			fee := ledger.TakerFee(f.PriceCents, f.Qty, e.feeBps)
			trade := common.Trade{
				ID:            uuid.NewString(),
				MarketID:      cmd.MarketID,
				MakerOrderID:  f.MakerOrderID,
				TakerOrderID:  order.ID,
				MakerUserID:   f.MakerUserID,
				TakerUserID:   cmd.UserID,
				PriceCents:    f.PriceCents,
				Qty:           f.Qty,
				TakerFeeCents: fee,
				Seq:           tradeSeq,
				Timestamp:     now,
			}
			if err := e.store.InsertTrade(ctx, tx, trade); err != nil {
				return err
			}

			// Maker order lock release, pro-rated against its fee component.
			makerPerShare := ledger.PerShareLock(makerOrder.Side, makerOrder.Type, makerOrder.PriceCents)
			feeComponent := makerOrder.LockedCents - makerPerShare*makerOrder.RemainingQty
			release := ledger.MakerLockRelease(makerOrder.Side, makerOrder.Type, makerOrder.PriceCents, f.Qty, makerOrder.RemainingQty, feeComponent)
			makerOrder.RemainingQty -= f.Qty
			makerOrder.LockedCents -= release
			if makerOrder.RemainingQty == 0 {
				makerOrder.Status = common.OrderFilled
			} else {
				makerOrder.Status = common.OrderPartial
			}
			if err := e.store.UpdateOrder(ctx, tx, makerOrder); err != nil {
				return err
			}

			// Cash transfer (spec.md §4.2 step 5, 3rd bullet).
			makerWallet, err := e.store.LockWallet(ctx, tx, f.MakerUserID)
			if err != nil {
				return err
			}
			notional := f.PriceCents * f.Qty
			if cmd.Side == common.Buy {
				takerWallet.BalanceCents -= notional + fee
				makerWallet.BalanceCents += notional
			} else {
				takerWallet.BalanceCents += notional - fee
				makerWallet.BalanceCents -= notional
			}
			if err := e.store.AddPlatformFee(ctx, tx, fee); err != nil {
				return err
			}

			// Position updates, execution always at the maker's price.
			makerPos, err := e.store.GetPosition(ctx, tx, cmd.MarketID, f.MakerUserID)
			if err != nil {
				return err
			}
			var makerDelta ledger.PositionDelta
			if makerOrder.Side == common.Buy {
				makerDelta = ledger.ApplyBuyFill(makerPos.YesShares, makerPos.AvgCostCents, makerPos.LockedCents, f.Qty, f.PriceCents)
			} else {
				makerDelta = ledger.ApplySellFill(makerPos.YesShares, makerPos.AvgCostCents, f.Qty, f.PriceCents)
			}
			makerPos.YesShares = makerDelta.NewYesShares
			makerPos.AvgCostCents = makerDelta.NewAvgCostCents
			makerPos.RealizedPnlCents += makerDelta.RealizedPnlDelta
			makerPos.LockedCents += makerDelta.PositionLockDelta
			if err := e.store.SavePosition(ctx, tx, makerPos); err != nil {
				return err
			}
			makerWallet.LockedCents += makerDelta.PositionLockDelta - release
			if err := e.store.SaveWallet(ctx, tx, makerWallet); err != nil {
				return err
			}

			var takerDelta ledger.PositionDelta
			if cmd.Side == common.Buy {
				takerDelta = ledger.ApplyBuyFill(takerPos.YesShares, takerPos.AvgCostCents, takerPos.LockedCents, f.Qty, f.PriceCents)
			} else {
				takerDelta = ledger.ApplySellFill(takerPos.YesShares, takerPos.AvgCostCents, f.Qty, f.PriceCents)
			}
			takerPos.YesShares = takerDelta.NewYesShares
			takerPos.AvgCostCents = takerDelta.NewAvgCostCents
			takerPos.RealizedPnlCents += takerDelta.RealizedPnlDelta
			takerPos.LockedCents += takerDelta.PositionLockDelta
			takerPositionLockDelta += takerDelta.PositionLockDelta

			tradeEventSeq := tradeSeq
			if err := e.store.AppendEvent(ctx, tx, common.Event{
				MarketID:  &cmd.MarketID,
				Seq:       &tradeEventSeq,
				Type:      common.EventTradeExecuted,
				Payload:   eventPayload(trade),
				CreatedAt: now,
			}); err != nil {
				return err
			}
			if makerOrder.Status == common.OrderFilled {
				filledSeq, err := e.store.NextSeq(ctx, tx, cmd.MarketID)
				if err != nil {
					return err
				}
				if err := e.store.AppendEvent(ctx, tx, common.Event{
					MarketID:  &cmd.MarketID,
					Seq:       &filledSeq,
					Type:      common.EventOrderFilled,
					Payload:   eventPayload(map[string]any{"order_id": makerOrder.ID}),
					CreatedAt: now,
				}); err != nil {
					return err
				}
			}

			resultFills = append(resultFills, Fill{
				MakerOrderID: f.MakerOrderID,
				PriceCents:   f.PriceCents,
				Qty:          f.Qty,
				FeeCents:     fee,
				Seq:          tradeSeq,
			})
			committedTrades = append(committedTrades, trade)
			bookMutations = append(bookMutations, f)
		}

		if err := e.store.SavePosition(ctx, tx, takerPos); err != nil {
			return err
		}
		takerWallet.LockedCents += finalLock + takerPositionLockDelta
		if err := e.store.SaveWallet(ctx, tx, takerWallet); err != nil {
			return err
		}
		return nil
	})

	if rej, isRejection := asRejection(err); isRejection {
		return PlaceOrderResult{Status: common.OrderRejected, Reason: rej.reason}, nil
	}
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("engine: place order: %w", err)
	}

	// 6. After commit: mutate the in-memory book.
	for _, f := range bookMutations {
		if _, err := ms.book.ApplyFill(f.MakerOrderID, f.Qty); err != nil {
			log.Error().Err(err).Str("order_id", f.MakerOrderID).Msg("engine: book ApplyFill failed post-commit")
		}
	}
	if status == common.OrderOpen || status == common.OrderPartial {
		if err := ms.book.Add(&book.Entry{
			OrderID:      order.ID,
			UserID:       order.UserID,
			Side:         order.Side,
			PriceCents:   order.PriceCents,
			RemainingQty: order.RemainingQty,
			LockedCents:  order.LockedCents,
			Seq:          order.Seq,
			RestedAt:     order.ExchTimestamp,
		}); err != nil {
			log.Error().Err(err).Str("order_id", order.ID).Msg("engine: book Add failed post-commit")
		}
	}

	// 7. Notify.
	bids, asks := ms.book.Snapshot(10)
	e.notifier.BookSnapshot(cmd.MarketID, bids, asks)
	for _, t := range committedTrades {
		e.notifier.Trade(t)
	}
	e.notifier.OrderUpdate(order)

	return PlaceOrderResult{OrderID: order.ID, Status: status, Fills: resultFills, Reason: cancelReason}, nil
}

func asRejection(err error) (rejection, bool) {
	if err == nil {
		return rejection{}, false
	}
	if r, ok := err.(rejection); ok {
		return r, true
	}
	return rejection{}, false
}

// CancelOrder implements spec.md §4.2 CancelOrder.
func (e *Engine) CancelOrder(ctx context.Context, cmd CancelOrderCmd) (CancelOrderResult, error) {
	ms, ok := e.getMarketState(cmd.MarketID)
	if !ok {
		return CancelOrderResult{}, ErrMarketNotFound
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	o, found, err := e.store.GetOrder(ctx, nil, cmd.OrderID)
	if err != nil {
		return CancelOrderResult{}, fmt.Errorf("engine: cancel order: %w", err)
	}
	if !found {
		return CancelOrderResult{}, ErrOrderNotFound
	}
	if o.UserID != cmd.UserID && !cmd.IsAdmin {
		return CancelOrderResult{}, ErrForbidden
	}
	if o.Status.Terminal() {
		return CancelOrderResult{Success: true, AlreadyTerminal: true}, nil
	}

	err = e.store.RunInTx(ctx, cmd.MarketID, func(ctx context.Context, tx Tx) error {
		w, err := e.store.LockWallet(ctx, tx, o.UserID)
		if err != nil {
			return err
		}
		w.LockedCents -= o.LockedCents
		if err := e.store.SaveWallet(ctx, tx, w); err != nil {
			return err
		}
		o.Status = common.OrderCanceled
		o.RemainingQty = 0
		o.LockedCents = 0
		if err := e.store.UpdateOrder(ctx, tx, o); err != nil {
			return err
		}
		seq, err := e.store.NextSeq(ctx, tx, cmd.MarketID)
		if err != nil {
			return err
		}
		return e.store.AppendEvent(ctx, tx, common.Event{
			MarketID:  &cmd.MarketID,
			Seq:       &seq,
			Type:      common.EventOrderCanceled,
			Payload:   eventPayload(map[string]any{"order_id": o.ID, "reason": "UserRequested"}),
			CreatedAt: time.Now(),
		})
	})
	if err != nil {
		return CancelOrderResult{}, fmt.Errorf("engine: cancel order: %w", err)
	}

	if err := ms.book.Remove(o.ID); err != nil {
		log.Error().Err(err).Str("order_id", o.ID).Msg("engine: book Remove failed post-commit")
	}
	e.notifier.OrderUpdate(o)
	bids, asks := ms.book.Snapshot(10)
	e.notifier.BookSnapshot(cmd.MarketID, bids, asks)

	return CancelOrderResult{Success: true}, nil
}

// ResolveMarket implements settlement, spec.md §4.5.
func (e *Engine) ResolveMarket(ctx context.Context, cmd ResolveMarketCmd) (ResolveMarketResult, error) {
	ms, ok := e.getMarketState(cmd.MarketID)
	if !ok {
		return ResolveMarketResult{}, ErrMarketNotFound
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.market.Status != common.MarketOpen {
		return ResolveMarketResult{}, ErrAlreadyResolved
	}

	var result ResolveMarketResult
	now := time.Now()

	err := e.store.RunInTx(ctx, cmd.MarketID, func(ctx context.Context, tx Tx) error {
		// 1. Cancel every resting order, releasing its lock.
		restingOrders, err := e.store.ListOpenOrPartialOrders(ctx, tx, cmd.MarketID)
		if err != nil {
			return err
		}
		for _, o := range restingOrders {
			w, err := e.store.LockWallet(ctx, tx, o.UserID)
			if err != nil {
				return err
			}
			w.LockedCents -= o.LockedCents
			if err := e.store.SaveWallet(ctx, tx, w); err != nil {
				return err
			}
			o.Status = common.OrderCanceled
			o.RemainingQty = 0
			o.LockedCents = 0
			if err := e.store.UpdateOrder(ctx, tx, o); err != nil {
				return err
			}
			seq, err := e.store.NextSeq(ctx, tx, cmd.MarketID)
			if err != nil {
				return err
			}
			if err := e.store.AppendEvent(ctx, tx, common.Event{
				MarketID:  &cmd.MarketID,
				Seq:       &seq,
				Type:      common.EventOrderCanceled,
				Payload:   eventPayload(map[string]any{"order_id": o.ID, "reason": "MarketSettlement"}),
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		// 2. Settle every position.
		positions, err := e.store.ListPositions(ctx, tx, cmd.MarketID)
		if err != nil {
			return err
		}
		for _, p := range positions {
			w, err := e.store.LockWallet(ctx, tx, p.UserID)
			if err != nil {
				return err
			}
			w.LockedCents -= p.LockedCents
			balanceDelta, pnlDelta := ledger.SettlementPayout(cmd.ResolvesTo, p.YesShares, p.AvgCostCents, p.LockedCents)
			w.BalanceCents += balanceDelta
			if err := e.store.SaveWallet(ctx, tx, w); err != nil {
				return err
			}
			p.RealizedPnlCents += pnlDelta
			p.LockedCents = 0
			if err := e.store.SavePosition(ctx, tx, p); err != nil {
				return err
			}
			seq, err := e.store.NextSeq(ctx, tx, cmd.MarketID)
			if err != nil {
				return err
			}
			if err := e.store.AppendEvent(ctx, tx, common.Event{
				MarketID:  &cmd.MarketID,
				Seq:       &seq,
				Type:      common.EventPositionSettled,
				Payload:   eventPayload(map[string]any{"user_id": p.UserID, "balance_delta_cents": balanceDelta, "realized_pnl_delta_cents": pnlDelta}),
				CreatedAt: now,
			}); err != nil {
				return err
			}
			result.SettledPositions++
			if balanceDelta > 0 {
				result.TotalPayoutCents += balanceDelta
			}
		}

		// 3. Update Market.
		ms.market.Status = common.MarketResolved
		ms.market.ResolvesTo = cmd.ResolvesTo
		resolvedAt := now
		ms.market.ResolvedAt = &resolvedAt
		if err := e.store.SaveMarket(ctx, tx, ms.market); err != nil {
			return err
		}

		// 4. Append MarketResolved.
		seq, err := e.store.NextSeq(ctx, tx, cmd.MarketID)
		if err != nil {
			return err
		}
		return e.store.AppendEvent(ctx, tx, common.Event{
			MarketID:  &cmd.MarketID,
			Seq:       &seq,
			Type:      common.EventMarketResolved,
			Payload:   eventPayload(map[string]any{"resolves_to": cmd.ResolvesTo.String()}),
			CreatedAt: now,
		})
	})
	if err != nil {
		return ResolveMarketResult{}, fmt.Errorf("engine: resolve market: %w", err)
	}

	// 5. After commit, retire the market's in-memory book.
	e.mu.Lock()
	delete(e.markets, cmd.MarketID)
	e.mu.Unlock()
	e.notifier.MarketResolved(ms.market)

	return result, nil
}
