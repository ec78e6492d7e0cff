package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wagerbook/internal/common"
)

const feeBps = int64(100)

func newTestEngine(t *testing.T) (*Engine, *memStore, common.Market) {
	t.Helper()
	store := newMemStore()
	e := New(store, NoopNotifier{}, feeBps)
	m, err := e.CreateMarket(context.Background(), "will-it-rain", "Will it rain?", "", 1)
	require.NoError(t, err)
	return e, store, m
}

func fund(t *testing.T, e *Engine, userID string, amountCents int64) {
	t.Helper()
	require.NoError(t, e.Deposit(context.Background(), userID, amountCents))
}

// seedAsk places a resting LIMIT SELL directly, bypassing matching, by
// placing it into an empty book (no opposite liquidity exists yet). The
// seller must already be funded to cover the order's lock.
func seedAsk(t *testing.T, e *Engine, marketID, userID string, priceCents, qty int64) PlaceOrderResult {
	t.Helper()
	res, err := e.PlaceOrder(context.Background(), PlaceOrderCmd{
		MarketID: marketID, UserID: userID, Side: common.Sell, Type: common.LimitOrder,
		PriceCents: priceCents, Qty: qty,
	})
	require.NoError(t, err)
	require.Equal(t, common.OrderOpen, res.Status)
	return res
}

// TestPlaceOrder_PricePriority mirrors spec.md §8 scenario 1.
func TestPlaceOrder_PricePriority(t *testing.T) {
	e, _, m := newTestEngine(t)
	ctx := context.Background()

	fund(t, e, "s1", 1000)
	fund(t, e, "s2", 1000)
	fund(t, e, "s3", 1000)
	seedAsk(t, e, m.ID, "s1", 55, 10)
	seedAsk(t, e, m.ID, "s2", 58, 5)
	seedAsk(t, e, m.ID, "s3", 60, 20)
	fund(t, e, "taker", 2000)

	res, err := e.PlaceOrder(ctx, PlaceOrderCmd{
		MarketID: m.ID, UserID: "taker", Side: common.Buy, Type: common.LimitOrder,
		PriceCents: 60, Qty: 18,
	})
	require.NoError(t, err)
	require.Equal(t, common.OrderFilled, res.Status)
	require.Len(t, res.Fills, 3)
	assert.Equal(t, int64(10), res.Fills[0].Qty)
	assert.Equal(t, int64(55), res.Fills[0].PriceCents)
	assert.Equal(t, int64(5), res.Fills[1].Qty)
	assert.Equal(t, int64(58), res.Fills[1].PriceCents)
	assert.Equal(t, int64(3), res.Fills[2].Qty)
	assert.Equal(t, int64(60), res.Fills[2].PriceCents)

	var totalFee int64
	for _, f := range res.Fills {
		totalFee += f.FeeCents
	}
	assert.Equal(t, int64(8), totalFee) // 5 + 2 + 1
}

// TestPlaceOrder_FIFOWithinLevel mirrors spec.md §8 scenario 2.
func TestPlaceOrder_FIFOWithinLevel(t *testing.T) {
	e, store, m := newTestEngine(t)
	ctx := context.Background()

	fund(t, e, "A", 1000)
	fund(t, e, "B", 1000)
	seedAsk(t, e, m.ID, "A", 55, 5)
	seedAsk(t, e, m.ID, "B", 55, 5)
	fund(t, e, "taker", 1000)

	res, err := e.PlaceOrder(ctx, PlaceOrderCmd{
		MarketID: m.ID, UserID: "taker", Side: common.Buy, Type: common.LimitOrder,
		PriceCents: 55, Qty: 7,
	})
	require.NoError(t, err)
	require.Equal(t, common.OrderFilled, res.Status)
	require.Len(t, res.Fills, 2)
	assert.Equal(t, int64(5), res.Fills[0].Qty)
	assert.Equal(t, int64(2), res.Fills[1].Qty)

	var makerA, makerB common.Order
	for _, o := range store.orders {
		if o.UserID == "A" {
			makerA = o
		}
		if o.UserID == "B" {
			makerB = o
		}
	}
	assert.Equal(t, common.OrderFilled, makerA.Status)
	assert.Equal(t, common.OrderPartial, makerB.Status)
	assert.Equal(t, int64(3), makerB.RemainingQty)
}

// TestPlaceOrder_PartialRest mirrors spec.md §8 scenario 3.
func TestPlaceOrder_PartialRest(t *testing.T) {
	e, store, m := newTestEngine(t)
	ctx := context.Background()
	fund(t, e, "buyer", 1000)

	res, err := e.PlaceOrder(ctx, PlaceOrderCmd{
		MarketID: m.ID, UserID: "buyer", Side: common.Buy, Type: common.LimitOrder,
		PriceCents: 50, Qty: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, common.OrderOpen, res.Status)

	bids, _, err := e.BookSnapshot(m.ID, 10)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, int64(50), bids[0].PriceCents)
	assert.Equal(t, int64(10), bids[0].Qty)

	w := store.wallets["buyer"]
	assert.Equal(t, int64(505), w.LockedCents)
}

// TestPlaceOrder_MarketNoLiquidity mirrors spec.md §8 scenario 4.
func TestPlaceOrder_MarketNoLiquidity(t *testing.T) {
	e, store, m := newTestEngine(t)
	ctx := context.Background()
	fund(t, e, "buyer", 1000)

	res, err := e.PlaceOrder(ctx, PlaceOrderCmd{
		MarketID: m.ID, UserID: "buyer", Side: common.Buy, Type: common.MarketOrder, Qty: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, common.OrderCanceled, res.Status)
	assert.Empty(t, res.Fills)
	assert.Equal(t, int64(0), store.wallets["buyer"].LockedCents)
	assert.Equal(t, int64(1000), store.wallets["buyer"].BalanceCents)
}

// TestPlaceOrder_SelfTradePrevention mirrors spec.md §8 scenario 5.
func TestPlaceOrder_SelfTradePrevention(t *testing.T) {
	e, _, m := newTestEngine(t)
	ctx := context.Background()
	fund(t, e, "same-user", 2000)

	seedAsk(t, e, m.ID, "same-user", 55, 10)

	res, err := e.PlaceOrder(ctx, PlaceOrderCmd{
		MarketID: m.ID, UserID: "same-user", Side: common.Buy, Type: common.LimitOrder,
		PriceCents: 60, Qty: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, common.OrderOpen, res.Status)
	assert.Empty(t, res.Fills)

	bids, asks, err := e.BookSnapshot(m.ID, 10)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, int64(60), bids[0].PriceCents)
	require.Len(t, asks, 1) // the resting SELL is left untouched
}

// TestResolveMarket_LongAndShort mirrors spec.md §8 scenario 6.
func TestResolveMarket_LongAndShort(t *testing.T) {
	e, store, m := newTestEngine(t)
	ctx := context.Background()

	// Bob sells 10 @ 70 to open a short; Alice buys 10 @ 70 to open a long.
	fund(t, e, "bob", 10_000)
	fund(t, e, "alice", 10_000)

	seedAsk(t, e, m.ID, "bob", 70, 10)
	res, err := e.PlaceOrder(ctx, PlaceOrderCmd{
		MarketID: m.ID, UserID: "alice", Side: common.Buy, Type: common.LimitOrder,
		PriceCents: 70, Qty: 10,
	})
	require.NoError(t, err)
	require.Equal(t, common.OrderFilled, res.Status)

	alicePos := store.positions[posKey(m.ID, "alice")]
	assert.Equal(t, int64(10), alicePos.YesShares)
	assert.Equal(t, int64(70), alicePos.AvgCostCents)

	bobPos := store.positions[posKey(m.ID, "bob")]
	assert.Equal(t, int64(-10), bobPos.YesShares)
	assert.Equal(t, int64(300), bobPos.LockedCents) // (100-70)*10

	aliceWalletBefore := store.wallets["alice"]
	bobWalletBefore := store.wallets["bob"]

	_, err = e.ResolveMarket(ctx, ResolveMarketCmd{MarketID: m.ID, ResolvesTo: common.ResolutionYes, AdminUserID: "admin"})
	require.NoError(t, err)

	aliceWalletAfter := store.wallets["alice"]
	bobWalletAfter := store.wallets["bob"]
	assert.Equal(t, int64(1000), aliceWalletAfter.BalanceCents-aliceWalletBefore.BalanceCents)
	assert.Equal(t, int64(-1000), bobWalletAfter.BalanceCents-bobWalletBefore.BalanceCents)

	aliceFinal := store.positions[posKey(m.ID, "alice")]
	bobFinal := store.positions[posKey(m.ID, "bob")]
	assert.Equal(t, int64(300), aliceFinal.RealizedPnlCents) // (100-70)*10; Alice's entry here is 70
	assert.Equal(t, int64(-300), bobFinal.RealizedPnlCents)
	assert.Equal(t, int64(0), aliceFinal.LockedCents)
	assert.Equal(t, int64(0), bobFinal.LockedCents)
	assert.Equal(t, int64(0), aliceWalletAfter.LockedCents)
	assert.Equal(t, int64(0), bobWalletAfter.LockedCents)
}

func TestPlaceOrder_TickSizeRejected(t *testing.T) {
	store := newMemStore()
	e := New(store, NoopNotifier{}, feeBps)
	m, err := e.CreateMarket(context.Background(), "ticked", "Ticked market", "", 5)
	require.NoError(t, err)
	fund(t, e, "buyer", 1000)

	res, err := e.PlaceOrder(context.Background(), PlaceOrderCmd{
		MarketID: m.ID, UserID: "buyer", Side: common.Buy, Type: common.LimitOrder,
		PriceCents: 52, Qty: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, common.OrderRejected, res.Status)
	assert.Equal(t, int64(0), store.wallets["buyer"].LockedCents)
}

func TestPlaceOrder_DuplicateClientOrderIDRejected(t *testing.T) {
	e, _, m := newTestEngine(t)
	ctx := context.Background()
	fund(t, e, "buyer", 1000)

	cmd := PlaceOrderCmd{
		MarketID: m.ID, UserID: "buyer", Side: common.Buy, Type: common.LimitOrder,
		PriceCents: 50, Qty: 1, ClientOrderID: "idem-1",
	}
	first, err := e.PlaceOrder(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, common.OrderOpen, first.Status)

	second, err := e.PlaceOrder(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, common.OrderRejected, second.Status)
}

func TestCancelOrder_ReleasesLockAndRemovesFromBook(t *testing.T) {
	e, store, m := newTestEngine(t)
	ctx := context.Background()
	fund(t, e, "buyer", 1000)

	res, err := e.PlaceOrder(ctx, PlaceOrderCmd{
		MarketID: m.ID, UserID: "buyer", Side: common.Buy, Type: common.LimitOrder,
		PriceCents: 50, Qty: 10,
	})
	require.NoError(t, err)

	cancelRes, err := e.CancelOrder(ctx, CancelOrderCmd{MarketID: m.ID, OrderID: res.OrderID, UserID: "buyer"})
	require.NoError(t, err)
	assert.True(t, cancelRes.Success)
	assert.False(t, cancelRes.AlreadyTerminal)
	assert.Equal(t, int64(0), store.wallets["buyer"].LockedCents)

	bids, _, err := e.BookSnapshot(m.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, bids)

	again, err := e.CancelOrder(ctx, CancelOrderCmd{MarketID: m.ID, OrderID: res.OrderID, UserID: "buyer"})
	require.NoError(t, err)
	assert.True(t, again.AlreadyTerminal)
}

func TestCancelOrder_ForbiddenForNonOwner(t *testing.T) {
	e, _, m := newTestEngine(t)
	ctx := context.Background()
	fund(t, e, "buyer", 1000)

	res, err := e.PlaceOrder(ctx, PlaceOrderCmd{
		MarketID: m.ID, UserID: "buyer", Side: common.Buy, Type: common.LimitOrder,
		PriceCents: 50, Qty: 10,
	})
	require.NoError(t, err)

	_, err = e.CancelOrder(ctx, CancelOrderCmd{MarketID: m.ID, OrderID: res.OrderID, UserID: "someone-else"})
	assert.ErrorIs(t, err, ErrForbidden)
}
