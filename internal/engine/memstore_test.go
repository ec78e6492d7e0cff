package engine

import (
	"context"
	"fmt"
	"sort"

	"wagerbook/internal/common"
)

// memTx is the opaque Tx handle memStore hands out; it carries nothing
// because memStore has no transaction isolation and no locking.
type memTx struct{}

// memStore is an in-memory fake of Store for engine unit tests. It has no
// real isolation: RunInTx just runs fn directly, with no lock and no
// rollback of writes made before an error, which is sufficient for
// single-goroutine engine tests.
type memStore struct {
	markets   map[string]common.Market
	wallets   map[string]common.Wallet
	orders    map[string]common.Order
	ordersByC map[string]string // userID|clientOrderID -> orderID
	trades    []common.Trade
	positions map[string]common.Position // marketID|userID -> Position
	events    []common.Event
	platform  int64
	seqs      map[string]int64
}

func newMemStore() *memStore {
	return &memStore{
		markets:   map[string]common.Market{},
		wallets:   map[string]common.Wallet{},
		orders:    map[string]common.Order{},
		ordersByC: map[string]string{},
		positions: map[string]common.Position{},
		seqs:      map[string]int64{},
	}
}

func (m *memStore) RunInTx(ctx context.Context, marketID string, fn func(ctx context.Context, tx Tx) error) error {
	return fn(ctx, memTx{})
}

func (m *memStore) NextSeq(ctx context.Context, tx Tx, marketID string) (int64, error) {
	if _, ok := m.markets[marketID]; !ok {
		return 0, fmt.Errorf("memstore: unknown market %s", marketID)
	}
	m.seqs[marketID]++
	return m.seqs[marketID], nil
}

func (m *memStore) MaxSeq(ctx context.Context, marketID string) (int64, error) {
	return m.seqs[marketID], nil
}

func (m *memStore) GetMarket(ctx context.Context, tx Tx, marketID string) (common.Market, bool, error) {
	mk, ok := m.markets[marketID]
	return mk, ok, nil
}

func (m *memStore) SaveMarket(ctx context.Context, tx Tx, mk common.Market) error {
	m.markets[mk.ID] = mk
	return nil
}

func (m *memStore) LockWallet(ctx context.Context, tx Tx, userID string) (common.Wallet, error) {
	w, ok := m.wallets[userID]
	if !ok {
		w = common.Wallet{UserID: userID}
		m.wallets[userID] = w
	}
	return w, nil
}

func (m *memStore) SaveWallet(ctx context.Context, tx Tx, w common.Wallet) error {
	m.wallets[w.UserID] = w
	return nil
}

func (m *memStore) InsertOrder(ctx context.Context, tx Tx, o common.Order) error {
	m.orders[o.ID] = o
	if o.ClientOrderID != "" {
		m.ordersByC[o.UserID+"|"+o.ClientOrderID] = o.ID
	}
	return nil
}

func (m *memStore) UpdateOrder(ctx context.Context, tx Tx, o common.Order) error {
	existing := m.orders[o.ID]
	existing.RemainingQty = o.RemainingQty
	existing.LockedCents = o.LockedCents
	existing.Status = o.Status
	m.orders[o.ID] = existing
	return nil
}

func (m *memStore) GetOrder(ctx context.Context, tx Tx, orderID string) (common.Order, bool, error) {
	o, ok := m.orders[orderID]
	return o, ok, nil
}

func (m *memStore) GetOrderByClientID(ctx context.Context, tx Tx, userID, clientOrderID string) (common.Order, bool, error) {
	id, ok := m.ordersByC[userID+"|"+clientOrderID]
	if !ok {
		return common.Order{}, false, nil
	}
	o, ok := m.orders[id]
	return o, ok, nil
}

func (m *memStore) InsertTrade(ctx context.Context, tx Tx, t common.Trade) error {
	m.trades = append(m.trades, t)
	return nil
}

func posKey(marketID, userID string) string { return marketID + "|" + userID }

func (m *memStore) GetPosition(ctx context.Context, tx Tx, marketID, userID string) (common.Position, error) {
	p, ok := m.positions[posKey(marketID, userID)]
	if !ok {
		return common.Position{MarketID: marketID, UserID: userID}, nil
	}
	return p, nil
}

func (m *memStore) SavePosition(ctx context.Context, tx Tx, p common.Position) error {
	m.positions[posKey(p.MarketID, p.UserID)] = p
	return nil
}

func (m *memStore) AppendEvent(ctx context.Context, tx Tx, e common.Event) error {
	m.events = append(m.events, e)
	return nil
}

func (m *memStore) AddPlatformFee(ctx context.Context, tx Tx, amountCents int64) error {
	m.platform += amountCents
	return nil
}

func (m *memStore) ListOpenOrPartialOrders(ctx context.Context, tx Tx, marketID string) ([]common.Order, error) {
	var out []common.Order
	for _, o := range m.orders {
		if o.MarketID != marketID {
			continue
		}
		if o.Status == common.OrderOpen || o.Status == common.OrderPartial {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *memStore) ListPositions(ctx context.Context, tx Tx, marketID string) ([]common.Position, error) {
	var out []common.Position
	for _, p := range m.positions {
		if p.MarketID == marketID {
			out = append(out, p)
		}
	}
	return out, nil
}
