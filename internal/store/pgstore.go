// Package store is the durable relational store behind the matching
// engine: markets, wallets, orders, trades, positions, and the append-only
// event log, all pgx/Postgres (spec.md §3, §4.4, §6).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"wagerbook/internal/common"
	"wagerbook/internal/engine"
)

// ErrNotFound is returned by single-row lookups that miss.
var ErrNotFound = errors.New("store: not found")

// PG is a pgx-backed implementation of engine.Store.
type PG struct {
	pool *pgxpool.Pool
}

// Open connects a pgxpool.Pool to databaseURL and applies the schema.
// maxPoolConns caps the pool; 0 leaves pgxpool's own default in place.
func Open(ctx context.Context, databaseURL string, maxPoolConns int) (*PG, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	if maxPoolConns > 0 {
		poolCfg.MaxConns = int32(maxPoolConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	log.Info().Int32("maxConns", poolCfg.MaxConns).Msg("store: schema applied")
	return &PG{pool: pool}, nil
}

// Close releases the pool.
func (s *PG) Close() {
	s.pool.Close()
}

func txOf(tx engine.Tx) pgx.Tx {
	return tx.(pgx.Tx)
}

// RunInTx runs fn inside one serializable transaction, committing on a nil
// return and rolling back otherwise. marketID is accepted for symmetry with
// a sharded-store future (spec.md §9 open question); this implementation
// uses one shared pool and ignores it beyond logging.
func (s *PG) RunInTx(ctx context.Context, marketID string, fn func(ctx context.Context, tx engine.Tx) error) error {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("store: begin tx (market %s): %w", marketID, err)
	}
	defer pgtx.Rollback(ctx) //nolint:errcheck // no-op once committed

	if err := fn(ctx, pgtx); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit tx (market %s): %w", marketID, err)
	}
	return nil
}

func (s *PG) NextSeq(ctx context.Context, tx engine.Tx, marketID string) (int64, error) {
	var seq int64
	row := txOf(tx).QueryRow(ctx,
		`UPDATE markets SET next_seq = next_seq + 1 WHERE id = $1 RETURNING next_seq`, marketID)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("store: next_seq(%s): %w", marketID, err)
	}
	return seq, nil
}

func (s *PG) MaxSeq(ctx context.Context, marketID string) (int64, error) {
	var seq int64
	row := s.pool.QueryRow(ctx, `SELECT next_seq FROM markets WHERE id = $1`, marketID)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("store: max_seq(%s): %w", marketID, err)
	}
	return seq, nil
}

// ListOpenMarketIDs returns every market id with status OPEN, for the
// process-start book-rebuild pass (spec.md §4.4).
func (s *PG) ListOpenMarketIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM markets WHERE status = 'OPEN'`)
	if err != nil {
		return nil, fmt.Errorf("store: list open market ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan market id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PG) GetMarket(ctx context.Context, tx engine.Tx, marketID string) (common.Market, bool, error) {
	q := `SELECT id, slug, title, description, tick_size_cents, status, resolves_to, resolved_at, created_at
	      FROM markets WHERE id = $1`
	var m common.Market
	var resolvesTo string
	var status string
	row := queryRower(ctx, s, tx).QueryRow(ctx, q, marketID)
	if err := row.Scan(&m.ID, &m.Slug, &m.Title, &m.Description, &m.TickSizeCents, &status, &resolvesTo, &m.ResolvedAt, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.Market{}, false, nil
		}
		return common.Market{}, false, fmt.Errorf("store: get market(%s): %w", marketID, err)
	}
	m.Status = common.ParseMarketStatus(status)
	m.ResolvesTo = common.ParseResolution(resolvesTo)
	return m, true, nil
}

func (s *PG) SaveMarket(ctx context.Context, tx engine.Tx, m common.Market) error {
	q := `INSERT INTO markets (id, slug, title, description, tick_size_cents, status, resolves_to, resolved_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	      ON CONFLICT (id) DO UPDATE SET
	        title = EXCLUDED.title, description = EXCLUDED.description,
	        status = EXCLUDED.status, resolves_to = EXCLUDED.resolves_to,
	        resolved_at = EXCLUDED.resolved_at`
	_, err := txOf(tx).Exec(ctx, q, m.ID, m.Slug, m.Title, m.Description, m.TickSizeCents,
		m.Status.String(), m.ResolvesTo.String(), m.ResolvedAt)
	if err != nil {
		return fmt.Errorf("store: save market(%s): %w", m.ID, err)
	}
	return nil
}

func (s *PG) LockWallet(ctx context.Context, tx engine.Tx, userID string) (common.Wallet, error) {
	pgtx := txOf(tx)
	_, err := pgtx.Exec(ctx,
		`INSERT INTO wallets (user_id, balance_cents, locked_cents) VALUES ($1,0,0) ON CONFLICT DO NOTHING`, userID)
	if err != nil {
		return common.Wallet{}, fmt.Errorf("store: seed wallet(%s): %w", userID, err)
	}
	var w common.Wallet
	w.UserID = userID
	row := pgtx.QueryRow(ctx,
		`SELECT balance_cents, locked_cents FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	if err := row.Scan(&w.BalanceCents, &w.LockedCents); err != nil {
		return common.Wallet{}, fmt.Errorf("store: lock wallet(%s): %w", userID, err)
	}
	return w, nil
}

func (s *PG) SaveWallet(ctx context.Context, tx engine.Tx, w common.Wallet) error {
	_, err := txOf(tx).Exec(ctx,
		`UPDATE wallets SET balance_cents = $2, locked_cents = $3 WHERE user_id = $1`,
		w.UserID, w.BalanceCents, w.LockedCents)
	if err != nil {
		return fmt.Errorf("store: save wallet(%s): %w", w.UserID, err)
	}
	return nil
}

func (s *PG) InsertOrder(ctx context.Context, tx engine.Tx, o common.Order) error {
	q := `INSERT INTO orders (id, market_id, user_id, side, type, price_cents, qty, remaining_qty,
	      locked_cents, status, seq, client_order_id, created_at, exch_timestamp)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err := txOf(tx).Exec(ctx, q, o.ID, o.MarketID, o.UserID, o.Side.String(), o.Type.String(),
		o.PriceCents, o.Qty, o.RemainingQty, o.LockedCents, o.Status.String(), o.Seq,
		o.ClientOrderID, o.CreatedAt, o.ExchTimestamp)
	if err != nil {
		return fmt.Errorf("store: insert order(%s): %w", o.ID, err)
	}
	return nil
}

func (s *PG) UpdateOrder(ctx context.Context, tx engine.Tx, o common.Order) error {
	q := `UPDATE orders SET remaining_qty = $2, locked_cents = $3, status = $4 WHERE id = $1`
	_, err := txOf(tx).Exec(ctx, q, o.ID, o.RemainingQty, o.LockedCents, o.Status.String())
	if err != nil {
		return fmt.Errorf("store: update order(%s): %w", o.ID, err)
	}
	return nil
}

func (s *PG) orderFromRow(row pgx.Row) (common.Order, bool, error) {
	var o common.Order
	var side, typ, status string
	err := row.Scan(&o.ID, &o.MarketID, &o.UserID, &side, &typ, &o.PriceCents, &o.Qty,
		&o.RemainingQty, &o.LockedCents, &status, &o.Seq, &o.ClientOrderID, &o.CreatedAt, &o.ExchTimestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.Order{}, false, nil
		}
		return common.Order{}, false, err
	}
	o.Side = common.ParseSide(side)
	o.Type = common.ParseOrderType(typ)
	o.Status = common.ParseOrderStatus(status)
	return o, true, nil
}

const orderColumns = `id, market_id, user_id, side, type, price_cents, qty, remaining_qty,
	locked_cents, status, seq, client_order_id, created_at, exch_timestamp`

func (s *PG) GetOrder(ctx context.Context, tx engine.Tx, orderID string) (common.Order, bool, error) {
	row := queryRower(ctx, s, tx).QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	o, ok, err := s.orderFromRow(row)
	if err != nil {
		return common.Order{}, false, fmt.Errorf("store: get order(%s): %w", orderID, err)
	}
	return o, ok, nil
}

func (s *PG) GetOrderByClientID(ctx context.Context, tx engine.Tx, userID, clientOrderID string) (common.Order, bool, error) {
	row := queryRower(ctx, s, tx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND client_order_id = $2`, userID, clientOrderID)
	o, ok, err := s.orderFromRow(row)
	if err != nil {
		return common.Order{}, false, fmt.Errorf("store: get order by client id(%s,%s): %w", userID, clientOrderID, err)
	}
	return o, ok, nil
}

func (s *PG) InsertTrade(ctx context.Context, tx engine.Tx, t common.Trade) error {
	q := `INSERT INTO trades (id, market_id, maker_order_id, taker_order_id, maker_user_id, taker_user_id,
	      price_cents, qty, taker_fee_cents, seq, ts) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := txOf(tx).Exec(ctx, q, t.ID, t.MarketID, t.MakerOrderID, t.TakerOrderID, t.MakerUserID,
		t.TakerUserID, t.PriceCents, t.Qty, t.TakerFeeCents, t.Seq, t.Timestamp)
	if err != nil {
		return fmt.Errorf("store: insert trade(%s): %w", t.ID, err)
	}
	return nil
}

func (s *PG) GetPosition(ctx context.Context, tx engine.Tx, marketID, userID string) (common.Position, error) {
	p := common.Position{MarketID: marketID, UserID: userID}
	row := txOf(tx).QueryRow(ctx,
		`SELECT yes_shares, avg_cost_cents, realized_pnl_cents, locked_cents
		 FROM positions WHERE market_id = $1 AND user_id = $2 FOR UPDATE`, marketID, userID)
	err := row.Scan(&p.YesShares, &p.AvgCostCents, &p.RealizedPnlCents, &p.LockedCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return common.Position{}, fmt.Errorf("store: get position(%s,%s): %w", marketID, userID, err)
	}
	return p, nil
}

func (s *PG) SavePosition(ctx context.Context, tx engine.Tx, p common.Position) error {
	q := `INSERT INTO positions (market_id, user_id, yes_shares, avg_cost_cents, realized_pnl_cents, locked_cents)
	      VALUES ($1,$2,$3,$4,$5,$6)
	      ON CONFLICT (market_id, user_id) DO UPDATE SET
	        yes_shares = EXCLUDED.yes_shares, avg_cost_cents = EXCLUDED.avg_cost_cents,
	        realized_pnl_cents = EXCLUDED.realized_pnl_cents, locked_cents = EXCLUDED.locked_cents`
	_, err := txOf(tx).Exec(ctx, q, p.MarketID, p.UserID, p.YesShares, p.AvgCostCents, p.RealizedPnlCents, p.LockedCents)
	if err != nil {
		return fmt.Errorf("store: save position(%s,%s): %w", p.MarketID, p.UserID, err)
	}
	return nil
}

func (s *PG) AppendEvent(ctx context.Context, tx engine.Tx, e common.Event) error {
	payload, err := json.Marshal(json.RawMessage(e.Payload))
	if err != nil {
		return fmt.Errorf("store: marshal event payload: %w", err)
	}
	_, err = txOf(tx).Exec(ctx,
		`INSERT INTO event_log (market_id, seq, type, payload, created_at) VALUES ($1,$2,$3,$4,$5)`,
		e.MarketID, e.Seq, string(e.Type), payload, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: append event(%s): %w", e.Type, err)
	}
	return nil
}

func (s *PG) AddPlatformFee(ctx context.Context, tx engine.Tx, amountCents int64) error {
	_, err := txOf(tx).Exec(ctx,
		`UPDATE platform_fee_wallet SET balance_cents = balance_cents + $1 WHERE id = 1`, amountCents)
	if err != nil {
		return fmt.Errorf("store: add platform fee: %w", err)
	}
	return nil
}

func (s *PG) ListOpenOrPartialOrders(ctx context.Context, tx engine.Tx, marketID string) ([]common.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders
	      WHERE market_id = $1 AND status IN ($2,$3) ORDER BY seq ASC`
	rows, err := queryRower(ctx, s, tx).Query(ctx, q, marketID, common.OrderOpen.String(), common.OrderPartial.String())
	if err != nil {
		return nil, fmt.Errorf("store: list open orders(%s): %w", marketID, err)
	}
	defer rows.Close()

	var out []common.Order
	for rows.Next() {
		o, _, err := s.orderFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan order row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PG) ListPositions(ctx context.Context, tx engine.Tx, marketID string) ([]common.Position, error) {
	rows, err := txOf(tx).Query(ctx,
		`SELECT market_id, user_id, yes_shares, avg_cost_cents, realized_pnl_cents, locked_cents
		 FROM positions WHERE market_id = $1`, marketID)
	if err != nil {
		return nil, fmt.Errorf("store: list positions(%s): %w", marketID, err)
	}
	defer rows.Close()

	var out []common.Position
	for rows.Next() {
		var p common.Position
		if err := rows.Scan(&p.MarketID, &p.UserID, &p.YesShares, &p.AvgCostCents, &p.RealizedPnlCents, &p.LockedCents); err != nil {
			return nil, fmt.Errorf("store: scan position row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// querier is the subset of pgx.Tx / pgxpool.Pool this package needs for
// read paths that may run with or without an active transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryRower(_ context.Context, s *PG, tx engine.Tx) querier {
	if tx == nil {
		return s.pool
	}
	return txOf(tx)
}
