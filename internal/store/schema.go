package store

// Schema is the durable relational layout of spec.md §3/§6. It is applied
// once at startup by Open; every table uses int64 cents, never numeric or
// float, on a monetary or price column.
const Schema = `
CREATE TABLE IF NOT EXISTS markets (
	id               TEXT PRIMARY KEY,
	slug             TEXT UNIQUE NOT NULL,
	title            TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	tick_size_cents  BIGINT NOT NULL,
	status           TEXT NOT NULL,
	resolves_to      TEXT NOT NULL DEFAULT 'none',
	resolved_at      TIMESTAMPTZ,
	next_seq         BIGINT NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS wallets (
	user_id       TEXT PRIMARY KEY,
	balance_cents BIGINT NOT NULL DEFAULT 0,
	locked_cents  BIGINT NOT NULL DEFAULT 0,
	CHECK (balance_cents >= locked_cents),
	CHECK (locked_cents >= 0)
);

CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	market_id        TEXT NOT NULL REFERENCES markets(id),
	user_id          TEXT NOT NULL,
	side             TEXT NOT NULL,
	type             TEXT NOT NULL,
	price_cents      BIGINT NOT NULL,
	qty              BIGINT NOT NULL,
	remaining_qty    BIGINT NOT NULL,
	locked_cents     BIGINT NOT NULL,
	status           TEXT NOT NULL,
	seq              BIGINT NOT NULL,
	client_order_id  TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	exch_timestamp   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_orders_market_status ON orders (market_id, status);
CREATE INDEX IF NOT EXISTS idx_orders_market_created ON orders (market_id, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_market_seq ON orders (market_id, seq);
-- client_order_id is optional (spec.md §3); a table-level UNIQUE would
-- treat every '' as a duplicate of every other. Only a real, non-empty
-- client_order_id needs to be unique per user.
CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_user_client ON orders (user_id, client_order_id) WHERE client_order_id <> '';

CREATE TABLE IF NOT EXISTS trades (
	id              TEXT PRIMARY KEY,
	market_id       TEXT NOT NULL REFERENCES markets(id),
	maker_order_id  TEXT NOT NULL,
	taker_order_id  TEXT NOT NULL,
	maker_user_id   TEXT NOT NULL,
	taker_user_id   TEXT NOT NULL,
	price_cents     BIGINT NOT NULL,
	qty             BIGINT NOT NULL,
	taker_fee_cents BIGINT NOT NULL,
	seq             BIGINT NOT NULL,
	ts              TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_trades_market_seq ON trades (market_id, seq);

CREATE TABLE IF NOT EXISTS positions (
	market_id          TEXT NOT NULL REFERENCES markets(id),
	user_id            TEXT NOT NULL,
	yes_shares         BIGINT NOT NULL DEFAULT 0,
	avg_cost_cents     BIGINT NOT NULL DEFAULT 0,
	realized_pnl_cents BIGINT NOT NULL DEFAULT 0,
	locked_cents       BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (market_id, user_id)
);

CREATE TABLE IF NOT EXISTS event_log (
	id          BIGSERIAL PRIMARY KEY,
	market_id   TEXT,
	seq         BIGINT,
	type        TEXT NOT NULL,
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_event_log_market_seq ON event_log (market_id, seq);

CREATE TABLE IF NOT EXISTS platform_fee_wallet (
	id            SMALLINT PRIMARY KEY DEFAULT 1,
	balance_cents BIGINT NOT NULL DEFAULT 0,
	CHECK (id = 1)
);
INSERT INTO platform_fee_wallet (id, balance_cents) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;
`
