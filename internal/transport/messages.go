// Package transport implements the TCP wire protocol clients use to submit
// commands and receive fills/book updates, adapted from the teacher's
// internal/net package. The teacher framed fixed-width binary messages;
// a prediction market's commands and events carry variable-length fields
// (client order ids, fill arrays, price levels) so each frame here is a
// 4-byte big-endian length prefix (the teacher's own framing idiom, see
// binary.BigEndian use in the original internal/net/messages.go) around a
// JSON body tagged with a "type" discriminator.
package transport

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"wagerbook/internal/common"
	"wagerbook/internal/engine"
)

// MaxFrameLen bounds a single frame to defend the server against a
// malformed or hostile length prefix.
const MaxFrameLen = 1 << 20 // 1 MiB

var (
	ErrInvalidMessageType = errors.New("transport: invalid message type")
	ErrFrameTooLarge      = errors.New("transport: frame exceeds max length")
)

// CommandType discriminates the client->server command envelope.
type CommandType string

const (
	CmdAuth          CommandType = "Auth"
	CmdPlaceOrder    CommandType = "PlaceOrder"
	CmdCancelOrder   CommandType = "CancelOrder"
	CmdResolveMarket CommandType = "ResolveMarket"
	CmdDeposit       CommandType = "Deposit"
)

// EventType discriminates the server->client event envelope.
type EventType string

const (
	EvtBookSnapshot   EventType = "BookSnapshot"
	EvtTrade          EventType = "Trade"
	EvtOrderUpdate    EventType = "OrderUpdate"
	EvtMarketResolved EventType = "MarketResolved"
	EvtPlaceOrderAck  EventType = "PlaceOrderAck"
	EvtCancelOrderAck EventType = "CancelOrderAck"
	EvtAuthAck        EventType = "AuthAck"
	EvtError          EventType = "Error"
)

// CommandEnvelope is the frame a client sends. Exactly one of the typed
// fields is populated, selected by Type.
type CommandEnvelope struct {
	Type          CommandType           `json:"type"`
	Auth          *AuthPayload          `json:"auth,omitempty"`
	PlaceOrder    *PlaceOrderPayload    `json:"place_order,omitempty"`
	CancelOrder   *CancelOrderPayload   `json:"cancel_order,omitempty"`
	ResolveMarket *ResolveMarketPayload `json:"resolve_market,omitempty"`
	Deposit       *DepositPayload       `json:"deposit,omitempty"`
}

// AuthPayload carries a bearer token. It must be the first frame sent on a
// connection; if the first frame is not an Auth or its token is invalid,
// the server closes the connection.
type AuthPayload struct {
	Token string `json:"token"`
}

// PlaceOrderPayload mirrors engine.PlaceOrderCmd over the wire.
type PlaceOrderPayload struct {
	MarketID      string `json:"market_id"`
	Side          string `json:"side"`  // "BUY" | "SELL"
	Type          string `json:"order_type"` // "LIMIT" | "MARKET"
	PriceCents    int64  `json:"price_cents"`
	Qty           int64  `json:"qty"`
	ClientOrderID string `json:"client_order_id"`
}

func (p PlaceOrderPayload) ToCmd(userID string) engine.PlaceOrderCmd {
	return engine.PlaceOrderCmd{
		MarketID:      p.MarketID,
		UserID:        userID,
		Side:          common.ParseSide(p.Side),
		Type:          common.ParseOrderType(p.Type),
		PriceCents:    p.PriceCents,
		Qty:           p.Qty,
		ClientOrderID: p.ClientOrderID,
	}
}

// CancelOrderPayload mirrors engine.CancelOrderCmd over the wire.
type CancelOrderPayload struct {
	MarketID string `json:"market_id"`
	OrderID  string `json:"order_id"`
}

// ResolveMarketPayload mirrors engine.ResolveMarketCmd over the wire.
// Only an admin session may submit this command (checked by the server).
type ResolveMarketPayload struct {
	MarketID   string `json:"market_id"`
	ResolvesTo string `json:"resolves_to"` // "YES" | "NO"
}

// DepositPayload credits a user's wallet. Non-core per spec.md §1, but
// required to exercise PlaceOrder in any live session.
type DepositPayload struct {
	AmountCents int64 `json:"amount_cents"`
}

// EventEnvelope is the frame the server sends. Exactly one typed field is
// populated, selected by Type.
type EventEnvelope struct {
	Type           EventType             `json:"type"`
	BookSnapshot   *BookSnapshotPayload  `json:"book_snapshot,omitempty"`
	Trade          *TradePayload         `json:"trade,omitempty"`
	OrderUpdate    *OrderUpdatePayload   `json:"order_update,omitempty"`
	MarketResolved *MarketResolvedPayload `json:"market_resolved,omitempty"`
	PlaceOrderAck  *PlaceOrderAckPayload  `json:"place_order_ack,omitempty"`
	CancelOrderAck *CancelOrderAckPayload `json:"cancel_order_ack,omitempty"`
	AuthAck        *AuthAckPayload        `json:"auth_ack,omitempty"`
	Error          *ErrorPayload          `json:"error,omitempty"`
}

// AuthAckPayload reports the outcome of an Auth command.
type AuthAckPayload struct {
	Success bool   `json:"success"`
	UserID  string `json:"user_id,omitempty"`
}

// LevelPayload is one aggregated price/qty pair.
type LevelPayload struct {
	PriceCents int64 `json:"price_cents"`
	Qty        int64 `json:"qty"`
}

// BookSnapshotPayload is a depth-limited view of one market's book.
type BookSnapshotPayload struct {
	MarketID string         `json:"market_id"`
	Bids     []LevelPayload `json:"bids"`
	Asks     []LevelPayload `json:"asks"`
}

// TradePayload mirrors common.Trade over the wire.
type TradePayload struct {
	ID            string `json:"id"`
	MarketID      string `json:"market_id"`
	MakerOrderID  string `json:"maker_order_id"`
	TakerOrderID  string `json:"taker_order_id"`
	MakerUserID   string `json:"maker_user_id"`
	TakerUserID   string `json:"taker_user_id"`
	PriceCents    int64  `json:"price_cents"`
	Qty           int64  `json:"qty"`
	TakerFeeCents int64  `json:"taker_fee_cents"`
	Seq           int64  `json:"seq"`
}

func tradePayloadOf(t common.Trade) TradePayload {
	return TradePayload{
		ID: t.ID, MarketID: t.MarketID,
		MakerOrderID: t.MakerOrderID, TakerOrderID: t.TakerOrderID,
		MakerUserID: t.MakerUserID, TakerUserID: t.TakerUserID,
		PriceCents: t.PriceCents, Qty: t.Qty,
		TakerFeeCents: t.TakerFeeCents, Seq: t.Seq,
	}
}

// OrderUpdatePayload mirrors common.Order over the wire.
type OrderUpdatePayload struct {
	ID           string `json:"id"`
	MarketID     string `json:"market_id"`
	Side         string `json:"side"`
	Status       string `json:"status"`
	PriceCents   int64  `json:"price_cents"`
	Qty          int64  `json:"qty"`
	RemainingQty int64  `json:"remaining_qty"`
	LockedCents  int64  `json:"locked_cents"`
	Seq          int64  `json:"seq"`
}

func orderUpdatePayloadOf(o common.Order) OrderUpdatePayload {
	return OrderUpdatePayload{
		ID: o.ID, MarketID: o.MarketID, Side: o.Side.String(), Status: o.Status.String(),
		PriceCents: o.PriceCents, Qty: o.Qty, RemainingQty: o.RemainingQty,
		LockedCents: o.LockedCents, Seq: o.Seq,
	}
}

// MarketResolvedPayload mirrors the resolution facts of common.Market.
type MarketResolvedPayload struct {
	MarketID   string `json:"market_id"`
	ResolvesTo string `json:"resolves_to"`
}

// PlaceOrderAckPayload is the synchronous reply to a PlaceOrder command.
type PlaceOrderAckPayload struct {
	OrderID string         `json:"order_id"`
	Status  string         `json:"status"`
	Reason  string         `json:"reason,omitempty"`
	Fills   []FillPayload  `json:"fills,omitempty"`
}

// FillPayload mirrors engine.Fill over the wire.
type FillPayload struct {
	MakerOrderID string `json:"maker_order_id"`
	PriceCents   int64  `json:"price_cents"`
	Qty          int64  `json:"qty"`
	FeeCents     int64  `json:"fee_cents"`
	Seq          int64  `json:"seq"`
}

func placeOrderAckOf(r engine.PlaceOrderResult) PlaceOrderAckPayload {
	fills := make([]FillPayload, 0, len(r.Fills))
	for _, f := range r.Fills {
		fills = append(fills, FillPayload{
			MakerOrderID: f.MakerOrderID, PriceCents: f.PriceCents,
			Qty: f.Qty, FeeCents: f.FeeCents, Seq: f.Seq,
		})
	}
	return PlaceOrderAckPayload{OrderID: r.OrderID, Status: r.Status.String(), Reason: r.Reason, Fills: fills}
}

// CancelOrderAckPayload is the synchronous reply to a CancelOrder command.
type CancelOrderAckPayload struct {
	Success         bool `json:"success"`
	AlreadyTerminal bool `json:"already_terminal"`
}

// ErrorPayload reports a rejected command back to its sender.
type ErrorPayload struct {
	Message string `json:"message"`
}

// writeFrame length-prefixes and writes one JSON payload.
func writeFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(body) > MaxFrameLen {
		return ErrFrameTooLarge
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// readFrameBytes reads one length-prefixed frame body, shared by readFrame
// and readEventFrame.
func readFrameBytes(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameLen {
		return nil, ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return body, nil
}

// readFrame reads one length-prefixed JSON command envelope.
func readFrame(r io.Reader) (CommandEnvelope, error) {
	body, err := readFrameBytes(r)
	if err != nil {
		return CommandEnvelope{}, err
	}
	var env CommandEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return CommandEnvelope{}, fmt.Errorf("unmarshal frame: %w", err)
	}
	return env, nil
}

// readEventFrame reads one length-prefixed JSON event envelope, the
// client-side counterpart of readFrame. Exported within the package for
// tests that play the client role against a live Server.
func readEventFrame(r io.Reader) (EventEnvelope, error) {
	body, err := readFrameBytes(r)
	if err != nil {
		return EventEnvelope{}, err
	}
	var env EventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return EventEnvelope{}, fmt.Errorf("unmarshal frame: %w", err)
	}
	return env, nil
}
