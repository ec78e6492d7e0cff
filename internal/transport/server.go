// Package transport (server.go) adapts the teacher's TCP accept loop and
// worker pool (internal/net/server.go) to the exchange's JSON-over-frames
// protocol and the new per-market Engine.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"wagerbook/internal/book"
	"wagerbook/internal/common"
	"wagerbook/internal/engine"
)

const (
	defaultNWorkers    = 10
	defaultConnTimeout = 30 * time.Second
)

// session tracks one authenticated connection so the server can route
// book/trade/order notifications back to the right clients.
type session struct {
	conn    net.Conn
	userID  string
	isAdmin bool
}

// Server is the exchange's TCP front door: it decodes command frames,
// dispatches them to the Engine, and fans out book/trade/order events back
// to connected sessions. It implements engine.Notifier.
type Server struct {
	host   string
	port   int
	engine *engine.Engine
	auth   *authenticator
	pool   ConnPool

	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session // keyed by remote addr
	byUser   map[string][]string // userID -> remote addrs, for routed notifications
}

func New(host string, port int, eng *engine.Engine, jwtSecret string) *Server {
	return &Server{
		host:     host,
		port:     port,
		engine:   eng,
		auth:     newAuthenticator(jwtSecret),
		pool:     NewConnPool(defaultNWorkers),
		sessions: make(map[string]*session),
		byUser:   make(map[string][]string),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("transport server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run accepts connections until ctx is canceled. It blocks.
func (s *Server) Run(ctx context.Context) error {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("start listener: %w", err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("error closing listener")
		}
	}()
	// Accept does not watch ctx; closing the listener unblocks it.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	log.Info().Str("addr", listener.Addr().String()).Msg("transport server listening")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Msg("error accepting connection")
				continue
			}
			log.Info().Str("remote", conn.RemoteAddr().String()).Msg("client connected")
			s.pool.Submit(conn)
		}
	}
}

// handleConnection owns a connection for its whole lifetime: it requires an
// Auth frame first, then loops reading and dispatching command frames until
// the connection closes or the tomb dies.
func (s *Server) handleConnection(t *tomb.Tomb, conn net.Conn) error {
	addr := conn.RemoteAddr().String()
	defer s.closeSession(addr)

	sess, err := s.authenticate(conn)
	if err != nil {
		log.Warn().Str("remote", addr).Err(err).Msg("authentication failed")
		_ = conn.Close()
		return nil
	}
	s.registerSession(addr, sess)

	for {
		select {
		case <-t.Dying():
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(defaultConnTimeout))
		env, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				log.Debug().Str("remote", addr).Err(err).Msg("connection read error")
			}
			return nil
		}

		if err := s.dispatch(sess, env, conn); err != nil {
			log.Error().Str("remote", addr).Err(err).Msg("error handling command")
			_ = writeFrame(conn, EventEnvelope{Type: EvtError, Error: &ErrorPayload{Message: err.Error()}})
		}
	}
}

func (s *Server) authenticate(conn net.Conn) (*session, error) {
	_ = conn.SetReadDeadline(time.Now().Add(defaultConnTimeout))
	env, err := readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("read auth frame: %w", err)
	}
	if env.Type != CmdAuth || env.Auth == nil {
		return nil, ErrUnauthenticated
	}
	userID, isAdmin, err := s.auth.authenticate(env.Auth.Token)
	if err != nil {
		_ = writeFrame(conn, EventEnvelope{Type: EvtAuthAck, AuthAck: &AuthAckPayload{Success: false}})
		return nil, err
	}
	if err := writeFrame(conn, EventEnvelope{Type: EvtAuthAck, AuthAck: &AuthAckPayload{Success: true, UserID: userID}}); err != nil {
		return nil, err
	}
	return &session{conn: conn, userID: userID, isAdmin: isAdmin}, nil
}

func (s *Server) dispatch(sess *session, env CommandEnvelope, conn net.Conn) error {
	ctx := context.Background()
	switch env.Type {
	case CmdPlaceOrder:
		if env.PlaceOrder == nil {
			return ErrInvalidMessageType
		}
		result, err := s.engine.PlaceOrder(ctx, env.PlaceOrder.ToCmd(sess.userID))
		if err != nil {
			return err
		}
		ack := placeOrderAckOf(result)
		return writeFrame(conn, EventEnvelope{Type: EvtPlaceOrderAck, PlaceOrderAck: &ack})

	case CmdCancelOrder:
		if env.CancelOrder == nil {
			return ErrInvalidMessageType
		}
		result, err := s.engine.CancelOrder(ctx, engine.CancelOrderCmd{
			MarketID: env.CancelOrder.MarketID,
			OrderID:  env.CancelOrder.OrderID,
			UserID:   sess.userID,
			IsAdmin:  sess.isAdmin,
		})
		if err != nil {
			return err
		}
		return writeFrame(conn, EventEnvelope{Type: EvtCancelOrderAck, CancelOrderAck: &CancelOrderAckPayload{
			Success: result.Success, AlreadyTerminal: result.AlreadyTerminal,
		}})

	case CmdResolveMarket:
		if env.ResolveMarket == nil {
			return ErrInvalidMessageType
		}
		if !sess.isAdmin {
			return engine.ErrForbidden
		}
		_, err := s.engine.ResolveMarket(ctx, engine.ResolveMarketCmd{
			MarketID:    env.ResolveMarket.MarketID,
			ResolvesTo:  common.ParseResolution(env.ResolveMarket.ResolvesTo),
			AdminUserID: sess.userID,
		})
		return err

	case CmdDeposit:
		if env.Deposit == nil {
			return ErrInvalidMessageType
		}
		return s.engine.Deposit(ctx, sess.userID, env.Deposit.AmountCents)

	default:
		return ErrInvalidMessageType
	}
}

func (s *Server) registerSession(addr string, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[addr] = sess
	s.byUser[sess.userID] = append(s.byUser[sess.userID], addr)
}

func (s *Server) closeSession(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[addr]
	if !ok {
		return
	}
	delete(s.sessions, addr)
	addrs := s.byUser[sess.userID]
	for i, a := range addrs {
		if a == addr {
			s.byUser[sess.userID] = append(addrs[:i], addrs[i+1:]...)
			break
		}
	}
	_ = sess.conn.Close()
}

// send delivers an event to one connection, dropping it and tearing down
// the session on any write error (the client is expected to reconnect).
func (s *Server) send(addr string, ev EventEnvelope) {
	s.mu.Lock()
	sess, ok := s.sessions[addr]
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = sess.conn.SetWriteDeadline(time.Now().Add(defaultConnTimeout))
	if err := writeFrame(sess.conn, ev); err != nil {
		log.Warn().Str("remote", addr).Err(err).Msg("dropping session after write error")
		s.closeSession(addr)
	}
}

func (s *Server) sendToUser(userID string, ev EventEnvelope) {
	s.mu.Lock()
	addrs := append([]string(nil), s.byUser[userID]...)
	s.mu.Unlock()
	for _, addr := range addrs {
		s.send(addr, ev)
	}
}

func (s *Server) broadcast(ev EventEnvelope) {
	s.mu.Lock()
	addrs := make([]string, 0, len(s.sessions))
	for addr := range s.sessions {
		addrs = append(addrs, addr)
	}
	s.mu.Unlock()
	for _, addr := range addrs {
		s.send(addr, ev)
	}
}

// --- engine.Notifier implementation ---

func (s *Server) BookSnapshot(marketID string, bids, asks []book.LevelSnapshot) {
	toLevels := func(ls []book.LevelSnapshot) []LevelPayload {
		out := make([]LevelPayload, 0, len(ls))
		for _, l := range ls {
			out = append(out, LevelPayload{PriceCents: l.PriceCents, Qty: l.Qty})
		}
		return out
	}
	s.broadcast(EventEnvelope{Type: EvtBookSnapshot, BookSnapshot: &BookSnapshotPayload{
		MarketID: marketID, Bids: toLevels(bids), Asks: toLevels(asks),
	}})
}

func (s *Server) Trade(t common.Trade) {
	payload := tradePayloadOf(t)
	ev := EventEnvelope{Type: EvtTrade, Trade: &payload}
	s.sendToUser(t.MakerUserID, ev)
	s.sendToUser(t.TakerUserID, ev)
}

func (s *Server) OrderUpdate(o common.Order) {
	payload := orderUpdatePayloadOf(o)
	s.sendToUser(o.UserID, EventEnvelope{Type: EvtOrderUpdate, OrderUpdate: &payload})
}

func (s *Server) MarketResolved(m common.Market) {
	s.broadcast(EventEnvelope{Type: EvtMarketResolved, MarketResolved: &MarketResolvedPayload{
		MarketID: m.ID, ResolvesTo: m.ResolvesTo.String(),
	}})
}
