package transport

import (
	"net"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const connQueueSize = 100

// ConnHandler owns one accepted connection for its lifetime: authenticating
// it, then reading and dispatching command frames until it closes.
type ConnHandler func(t *tomb.Tomb, conn net.Conn) error

// ConnPool runs a fixed number of goroutines, each pulling accepted
// connections off a shared queue and handing them to a ConnHandler,
// adapted from the teacher's internal/worker.go connection-worker pool.
type ConnPool struct {
	size    int
	conns   chan net.Conn
	handler ConnHandler
}

func NewConnPool(size int) ConnPool {
	return ConnPool{
		conns: make(chan net.Conn, connQueueSize),
		size:  size,
	}
}

// Submit queues an accepted connection for a free worker to pick up.
func (pool *ConnPool) Submit(conn net.Conn) {
	pool.conns <- conn
}

// Setup maintains a full pool of connection workers until the tomb dies.
func (pool *ConnPool) Setup(t *tomb.Tomb, handler ConnHandler) {
	log.Info().Int("workers", pool.size).Msg("transport: starting connection workers")
	active := 0
	for {
		select {
		case <-t.Dying():
			return
		default:
			if active < pool.size {
				t.Go(func() error {
					err := pool.worker(t, handler)
					active--
					return err
				})
				active++
			}
		}
	}
}

func (pool *ConnPool) worker(t *tomb.Tomb, handler ConnHandler) error {
	select {
	case <-t.Dying():
		return nil
	case conn := <-pool.conns:
		if err := handler(t, conn); err != nil {
			log.Error().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("transport: connection worker exiting on error")
			return err
		}
	}
	return nil
}
