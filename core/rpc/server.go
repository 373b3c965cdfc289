// Package rpc implements the Electrum JSON-RPC server: one acceptor
// goroutine, one notifier goroutine ticking subscription updates, and
// two goroutines per connected peer (frame reader + dispatcher).
package rpc

import (
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/sirupsen/logrus"

	"scriptindex/core/metrics"
	"scriptindex/core/query"
	"scriptindex/core/scripthash"
)

// Server owns the listening socket, the shared query layer, and the set
// of live peer connections.
type Server struct {
	listener  net.Listener
	query     query.Query
	netParams *chaincfg.Params
	metrics   *metrics.Registry
	log       *logrus.Logger

	tick time.Duration

	// notifyc is the notifier's control channel: a Periodic signal,
	// buffered to 1 and collapsed by try-send, so any number of callers
	// (the ticker below, or an external daemon-sync collaborator calling
	// Notify directly) can wake the notifier without blocking or backing
	// up redundant ticks.
	notifyc chan struct{}

	wg sync.WaitGroup // every long-lived goroutine this server owns

	mu    sync.Mutex
	conns map[*Connection]struct{}
	done  chan struct{}
}

// NewServer constructs a Server bound to addr. Call Serve to run it.
func NewServer(addr string, q query.Query, netParams *chaincfg.Params, m *metrics.Registry, log *logrus.Logger, tick time.Duration) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener:  ln,
		query:     q,
		netParams: netParams,
		metrics:   m,
		log:       log,
		tick:      tick,
		notifyc:   make(chan struct{}, 1),
		conns:     make(map[*Connection]struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Addr reports the bound listening address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve runs the acceptor, notifier, and ticker loops until Exit is
// called or the listener fails. It blocks the calling goroutine.
func (s *Server) Serve() error {
	s.wg.Add(2)
	go func() { defer s.wg.Done(); s.notifyLoop() }()
	go func() { defer s.wg.Done(); s.tickLoop() }()
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				return err
			}
		}
		s.spawn(nc)
	}
}

// Notify wakes the notifier to recheck every live peer's subscriptions
// now, rather than waiting for the next tick. An out-of-scope
// daemon-sync collaborator calls this whenever new chain state has
// arrived; the ticker below is just one caller among possibly several.
func (s *Server) Notify() {
	select {
	case s.notifyc <- struct{}{}:
	default:
		// a Periodic signal is already pending; this one is redundant.
	}
}

// Exit closes the listener and signals every live connection's
// dispatcher to stop, then blocks until every goroutine the server
// owns — the notifier, the ticker, and both goroutines of every peer
// connection — has actually exited.
func (s *Server) Exit() {
	close(s.done)
	s.listener.Close()
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		// Closing the socket directly guarantees the frame reader
		// unblocks even if the dispatcher's inbox is momentarily full;
		// the try-sent DoneMsg below is the fast path when it isn't.
		c.conn.Close()
		select {
		case c.inbox <- DoneMsg{}:
		default:
		}
	}
	s.wg.Wait()
}

func (s *Server) spawn(nc net.Conn) {
	c := newConnection(s, nc)
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	c.wg.Add(1)
	s.wg.Add(2)
	go func() { defer s.wg.Done(); c.run() }()
	go func() {
		defer s.wg.Done()
		defer c.wg.Done()
		if err := handleRequests(nc, c.inbox); err != nil {
			c.log.WithError(err).Info("connection closed")
		}
	}()
}

func (s *Server) removeConn(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	if s.metrics != nil {
		if n := c.subscriptionCount(); n > 0 {
			s.metrics.Subscriptions.Sub(float64(n))
		}
	}
}

// notifyLoop consumes Periodic signals off notifyc, fanning a
// PeriodicUpdateMsg out to every live peer. A peer whose inbox is full
// gets dropped for this round (try_send, never block the notifier on
// one slow peer) and is reaped lazily: it stays registered until its
// own dispatcher or frame reader exits and calls removeConn.
func (s *Server) notifyLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.notifyc:
			s.mu.Lock()
			peers := make([]*Connection, 0, len(s.conns))
			for c := range s.conns {
				peers = append(peers, c)
			}
			s.mu.Unlock()
			for _, c := range peers {
				select {
				case c.inbox <- PeriodicUpdateMsg{}:
				default:
					// full inbox: slow or dead peer, skip this round.
				}
			}
		}
	}
}

// tickLoop is the default Periodic source: it calls Notify every
// s.tick. It has no special standing over any other caller of Notify.
func (s *Server) tickLoop() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Notify()
		}
	}
}

// PeerCount reports the number of currently connected Electrum clients,
// for the admin health surface.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// addressToScripthash resolves an address string against the server's
// network parameters.
func (s *Server) addressToScripthash(addr string) (chainhash.Hash, error) {
	return scripthash.FromAddress(addr, s.netParams)
}
