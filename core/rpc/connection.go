package rpc

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// inboxCapacity bounds a connection's message queue. While a peer's inbox
// is full the notifier skips it; the peer is only unregistered once its
// own dispatcher exits.
const inboxCapacity = 10

// Connection is the per-peer state machine: one frame-reader goroutine
// feeding Message values into inbox, and the dispatcher goroutine (run)
// that owns this struct's fields exclusively — no locking needed on
// subscription state since only run ever touches it.
type Connection struct {
	id     string
	conn   net.Conn
	server *Server
	log    *logrus.Entry

	inbox chan Message
	wg    sync.WaitGroup // tracks the frame-reader goroutine; run joins it before returning

	headersSubscribed bool
	lastHeaderHeight  int

	scripthashSubs map[chainhash.Hash]*chainhash.Hash // scripthash -> last sent status hash (nil if none)
}

func newConnection(s *Server, nc net.Conn) *Connection {
	id := uuid.NewString()
	return &Connection{
		id:             id,
		conn:           nc,
		server:         s,
		log: s.log.WithFields(logrus.Fields{
			"conn_id":     id,
			"remote_addr": nc.RemoteAddr().String(),
		}),
		inbox:          make(chan Message, inboxCapacity),
		scripthashSubs: make(map[chainhash.Hash]*chainhash.Hash),
	}
}

// subscribeHeaders registers this connection for header-tip notifications.
func (c *Connection) subscribeHeaders() {
	c.headersSubscribed = true
}

// subscribeScripthash registers scripthash for subscription, recording the
// status hash just sent in the subscribe reply as the baseline so the
// next periodic update only fires once the hash actually differs.
func (c *Connection) subscribeScripthash(sh chainhash.Hash, statusHash *chainhash.Hash) {
	if _, already := c.scripthashSubs[sh]; !already && c.server.metrics != nil {
		c.server.metrics.Subscriptions.Inc()
	}
	c.scripthashSubs[sh] = statusHash
}

// subscriptionCount is the number of script-hash subscriptions this
// connection holds, for the gauge decrement on disconnect.
func (c *Connection) subscriptionCount() int {
	return len(c.scripthashSubs)
}

// run is the dispatcher goroutine: it owns the connection's write side
// and all subscription state, consuming inbox until a DoneMsg arrives or
// a request fails. On every exit path it shuts the socket down in both
// directions and joins the frame-reader goroutine before returning, so
// by the time run has exited the connection is fully torn down.
func (c *Connection) run() {
	defer c.server.removeConn(c)
	for msg := range c.inbox {
		switch m := msg.(type) {
		case RequestMsg:
			if err := c.handleLine(m.Line); err != nil {
				c.log.WithError(err).Warn("request handling failed")
				c.closeAndJoin()
				return
			}
		case PeriodicUpdateMsg:
			c.updateSubscriptions()
		case DoneMsg:
			c.closeAndJoin()
			return
		}
	}
}

// closeAndJoin closes the socket, which unblocks the frame-reader
// goroutine's pending Read, and waits for it to exit.
func (c *Connection) closeAndJoin() {
	c.conn.Close()
	c.wg.Wait()
}

func (c *Connection) handleLine(line string) error {
	var req request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return c.writeError(nil, fmt.Sprintf("invalid request: %v", err))
	}
	handler, ok := methodTable[req.Method]
	if !ok {
		params := req.Params
		if params == nil {
			params = []json.RawMessage{}
		}
		paramsJSON, _ := json.Marshal(params)
		return c.writeError(req.ID, fmt.Sprintf("unknown method %s %s", req.Method, paramsJSON))
	}
	start := time.Now()
	result, err := handler(c, req.Params)
	if c.server.metrics != nil {
		c.server.metrics.RPCLatency.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return c.writeError(req.ID, err.Error())
	}
	return c.writeSuccess(req.ID, result)
}

func (c *Connection) writeSuccess(id json.RawMessage, result interface{}) error {
	line, err := successLine(id, result)
	if err != nil {
		return err
	}
	return c.writeLine(line)
}

func (c *Connection) writeError(id json.RawMessage, msg string) error {
	line, err := errorLine(id, msg)
	if err != nil {
		return err
	}
	return c.writeLine(line)
}

func (c *Connection) writeNotification(method string, params interface{}) error {
	line, err := notificationLine(method, params)
	if err != nil {
		return err
	}
	return c.writeLine(line)
}

func (c *Connection) writeLine(line []byte) error {
	line = append(line, '\n')
	_, err := c.conn.Write(line)
	return err
}

// updateSubscriptions emits a notification when the current value
// differs from the last one sent, never when it is unchanged.
func (c *Connection) updateSubscriptions() {
	if c.headersSubscribed {
		head, err := c.server.query.GetBestHeader()
		if err == nil && int(head.Height) != c.lastHeaderHeight {
			c.lastHeaderHeight = int(head.Height)
			if err := c.writeNotification("blockchain.headers.subscribe", headerResult(head)); err != nil {
				c.log.WithError(err).Warn("failed to send header notification")
			}
		}
	}
	for sh, lastSent := range c.scripthashSubs {
		status, err := c.server.query.Status(sh)
		if err != nil {
			continue
		}
		current := status.Hash()
		if hashesDiffer(lastSent, current) {
			c.scripthashSubs[sh] = current
			if err := c.writeNotification("blockchain.scripthash.subscribe", []interface{}{sh.String(), statusHashResult(current)}); err != nil {
				c.log.WithError(err).Warn("failed to send scripthash notification")
			}
		}
	}
}

func hashesDiffer(a, b *chainhash.Hash) bool {
	if a == nil && b == nil {
		return false
	}
	if a == nil || b == nil {
		return true
	}
	return *a != *b
}
