// Package query defines the read-side contract the Electrum RPC layer
// depends on. Its business logic — balance/history/unspent computation
// from the indexed store, merkle proof construction, fee estimation, and
// mempool state — is out of scope here and supplied by its own caller.
package query

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"scriptindex/core/chain"
)

// HistoryEntry is one entry of a script-hash's confirmed transaction
// history.
type HistoryEntry struct {
	Height int
	TxHash chainhash.Hash
}

// Unspent is one unspent output touching a script-hash.
type Unspent struct {
	Height int
	TxPos  int
	TxHash chainhash.Hash
	Value  int64
}

// Status is the deterministic, height-tagged history Electrum hashes
// into a "status hash" per script-hash. StatusHash is supplied by the
// query layer alongside History; a nil StatusHash is sent as the wire
// protocol's `null` result.
type Status struct {
	History          []HistoryEntry
	Unspent          []Unspent
	ConfirmedBalance int64
	UnconfirmedBalance int64
	StatusHash       *chainhash.Hash
}

// Hash returns the StatusHash field as stored; it does not compute a hash
// from History.
func (s Status) Hash() *chainhash.Hash { return s.StatusHash }

// Query is everything the RPC connection handlers call into. It is
// implemented by the real query layer in production; StubQuery below
// exists only to exercise the RPC layer's tests.
type Query interface {
	GetBestHeader() (chain.HeaderEntry, error)
	GetHeaders(heights []int) []chain.HeaderEntry
	Status(scriptHash chainhash.Hash) (Status, error)
	EstimateFee(blocks int) float64
	GetFeeHistogram() [][2]float64
	GetTransaction(txHash chainhash.Hash, verbose bool) (interface{}, error)
	GetMerkleProof(txHash chainhash.Hash, height int) (merkle []chainhash.Hash, pos int, err error)
	Broadcast(rawTx []byte) (chainhash.Hash, error)
	UpdateMempool() error
}

// StubQuery is a minimal in-memory Query used by tests. Each Status is
// returned exactly as given to SetStatus: balances are not derived from
// the listed unspents, and there is no mempool modeling. This is a
// deliberate test-double simplification, not a specification of the real
// query layer's semantics.
type StubQuery struct {
	mu       sync.RWMutex
	best     chain.HeaderEntry
	headers  map[int]chain.HeaderEntry
	statuses map[chainhash.Hash]Status
	fee      float64
	histogram [][2]float64
}

// NewStubQuery constructs an empty StubQuery.
func NewStubQuery() *StubQuery {
	return &StubQuery{
		headers:  make(map[int]chain.HeaderEntry),
		statuses: make(map[chainhash.Hash]Status),
	}
}

// SetBestHeader lets tests drive header-subscription notifications.
func (q *StubQuery) SetBestHeader(e chain.HeaderEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.best = e
	q.headers[int(e.Height)] = e
}

// SetStatus lets tests drive script-hash subscription notifications.
func (q *StubQuery) SetStatus(scriptHash chainhash.Hash, s Status) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[scriptHash] = s
}

func (q *StubQuery) GetBestHeader() (chain.HeaderEntry, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.best, nil
}

func (q *StubQuery) GetHeaders(heights []int) []chain.HeaderEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]chain.HeaderEntry, 0, len(heights))
	for _, h := range heights {
		if e, ok := q.headers[h]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (q *StubQuery) Status(scriptHash chainhash.Hash) (Status, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.statuses[scriptHash], nil
}

func (q *StubQuery) EstimateFee(blocks int) float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.fee
}

func (q *StubQuery) GetFeeHistogram() [][2]float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.histogram
}

func (q *StubQuery) GetTransaction(txHash chainhash.Hash, verbose bool) (interface{}, error) {
	return nil, nil
}

func (q *StubQuery) GetMerkleProof(txHash chainhash.Hash, height int) ([]chainhash.Hash, int, error) {
	return nil, 0, nil
}

func (q *StubQuery) Broadcast(rawTx []byte) (chainhash.Hash, error) {
	return chainhash.DoubleHashH(rawTx), nil
}

func (q *StubQuery) UpdateMempool() error { return nil }
