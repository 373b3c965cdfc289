// Package store persists the script-to-transaction index as sorted
// (key, value) rows in LevelDB and tracks which blocks have already been
// durably indexed.
package store

import (
	"bytes"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Row is an opaque (key, value) pair produced by the external indexing
// function. The store has no uniqueness invariant across blocks; later
// writes of an identical key overwrite earlier ones.
type Row struct {
	Key   []byte
	Value []byte
}

// blockMarkerPrefix tags the one row per indexed block that lets
// ReadIndexedBlockHashes reconstruct the indexed-blockhash set across
// restarts, without requiring the rest of the opaque row schema to carry
// that information. Real indexing functions are free to also use this
// prefix space; it is reserved here as a store-internal bookkeeping key.
var blockMarkerPrefix = []byte{'B'}

// sentinelKey stores the header hash of the last durably-indexed block, so a
// restarted bulk run can skip files whose content is already committed.
var sentinelKey = []byte{'L'}

// BlockMarkerRow returns the bookkeeping row that records hash as durably
// indexed. The indexing parser includes one of these in every block's row
// batch before handing rows to the writer.
func BlockMarkerRow(hash chainhash.Hash) Row {
	return Row{Key: append(append([]byte{}, blockMarkerPrefix...), hash[:]...), Value: []byte{1}}
}

// SentinelRow returns the distinguished row recording hash as the latest
// durably-indexed header hash.
func SentinelRow(hash chainhash.Hash) Row {
	return Row{Key: append([]byte{}, sentinelKey...), Value: append([]byte{}, hash[:]...)}
}

// WriteStore accepts monotonic batches of sorted rows. Implementations must
// be safe to call from the single bulk-pipeline writer goroutine; no
// concurrent Write calls are made by this repository's code.
type WriteStore interface {
	Write(rows []Row) error
}

// ReadStore answers the startup query for which blocks are already
// durably indexed.
type ReadStore interface {
	ReadIndexedBlockHashes() (map[chainhash.Hash]struct{}, error)
	LastIndexed() (chainhash.Hash, bool, error)
}

// Store is the full contract the bulk pipeline and RPC layer depend on.
type Store interface {
	WriteStore
	ReadStore
	Close() error
}

// LevelStore is a goleveldb-backed Store, giving ordered iteration and
// atomic batched writes over a single sorted key-value file tree.
type LevelStore struct {
	mu sync.Mutex
	db *leveldb.DB
}

// Open creates or reuses a LevelDB database at path.
func Open(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelStore{db: db}, nil
}

// Write commits rows as a single atomic batch.
func (s *LevelStore) Write(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	batch := new(leveldb.Batch)
	for _, r := range rows {
		batch.Put(r.Key, r.Value)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Write(batch, nil)
}

// ReadIndexedBlockHashes scans the block-marker key space written by
// BlockMarkerRow and returns the set of block hashes already committed.
func (s *LevelStore) ReadIndexedBlockHashes() (map[chainhash.Hash]struct{}, error) {
	out := make(map[chainhash.Hash]struct{})
	iter := s.db.NewIterator(util.BytesPrefix(blockMarkerPrefix), nil)
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()
		if len(key) != len(blockMarkerPrefix)+chainhash.HashSize {
			continue
		}
		var h chainhash.Hash
		copy(h[:], key[len(blockMarkerPrefix):])
		out[h] = struct{}{}
	}
	return out, iter.Error()
}

// LastIndexed returns the sentinel row's recorded hash, if one has ever
// been written.
func (s *LevelStore) LastIndexed() (chainhash.Hash, bool, error) {
	val, err := s.db.Get(sentinelKey, nil)
	if err == leveldb.ErrNotFound {
		return chainhash.Hash{}, false, nil
	}
	if err != nil {
		return chainhash.Hash{}, false, err
	}
	var h chainhash.Hash
	copy(h[:], val)
	return h, true, nil
}

// Close releases the underlying LevelDB handle.
func (s *LevelStore) Close() error {
	return s.db.Close()
}

// MemStore is an in-memory Store used by tests in place of LevelDB.
type MemStore struct {
	mu   sync.Mutex
	rows map[string][]byte
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string][]byte)}
}

func (m *MemStore) Write(rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.rows[string(r.Key)] = append([]byte{}, r.Value...)
	}
	return nil
}

func (m *MemStore) ReadIndexedBlockHashes() (map[chainhash.Hash]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[chainhash.Hash]struct{})
	for k := range m.rows {
		kb := []byte(k)
		if bytes.HasPrefix(kb, blockMarkerPrefix) && len(kb) == len(blockMarkerPrefix)+chainhash.HashSize {
			var h chainhash.Hash
			copy(h[:], kb[len(blockMarkerPrefix):])
			out[h] = struct{}{}
		}
	}
	return out, nil
}

func (m *MemStore) LastIndexed() (chainhash.Hash, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.rows[string(sentinelKey)]
	if !ok {
		return chainhash.Hash{}, false, nil
	}
	var h chainhash.Hash
	copy(h[:], val)
	return h, true, nil
}

func (m *MemStore) Close() error { return nil }
