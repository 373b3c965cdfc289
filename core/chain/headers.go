// Package chain holds the header-chain data model shared by the bulk
// indexer and the Electrum RPC layer: an ordered, hash- and
// height-addressable sequence of block headers running from genesis to
// the current tip.
//
// The chain's *source of truth* — syncing new headers from the daemon,
// detecting and resolving reorgs — is an out-of-scope sync loop. This
// package only defines the data structure that loop populates and that
// both subsystems read.
package chain

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	lru "github.com/hashicorp/golang-lru/v2"
)

// HeaderSize is the length in bytes of a consensus-serialized block
// header.
const HeaderSize = 80

// HeaderEntry is one entry in the ordered header chain.
type HeaderEntry struct {
	Height uint32
	Header [HeaderSize]byte
	Hash   chainhash.Hash
}

// HeaderChain is the ordered, reorg-safe view of accepted headers that the
// bulk indexer and RPC layer consume. Implementations must give readers a
// coherent snapshot even while concurrently mutated by the sync loop.
type HeaderChain interface {
	ByHash(hash chainhash.Hash) (HeaderEntry, bool)
	ByHeight(height uint32) (HeaderEntry, bool)
	Best() (HeaderEntry, bool)
	Len() int
}

// MemHeaderChain is an in-memory HeaderChain backed by an ordered slice
// plus a hash index, guarded by an RWMutex. A bounded LRU front-ends
// ByHash lookups, since the bulk indexing parser calls it once per parsed
// block and the working set of recently-seen hashes is small relative to
// the full chain.
type MemHeaderChain struct {
	mu      sync.RWMutex
	entries []HeaderEntry
	byHash  map[chainhash.Hash]int
	cache   *lru.Cache[chainhash.Hash, int]
}

// NewMemHeaderChain constructs an empty chain. cacheSize bounds the ByHash
// lookup cache; 0 disables caching.
func NewMemHeaderChain(cacheSize int) (*MemHeaderChain, error) {
	c := &MemHeaderChain{byHash: make(map[chainhash.Hash]int)}
	if cacheSize > 0 {
		cache, err := lru.New[chainhash.Hash, int](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("header lookup cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// Apply appends new entries to the chain in order. Callers (the
// out-of-scope sync loop) are responsible for reorg safety: Apply itself
// performs no validation beyond rejecting a height that isn't exactly the
// next one.
func (c *MemHeaderChain) Apply(entries []HeaderEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := uint32(len(c.entries))
	for _, e := range entries {
		if e.Height != next {
			return fmt.Errorf("non-contiguous header height %d, expected %d", e.Height, next)
		}
		c.entries = append(c.entries, e)
		c.byHash[e.Hash] = len(c.entries) - 1
		next++
	}
	return nil
}

func (c *MemHeaderChain) ByHash(hash chainhash.Hash) (HeaderEntry, bool) {
	if c.cache != nil {
		if idx, ok := c.cache.Get(hash); ok {
			c.mu.RLock()
			defer c.mu.RUnlock()
			if idx < len(c.entries) && c.entries[idx].Hash == hash {
				return c.entries[idx], true
			}
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.byHash[hash]
	if !ok {
		return HeaderEntry{}, false
	}
	if c.cache != nil {
		c.cache.Add(hash, idx)
	}
	return c.entries[idx], true
}

func (c *MemHeaderChain) ByHeight(height uint32) (HeaderEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(height) >= len(c.entries) {
		return HeaderEntry{}, false
	}
	return c.entries[height], true
}

func (c *MemHeaderChain) Best() (HeaderEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.entries) == 0 {
		return HeaderEntry{}, false
	}
	return c.entries[len(c.entries)-1], true
}

func (c *MemHeaderChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LongestIndexedPrefix returns the final entry of the longest prefix of
// the chain (from genesis) whose every hash is present in indexed. The
// bulk indexer does not call it: indexing.Parser.LastIndexedRow performs
// the same computation through the HeaderChain interface.
func (c *MemHeaderChain) LongestIndexedPrefix(indexed map[chainhash.Hash]struct{}) (HeaderEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var last HeaderEntry
	found := false
	for _, e := range c.entries {
		if _, ok := indexed[e.Hash]; !ok {
			break
		}
		last = e
		found = true
	}
	return last, found
}

// Daemon is an out-of-scope blockchain-daemon RPC client: it supplies
// the best-tip hash, the enumerated header chain, the list of block-file
// paths, and transaction broadcast. No implementation lives in this
// repository; production wiring supplies one backed by the node's RPC
// interface.
type Daemon interface {
	Magic() uint32
	BestBlockHash() (chainhash.Hash, error)
	NewHeaders(tip chainhash.Hash) ([]HeaderEntry, error)
	ListBlockFiles() ([]string, error)
	Broadcast(rawTx []byte) (chainhash.Hash, error)
}
