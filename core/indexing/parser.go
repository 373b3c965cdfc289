// Package indexing implements the per-file indexing parser and the
// three-stage bulk pipeline that drives it.
package indexing

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.uber.org/zap"

	"scriptindex/core/blockfile"
	"scriptindex/core/chain"
	"scriptindex/core/metrics"
	"scriptindex/core/store"
)

// BlockIndexer is an out-of-scope block-indexing function: it turns a
// parsed block plus its chain height into the opaque index rows for that
// block. Production wiring supplies a real implementation (script-pubkey
// extraction, txid/output indexing, etc.); this package only calls it.
type BlockIndexer func(block blockfile.Block, height uint32) []store.Row

// Parser orchestrates per-file parse, per-block dedup against the shared
// indexed-blockhash set, and row sorting, timing every step.
type Parser struct {
	magic   uint32
	headers chain.HeaderChain
	indexFn BlockIndexer
	metrics *metrics.Registry
	log     *zap.SugaredLogger

	mu      sync.Mutex
	indexed map[chainhash.Hash]struct{}
}

// NewParser constructs a Parser seeded with the set of block hashes
// already durably indexed (loaded from the store at startup).
func NewParser(magic uint32, headers chain.HeaderChain, indexFn BlockIndexer, m *metrics.Registry, alreadyIndexed map[chainhash.Hash]struct{}) *Parser {
	indexed := make(map[chainhash.Hash]struct{}, len(alreadyIndexed))
	for h := range alreadyIndexed {
		indexed[h] = struct{}{}
	}
	return &Parser{
		magic:   magic,
		headers: headers,
		indexFn: indexFn,
		metrics: m,
		log:     zap.L().Sugar(),
		indexed: indexed,
	}
}

// ReadBlockFile reads path into memory, observing the "read" parse-stage
// timer and the bytes-read histogram.
func (p *Parser) ReadBlockFile(path string) ([]byte, error) {
	start := time.Now()
	blob, err := os.ReadFile(path)
	p.metrics.ParseDuration.WithLabelValues("read").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	p.metrics.BytesRead.Observe(float64(len(blob)))
	return blob, nil
}

// IndexFile runs the parse -> index -> sort pipeline over one
// block-file's bytes and returns the rows to persist for it.
func (p *Parser) IndexFile(blob []byte) ([]store.Row, error) {
	start := time.Now()
	blocks, err := blockfile.Parse(blob, p.magic)
	p.metrics.ParseDuration.WithLabelValues("parse").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	var rows []store.Row
	start = time.Now()
	for _, blk := range blocks {
		hash := blk.Msg.Header.BlockHash()
		entry, ok := p.headers.ByHash(hash)
		if !ok {
			// Orphan or not-yet-reached block: indexed later by the
			// out-of-scope incremental pass, or never if it's an orphan.
			p.metrics.ParseBlocks.WithLabelValues("skipped").Inc()
			continue
		}

		p.mu.Lock()
		_, already := p.indexed[hash]
		if !already {
			p.indexed[hash] = struct{}{}
		}
		p.mu.Unlock()

		if already {
			p.metrics.ParseBlocks.WithLabelValues("duplicate").Inc()
			continue
		}

		blockRows := p.indexFn(blk, entry.Height)
		rows = append(rows, blockRows...)
		rows = append(rows, store.BlockMarkerRow(hash))
		p.metrics.ParseBlocks.WithLabelValues("indexed").Inc()
	}
	p.metrics.ParseDuration.WithLabelValues("index").Observe(time.Since(start).Seconds())

	start = time.Now()
	sort.Slice(rows, func(i, j int) bool {
		return string(rows[i].Key) < string(rows[j].Key)
	})
	p.metrics.ParseDuration.WithLabelValues("sort").Observe(time.Since(start).Seconds())

	p.log.Debugw("indexed block file", "blocks", len(blocks), "rows", len(rows))
	return rows, nil
}

// LastIndexedRow computes the resumable durability checkpoint: under the
// indexed-set mutex, the longest prefix of the header chain whose every
// hash is in the indexed set, and returns the sentinel row for that
// prefix's final header.
func (p *Parser) LastIndexedRow() (store.Row, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var last chain.HeaderEntry
	found := false
	for height := uint32(0); ; height++ {
		entry, ok := p.headers.ByHeight(height)
		if !ok {
			break
		}
		if _, ok := p.indexed[entry.Hash]; !ok {
			break
		}
		last = entry
		found = true
	}
	if !found {
		return store.Row{}, fmt.Errorf("last indexed row: no indexed header found")
	}
	return store.SentinelRow(last.Hash), nil
}
