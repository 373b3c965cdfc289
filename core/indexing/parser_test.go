package indexing

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"scriptindex/core/blockfile"
	"scriptindex/core/chain"
	"scriptindex/core/metrics"
	"scriptindex/core/store"
)

const testMagic = 0xD9B4BEF9

func zeroHeaderHash(t *testing.T) (hash chainhash.Hash, raw [80]byte) {
	t.Helper()
	// Decode the zero bytes rather than hashing a zero-value BlockHeader:
	// a zero time.Time does not serialize to a zero timestamp field.
	var hdr wire.BlockHeader
	if err := hdr.Deserialize(bytes.NewReader(raw[:])); err != nil {
		t.Fatalf("decode zero header: %v", err)
	}
	return hdr.BlockHash(), raw
}

func frameBytes(payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], testMagic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[8:], payload)
	return buf
}

func zeroBlockPayload() []byte {
	return append(make([]byte, 80), 0x00) // 80-byte header + 0 txs
}

func newChainWithGenesis(t *testing.T) (*chain.MemHeaderChain, chainhash.Hash) {
	t.Helper()
	hash, raw := zeroHeaderHash(t)
	hc, err := chain.NewMemHeaderChain(16)
	if err != nil {
		t.Fatalf("NewMemHeaderChain: %v", err)
	}
	if err := hc.Apply([]chain.HeaderEntry{{Height: 0, Header: raw, Hash: hash}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return hc, hash
}

func TestParserIndexesAndCountsDuplicates(t *testing.T) {
	hc, _ := newChainWithGenesis(t)
	m := metrics.New()

	var calls int
	indexFn := func(b blockfile.Block, height uint32) []store.Row {
		calls++
		return []store.Row{{Key: []byte("k"), Value: []byte("v")}}
	}

	p := NewParser(testMagic, hc, indexFn, m, nil)

	blob := frameBytes(zeroBlockPayload())
	rows, err := p.IndexFile(blob)
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	if len(rows) != 2 { // the indexFn row + the block marker row
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if calls != 1 {
		t.Fatalf("indexFn called %d times, want 1", calls)
	}

	// Re-indexing the same blob must hit the duplicate path and call
	// indexFn zero more times.
	rows, err = p.IndexFile(blob)
	if err != nil {
		t.Fatalf("IndexFile (rerun): %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rerun produced %d rows, want 0", len(rows))
	}
	if calls != 1 {
		t.Fatalf("indexFn called %d times after rerun, want still 1", calls)
	}
}

func TestParserSkipsUnknownHeaders(t *testing.T) {
	hc, err := chain.NewMemHeaderChain(16)
	if err != nil {
		t.Fatalf("NewMemHeaderChain: %v", err)
	}
	m := metrics.New()
	called := false
	indexFn := func(b blockfile.Block, height uint32) []store.Row {
		called = true
		return nil
	}
	p := NewParser(testMagic, hc, indexFn, m, nil)

	blob := frameBytes(zeroBlockPayload())
	rows, err := p.IndexFile(blob)
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("got %d rows, want 0 for unindexed header", len(rows))
	}
	if called {
		t.Fatal("indexFn should not be called for a block absent from the header chain")
	}
}

func TestLastIndexedRowTracksLongestPrefix(t *testing.T) {
	hc, hash := newChainWithGenesis(t)
	m := metrics.New()
	p := NewParser(testMagic, hc, func(blockfile.Block, uint32) []store.Row { return nil }, m, nil)

	if _, err := p.LastIndexedRow(); err == nil {
		t.Fatal("expected error before any block is indexed")
	}

	if _, err := p.IndexFile(frameBytes(zeroBlockPayload())); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}

	row, err := p.LastIndexedRow()
	if err != nil {
		t.Fatalf("LastIndexedRow: %v", err)
	}
	want := store.SentinelRow(hash)
	if string(row.Value) != string(want.Value) {
		t.Fatalf("sentinel value = %x, want %x", row.Value, want.Value)
	}
}
