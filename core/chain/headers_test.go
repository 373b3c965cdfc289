package chain

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func entry(height uint32, tag byte) HeaderEntry {
	var h chainhash.Hash
	h[0] = tag
	var raw [HeaderSize]byte
	raw[0] = tag
	return HeaderEntry{Height: height, Header: raw, Hash: h}
}

func TestApplyRejectsNonContiguousHeight(t *testing.T) {
	hc, err := NewMemHeaderChain(0)
	if err != nil {
		t.Fatalf("NewMemHeaderChain: %v", err)
	}
	if err := hc.Apply([]HeaderEntry{entry(1, 1)}); err == nil {
		t.Fatal("expected error applying height 1 to an empty chain")
	}
}

func TestByHashAndByHeight(t *testing.T) {
	hc, err := NewMemHeaderChain(4)
	if err != nil {
		t.Fatalf("NewMemHeaderChain: %v", err)
	}
	e0, e1 := entry(0, 1), entry(1, 2)
	if err := hc.Apply([]HeaderEntry{e0, e1}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, ok := hc.ByHash(e1.Hash)
	if !ok || got.Height != 1 {
		t.Fatalf("ByHash(e1) = %+v, %v", got, ok)
	}
	got, ok = hc.ByHeight(0)
	if !ok || got.Hash != e0.Hash {
		t.Fatalf("ByHeight(0) = %+v, %v", got, ok)
	}
	if _, ok := hc.ByHeight(2); ok {
		t.Fatal("expected no entry at height 2")
	}
	best, ok := hc.Best()
	if !ok || best.Height != 1 {
		t.Fatalf("Best() = %+v, %v", best, ok)
	}
	if hc.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", hc.Len())
	}
}

func TestLongestIndexedPrefix(t *testing.T) {
	hc, err := NewMemHeaderChain(0)
	if err != nil {
		t.Fatalf("NewMemHeaderChain: %v", err)
	}
	e0, e1, e2 := entry(0, 1), entry(1, 2), entry(2, 3)
	if err := hc.Apply([]HeaderEntry{e0, e1, e2}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	indexed := map[chainhash.Hash]struct{}{e0.Hash: {}, e1.Hash: {}}
	got, ok := hc.LongestIndexedPrefix(indexed)
	if !ok || got.Height != 1 {
		t.Fatalf("LongestIndexedPrefix = %+v, %v, want height 1", got, ok)
	}

	if _, ok := hc.LongestIndexedPrefix(nil); ok {
		t.Fatal("expected no indexed prefix for an empty indexed set")
	}
}
