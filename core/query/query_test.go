package query

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"scriptindex/core/chain"
)

func TestStubQueryBestHeaderRoundTrip(t *testing.T) {
	q := NewStubQuery()
	want := chain.HeaderEntry{Height: 42}
	q.SetBestHeader(want)

	got, err := q.GetBestHeader()
	if err != nil {
		t.Fatalf("GetBestHeader: %v", err)
	}
	if got.Height != want.Height {
		t.Fatalf("GetBestHeader height = %d, want %d", got.Height, want.Height)
	}

	headers := q.GetHeaders([]int{42, 99})
	if len(headers) != 1 {
		t.Fatalf("GetHeaders = %d entries, want 1 (height 99 unset)", len(headers))
	}
}

func TestStubQueryStatusRoundTrip(t *testing.T) {
	q := NewStubQuery()
	var sh chainhash.Hash
	sh[0] = 5

	if _, err := q.Status(sh); err != nil {
		t.Fatalf("Status (unset): %v", err)
	}

	want := Status{ConfirmedBalance: 100}
	q.SetStatus(sh, want)
	got, err := q.Status(sh)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got.ConfirmedBalance != want.ConfirmedBalance {
		t.Fatalf("ConfirmedBalance = %d, want %d", got.ConfirmedBalance, want.ConfirmedBalance)
	}
}

func TestStatusHashNilForEmptyHistory(t *testing.T) {
	var s Status
	if s.Hash() != nil {
		t.Fatal("expected a nil status hash for the zero-value Status")
	}
}

func TestStubQueryBroadcastUsesDoubleSHA256(t *testing.T) {
	q := NewStubQuery()
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	got, err := q.Broadcast(raw)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	want := chainhash.DoubleHashH(raw)
	if got != want {
		t.Fatalf("Broadcast txid = %x, want %x", got, want)
	}
}
