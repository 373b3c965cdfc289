// Package scripthash computes Electrum script-hashes: the single-SHA256
// of a script's serialized bytes.
//
// The value is kept in its natural little-endian interior order
// everywhere in this repository and only rendered as big-endian display
// hex at the RPC wire boundary (core/rpc). It is never re-deserialized
// into a block-hash-shaped container, which would silently reverse its
// byte order on display.
package scripthash

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

// Compute hashes a script-pubkey's serialized bytes with single SHA-256.
func Compute(scriptPubKey []byte) chainhash.Hash {
	return chainhash.Hash(sha256.Sum256(scriptPubKey))
}

// FromAddress decodes addr (base58check or bech32, per net's parameters)
// and computes the script-hash of its corresponding scriptPubKey, for the
// `blockchain.address.*` method family.
func FromAddress(addrStr string, net *chaincfg.Params) (chainhash.Hash, error) {
	addr, err := btcutil.DecodeAddress(addrStr, net)
	if err != nil {
		return chainhash.Hash{}, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return Compute(script), nil
}
