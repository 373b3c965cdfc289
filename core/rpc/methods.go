package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"scriptindex/core/chain"
)

const (
	// serverVersion and protocolVersion are wire-compatibility constants,
	// not branding: kept verbatim from the original electrs server.version
	// reply so real Electrum clients negotiate successfully.
	serverVersion    = "RustElectrum 0.1.0"
	protocolVersion  = "1.2"
	donationAddress  = ""
	serverBannerText = "Welcome to scriptindex, an Electrum server."
)

// methodHandler dispatches one already-decoded request's params and
// returns the value to marshal as the success result.
type methodHandler func(c *Connection, params []json.RawMessage) (interface{}, error)

// methodTable is the full Electrum RPC method surface this server
// answers. Subscriptions (headers.subscribe, scripthash.subscribe) both
// return the current value AND register the peer for future
// PeriodicUpdateMsg notifications; that registration happens in the
// handler, not here.
var methodTable = map[string]methodHandler{
	"server.version":                    handleServerVersion,
	"server.banner":                     handleServerBanner,
	"server.donation_address":           handleDonationAddress,
	"server.peers.subscribe":            handlePeersSubscribe,
	"server.ping":                       handlePing,
	"blockchain.relayfee":               handleRelayFee,
	"blockchain.estimatefee":            handleEstimateFee,
	"blockchain.headers.subscribe":      handleHeadersSubscribe,
	"blockchain.block.header":           handleBlockHeader,
	"blockchain.block.headers":          handleBlockHeaders,
	"blockchain.block.get_header":       handleBlockGetHeader,
	"blockchain.scripthash.subscribe":   handleScripthashSubscribe,
	"blockchain.scripthash.get_balance": handleScripthashGetBalance,
	"blockchain.scripthash.get_history": handleScripthashGetHistory,
	"blockchain.scripthash.listunspent": handleScripthashListUnspent,
	"blockchain.address.subscribe":      handleAddressSubscribe,
	"blockchain.address.get_balance":    handleAddressGetBalance,
	"blockchain.address.get_history":    handleAddressGetHistory,
	"blockchain.address.listunspent":    handleAddressListUnspent,
	"blockchain.transaction.broadcast":  handleTransactionBroadcast,
	"blockchain.transaction.get":        handleTransactionGet,
	"blockchain.transaction.get_merkle": handleTransactionGetMerkle,
	"mempool.get_fee_histogram":         handleFeeHistogram,
}

func handleServerVersion(c *Connection, params []json.RawMessage) (interface{}, error) {
	return [2]string{serverVersion, protocolVersion}, nil
}

func handleServerBanner(c *Connection, params []json.RawMessage) (interface{}, error) {
	return serverBannerText, nil
}

func handleDonationAddress(c *Connection, params []json.RawMessage) (interface{}, error) {
	return donationAddress, nil
}

func handlePeersSubscribe(c *Connection, params []json.RawMessage) (interface{}, error) {
	return []interface{}{}, nil
}

func handlePing(c *Connection, params []json.RawMessage) (interface{}, error) {
	return nil, nil
}

func handleRelayFee(c *Connection, params []json.RawMessage) (interface{}, error) {
	// Always 0.0: allow sending transactions with any fee, independent of
	// whatever the query layer's own fee estimation returns.
	return 0.0, nil
}

func handleEstimateFee(c *Connection, params []json.RawMessage) (interface{}, error) {
	blocks, err := intParam(params, 0, "blocks")
	if err != nil {
		return nil, err
	}
	return c.server.query.EstimateFee(blocks), nil
}

func handleFeeHistogram(c *Connection, params []json.RawMessage) (interface{}, error) {
	return c.server.query.GetFeeHistogram(), nil
}

func handleHeadersSubscribe(c *Connection, params []json.RawMessage) (interface{}, error) {
	c.subscribeHeaders()
	head, err := c.server.query.GetBestHeader()
	if err != nil {
		return nil, err
	}
	// The header sent in this reply is the baseline: the next periodic
	// update only notifies once the tip moves past it.
	c.lastHeaderHeight = int(head.Height)
	return headerResult(head), nil
}

func handleBlockHeader(c *Connection, params []json.RawMessage) (interface{}, error) {
	height, err := intParam(params, 0, "height")
	if err != nil {
		return nil, err
	}
	entries := c.server.query.GetHeaders([]int{height})
	if len(entries) == 0 {
		return nil, fmt.Errorf("no header at height %d", height)
	}
	return hex.EncodeToString(entries[0].Header[:]), nil
}

func handleBlockGetHeader(c *Connection, params []json.RawMessage) (interface{}, error) {
	height, err := intParam(params, 0, "height")
	if err != nil {
		return nil, err
	}
	entries := c.server.query.GetHeaders([]int{height})
	if len(entries) == 0 {
		return nil, fmt.Errorf("missing header #%d", height)
	}
	return jsonifyHeader(entries[0])
}

// jsonifyHeader decodes a raw 80-byte header and renders it as the
// field-by-field object `blockchain.block.get_header` returns.
func jsonifyHeader(e chain.HeaderEntry) (interface{}, error) {
	var hdr wire.BlockHeader
	if err := hdr.Deserialize(bytes.NewReader(e.Header[:])); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	return map[string]interface{}{
		"block_height":    e.Height,
		"version":         hdr.Version,
		"prev_block_hash": hdr.PrevBlock.String(),
		"merkle_root":     hdr.MerkleRoot.String(),
		"timestamp":       hdr.Timestamp.Unix(),
		"bits":            hdr.Bits,
		"nonce":           hdr.Nonce,
	}, nil
}

func handleBlockHeaders(c *Connection, params []json.RawMessage) (interface{}, error) {
	start, err := intParam(params, 0, "start_height")
	if err != nil {
		return nil, err
	}
	count, err := intParam(params, 1, "count")
	if err != nil {
		return nil, err
	}
	heights := make([]int, 0, count)
	for h := start; h < start+count; h++ {
		heights = append(heights, h)
	}
	entries := c.server.query.GetHeaders(heights)
	var hexHeaders string
	for _, e := range entries {
		hexHeaders += hex.EncodeToString(e.Header[:])
	}
	return map[string]interface{}{
		"count": len(entries),
		"hex":   hexHeaders,
		"max":   2016,
	}, nil
}

func handleScripthashSubscribe(c *Connection, params []json.RawMessage) (interface{}, error) {
	s, err := stringParam(params, 0, "scripthash")
	if err != nil {
		return nil, err
	}
	sh, err := parseScripthashHex(s)
	if err != nil {
		return nil, err
	}
	status, err := c.server.query.Status(sh)
	if err != nil {
		return nil, err
	}
	c.subscribeScripthash(sh, status.Hash())
	return statusHashResult(status.Hash()), nil
}

func handleScripthashGetBalance(c *Connection, params []json.RawMessage) (interface{}, error) {
	s, err := stringParam(params, 0, "scripthash")
	if err != nil {
		return nil, err
	}
	sh, err := parseScripthashHex(s)
	if err != nil {
		return nil, err
	}
	status, err := c.server.query.Status(sh)
	if err != nil {
		return nil, err
	}
	return map[string]int64{
		"confirmed":   status.ConfirmedBalance,
		"unconfirmed": status.UnconfirmedBalance,
	}, nil
}

func handleScripthashGetHistory(c *Connection, params []json.RawMessage) (interface{}, error) {
	s, err := stringParam(params, 0, "scripthash")
	if err != nil {
		return nil, err
	}
	sh, err := parseScripthashHex(s)
	if err != nil {
		return nil, err
	}
	status, err := c.server.query.Status(sh)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(status.History))
	for _, h := range status.History {
		out = append(out, map[string]interface{}{
			"height": h.Height,
			"tx_hash": h.TxHash.String(),
		})
	}
	return out, nil
}

func handleScripthashListUnspent(c *Connection, params []json.RawMessage) (interface{}, error) {
	s, err := stringParam(params, 0, "scripthash")
	if err != nil {
		return nil, err
	}
	sh, err := parseScripthashHex(s)
	if err != nil {
		return nil, err
	}
	status, err := c.server.query.Status(sh)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(status.Unspent))
	for _, u := range status.Unspent {
		out = append(out, map[string]interface{}{
			"height":  u.Height,
			"tx_pos":  u.TxPos,
			"tx_hash": u.TxHash.String(),
			"value":   u.Value,
		})
	}
	return out, nil
}

func handleAddressSubscribe(c *Connection, params []json.RawMessage) (interface{}, error) {
	sh, err := scripthashFromAddressParam(c, params)
	if err != nil {
		return nil, err
	}
	status, err := c.server.query.Status(sh)
	if err != nil {
		return nil, err
	}
	c.subscribeScripthash(sh, status.Hash())
	return statusHashResult(status.Hash()), nil
}

func handleAddressGetBalance(c *Connection, params []json.RawMessage) (interface{}, error) {
	sh, err := scripthashFromAddressParam(c, params)
	if err != nil {
		return nil, err
	}
	status, err := c.server.query.Status(sh)
	if err != nil {
		return nil, err
	}
	return map[string]int64{
		"confirmed":   status.ConfirmedBalance,
		"unconfirmed": status.UnconfirmedBalance,
	}, nil
}

func handleAddressGetHistory(c *Connection, params []json.RawMessage) (interface{}, error) {
	sh, err := scripthashFromAddressParam(c, params)
	if err != nil {
		return nil, err
	}
	return handleScripthashGetHistory(c, []json.RawMessage{mustMarshalHex(sh)})
}

func handleAddressListUnspent(c *Connection, params []json.RawMessage) (interface{}, error) {
	sh, err := scripthashFromAddressParam(c, params)
	if err != nil {
		return nil, err
	}
	return handleScripthashListUnspent(c, []json.RawMessage{mustMarshalHex(sh)})
}

func handleTransactionBroadcast(c *Connection, params []json.RawMessage) (interface{}, error) {
	rawHex, err := stringParam(params, 0, "raw_tx")
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction hex: %w", err)
	}
	txid, err := c.server.query.Broadcast(raw)
	if err != nil {
		return nil, err
	}
	// A broadcast tx can immediately touch this peer's own subscriptions
	// (its change output, say), so nudge the dispatcher to recheck them
	// now rather than waiting for the next tick.
	select {
	case c.inbox <- PeriodicUpdateMsg{}:
	default:
		c.log.Warn("inbox full, dropping self-triggered update after broadcast")
	}
	return txid.String(), nil
}

func handleTransactionGet(c *Connection, params []json.RawMessage) (interface{}, error) {
	txHashHex, err := stringParam(params, 0, "tx_hash")
	if err != nil {
		return nil, err
	}
	txHash, err := chainhash.NewHashFromStr(txHashHex)
	if err != nil {
		return nil, fmt.Errorf("invalid tx_hash: %w", err)
	}
	verbose, err := boolParamOr(params, 1, false)
	if err != nil {
		return nil, err
	}
	return c.server.query.GetTransaction(*txHash, verbose)
}

func handleTransactionGetMerkle(c *Connection, params []json.RawMessage) (interface{}, error) {
	txHashHex, err := stringParam(params, 0, "tx_hash")
	if err != nil {
		return nil, err
	}
	txHash, err := chainhash.NewHashFromStr(txHashHex)
	if err != nil {
		return nil, fmt.Errorf("invalid tx_hash: %w", err)
	}
	height, err := intParam(params, 1, "height")
	if err != nil {
		return nil, err
	}
	merkle, pos, err := c.server.query.GetMerkleProof(*txHash, height)
	if err != nil {
		return nil, err
	}
	hexMerkle := make([]string, len(merkle))
	for i, h := range merkle {
		hexMerkle[i] = h.String()
	}
	return map[string]interface{}{
		"merkle":       hexMerkle,
		"block_height": height,
		"pos":          pos,
	}, nil
}

// scripthashFromAddressParam is the address.* family's shared first step:
// decode the address param and compute its script-hash the corrected way
// (core/scripthash), never by re-deserializing into a block-hash shape.
func scripthashFromAddressParam(c *Connection, params []json.RawMessage) (chainhash.Hash, error) {
	addr, err := stringParam(params, 0, "address")
	if err != nil {
		return chainhash.Hash{}, err
	}
	return c.server.addressToScripthash(addr)
}

func parseScripthashHex(s string) (chainhash.Hash, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("invalid scripthash: %w", err)
	}
	return *h, nil
}

func mustMarshalHex(h chainhash.Hash) json.RawMessage {
	b, _ := json.Marshal(h.String())
	return b
}

func headerResult(e chain.HeaderEntry) interface{} {
	return map[string]interface{}{
		"height": e.Height,
		"hex":    hex.EncodeToString(e.Header[:]),
	}
}

func statusHashResult(h *chainhash.Hash) interface{} {
	if h == nil {
		return nil
	}
	return h.String()
}
