// Package blockfile recovers consecutive consensus-serialized blocks from
// the node's raw on-disk block files, using the network magic as a resync
// marker across zero-padded inter-frame gaps.
package blockfile

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// frameHeaderSize is the magic+size prefix preceding every payload.
const frameHeaderSize = 8

// Block wraps one deserialized block. The raw frame bytes it was decoded
// from are not retained.
type Block struct {
	Msg *wire.MsgBlock
}

// Parse scans blob for frames of the form magic:u32-LE, size:u32-LE,
// payload[size], tolerating arbitrary garbage between frames.
//
// The cursor advances one u32 at a time. A non-matching u32 is not an
// error: the cursor advances by one byte instead of four and retries,
// sliding across zero-padding at byte granularity until it lands on a
// real frame header or runs out of bytes to read a u32 from (clean EOF).
// A short read while decoding size or the block payload is fatal, since
// it means a frame declared a size that the blob cannot actually back.
func Parse(blob []byte, magic uint32) ([]Block, error) {
	var blocks []Block
	pos := 0
	for {
		word, ok := readUint32LE(blob, pos)
		if !ok {
			// Short read at EOF terminates the loop normally.
			return blocks, nil
		}
		if word != magic {
			// The original reads the u32 (advancing 4 bytes) then seeks
			// back 3, netting a single-byte slide across zero padding.
			pos += 1
			continue
		}
		pos += 4

		size, ok := readUint32LE(blob, pos)
		if !ok {
			return blocks, fmt.Errorf("blockfile: truncated frame size at offset %d", pos)
		}
		pos += 4

		start := pos
		end := start + int(size)
		if end > len(blob) || end < start {
			return blocks, fmt.Errorf("blockfile: frame at %d declares size %d past end of blob (%d bytes)", start, size, len(blob))
		}

		msg := new(wire.MsgBlock)
		if err := msg.Deserialize(bytes.NewReader(blob[start:end])); err != nil {
			return blocks, fmt.Errorf("blockfile: failed to parse block at %d..%d: %w", start, end, err)
		}
		blocks = append(blocks, Block{Msg: msg})
		pos = end
	}
}

// readUint32LE reads a little-endian u32 at pos. ok is false if fewer
// than 4 bytes remain, mirroring the original's "short read at EOF
// terminates the loop" behavior.
func readUint32LE(blob []byte, pos int) (uint32, bool) {
	if pos < 0 || pos+4 > len(blob) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(blob[pos : pos+4]), true
}
