package blockfile

import (
	"encoding/binary"
	"testing"
)

const testMagic = 0xD9B4BEF9

// fakeBlockPayload is a minimal structurally-valid block: an 80-byte
// header (all zero fields decode fine, wire.MsgBlock does not validate
// proof-of-work at decode time) followed by a zero-transaction-count
// varint.
func fakeBlockPayload() []byte {
	return append(make([]byte, 80), 0x00)
}

func frame(magic uint32, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[8:], payload)
	return buf
}

func TestParseSingleFrame(t *testing.T) {
	blob := frame(testMagic, fakeBlockPayload())
	blocks, err := Parse(blob, testMagic)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
}

func TestParseSkipsZeroPadding(t *testing.T) {
	var blob []byte
	blob = append(blob, make([]byte, 11)...) // arbitrary padding, not 4-byte aligned
	blob = append(blob, frame(testMagic, fakeBlockPayload())...)
	blob = append(blob, make([]byte, 3)...) // trailing padding shorter than a u32
	blob = append(blob, frame(testMagic, fakeBlockPayload())...)

	blocks, err := Parse(blob, testMagic)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
}

func TestParseEmptyBlobIsCleanEOF(t *testing.T) {
	blocks, err := Parse(nil, testMagic)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(blocks) != 0 {
		t.Fatalf("got %d blocks, want 0", len(blocks))
	}
}

func TestParseTruncatedSizeWordIsFatal(t *testing.T) {
	blob := make([]byte, 8)
	binary.LittleEndian.PutUint32(blob[0:4], testMagic)
	// Only write 2 of the 4 size bytes before the blob ends.
	blob = blob[:6]
	if _, err := Parse(blob, testMagic); err == nil {
		t.Fatal("expected error for truncated size word, got nil")
	}
}

func TestParseOversizedDeclaredSizeIsFatal(t *testing.T) {
	blob := make([]byte, 8)
	binary.LittleEndian.PutUint32(blob[0:4], testMagic)
	binary.LittleEndian.PutUint32(blob[4:8], 1000) // declares far more payload than exists
	if _, err := Parse(blob, testMagic); err == nil {
		t.Fatal("expected error for oversized declared frame size, got nil")
	}
}

func TestParseWrongMagicNeverMatches(t *testing.T) {
	blob := frame(testMagic, fakeBlockPayload())
	blocks, err := Parse(blob, testMagic+1)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(blocks) != 0 {
		t.Fatalf("got %d blocks, want 0 for mismatched magic", len(blocks))
	}
}
