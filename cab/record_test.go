package cab

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestDataRecordElidedWhenEmpty(t *testing.T) {
	r := dataRecord{compressed: nil, uncompressed: 0}
	var buf bytes.Buffer
	n, err := r.encode(&buf)
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	if n != 0 || buf.Len() != 0 {
		t.Errorf("encode() wrote %d bytes (buf len %d), want an elided (empty) record", n, buf.Len())
	}
	if r.onWireSize() != 0 {
		t.Errorf("onWireSize() = %d, want 0", r.onWireSize())
	}
}

func TestDataRecordEncode(t *testing.T) {
	payload := []byte("some compressed bytes")
	r := dataRecord{compressed: payload, uncompressed: 1000}

	var buf bytes.Buffer
	n, err := r.encode(&buf)
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	want := int64(dataRecordHeaderSize + len(payload))
	if n != want {
		t.Fatalf("encode() returned %d, want %d", n, want)
	}
	if int64(buf.Len()) != want {
		t.Fatalf("encode() wrote %d bytes, want %d", buf.Len(), want)
	}
	if r.onWireSize() != want {
		t.Errorf("onWireSize() = %d, want %d", r.onWireSize(), want)
	}

	got := buf.Bytes()
	gotChecksum := binary.LittleEndian.Uint32(got[0:4])
	gotCBData := binary.LittleEndian.Uint16(got[4:6])
	gotCBUncomp := binary.LittleEndian.Uint16(got[6:8])

	if gotCBData != uint16(len(payload)) {
		t.Errorf("cbData = %d, want %d", gotCBData, len(payload))
	}
	if gotCBUncomp != 1000 {
		t.Errorf("cbUncomp = %d, want 1000", gotCBUncomp)
	}
	wantChecksum := dataChecksum(payload, uint16(len(payload)), 1000)
	if gotChecksum != wantChecksum {
		t.Errorf("checksum = %#x, want %#x", gotChecksum, wantChecksum)
	}
	if !bytes.Equal(got[dataRecordHeaderSize:], payload) {
		t.Errorf("payload mismatch: got %v, want %v", got[dataRecordHeaderSize:], payload)
	}
}

func TestDataRecordZeroUncompressedMarksContinuation(t *testing.T) {
	// A head record written into the closing volume of a split carries
	// uncompressed_len=0 to mark "continues in next volume".
	r := dataRecord{compressed: []byte{0xAA, 0xBB}, uncompressed: 0}
	var buf bytes.Buffer
	if _, err := r.encode(&buf); err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	got := buf.Bytes()
	if binary.LittleEndian.Uint16(got[6:8]) != 0 {
		t.Errorf("cbUncomp = %d, want 0", binary.LittleEndian.Uint16(got[6:8]))
	}
	if binary.LittleEndian.Uint16(got[4:6]) != 2 {
		t.Errorf("cbData = %d, want 2", binary.LittleEndian.Uint16(got[4:6]))
	}
}
