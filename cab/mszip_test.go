package cab

import (
	"bytes"
	"compress/flate"
	"testing"
)

func TestNewMSZIPCompressorRejectsBadLevel(t *testing.T) {
	for _, level := range []int{0, -1, 10, 99} {
		if _, err := newMSZIPCompressor(level); err == nil {
			t.Errorf("newMSZIPCompressor(%d) succeeded, want an error", level)
		}
	}
}

func TestMSZIPCompressSignature(t *testing.T) {
	c, err := newMSZIPCompressor(6)
	if err != nil {
		t.Fatalf("newMSZIPCompressor() error = %v", err)
	}
	payload, err := c.compress([]byte("hello, cabinet world"))
	if err != nil {
		t.Fatalf("compress() error = %v", err)
	}
	if len(payload) < 2 || string(payload[:2]) != mszipSignature {
		t.Fatalf("compress() payload does not start with %q: %v", mszipSignature, payload)
	}
}

func TestMSZIPEmptyBlockIsNoop(t *testing.T) {
	c, err := newMSZIPCompressor(6)
	if err != nil {
		t.Fatalf("newMSZIPCompressor() error = %v", err)
	}
	payload, err := c.compress(nil)
	if err != nil {
		t.Fatalf("compress(nil) error = %v", err)
	}
	if payload != nil {
		t.Errorf("compress(nil) = %v, want nil", payload)
	}
}

// TestMSZIPBlocksIndependentlyDecodable exercises the core MS-ZIP invariant
// this package relies on: a block compressed with history from a prior
// block must still be independently inflatable,
// using only that prior block's trailing bytes as a preset dictionary, the
// same way cabfile.go's folderDataReader decodes one CFDATA record at a
// time.
func TestMSZIPBlocksIndependentlyDecodable(t *testing.T) {
	c, err := newMSZIPCompressor(6)
	if err != nil {
		t.Fatalf("newMSZIPCompressor() error = %v", err)
	}

	block1 := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 50)
	block2 := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog! "), 50)

	p1, err := c.compress(block1)
	if err != nil {
		t.Fatalf("compress(block1) error = %v", err)
	}
	p2, err := c.compress(block2)
	if err != nil {
		t.Fatalf("compress(block2) error = %v", err)
	}

	got1, err := inflateMSZIPBlock(p1, nil, len(block1))
	if err != nil {
		t.Fatalf("inflating block1: %v", err)
	}
	if !bytes.Equal(got1, block1) {
		t.Errorf("block1 round-trip mismatch")
	}

	got2, err := inflateMSZIPBlock(p2, block1, len(block2))
	if err != nil {
		t.Fatalf("inflating block2 with block1 as dict: %v", err)
	}
	if !bytes.Equal(got2, block2) {
		t.Errorf("block2 round-trip mismatch")
	}
}

// inflateMSZIPBlock mirrors cabfile.go's folderDataReader.nextBlock MS-ZIP
// branch closely enough to validate compress()'s output independently of
// the writer side.
func inflateMSZIPBlock(payload, dict []byte, uncompLen int) ([]byte, error) {
	if string(payload[:2]) != mszipSignature {
		return nil, errFake("missing CK signature")
	}
	body := payload[2:]
	var r interface {
		Read([]byte) (int, error)
	}
	if len(dict) == 0 {
		r = flate.NewReader(bytes.NewReader(body))
	} else {
		r = flate.NewReaderDict(bytes.NewReader(body), dict)
	}
	out := make([]byte, uncompLen)
	n := 0
	for n < uncompLen {
		m, err := r.Read(out[n:])
		n += m
		if err != nil {
			break
		}
	}
	return out[:n], nil
}

type errFake string

func (e errFake) Error() string { return string(e) }

func TestMSZIPFlushResetsAndReturnsNothing(t *testing.T) {
	c, err := newMSZIPCompressor(6)
	if err != nil {
		t.Fatalf("newMSZIPCompressor() error = %v", err)
	}
	if _, err := c.compress([]byte("some data")); err != nil {
		t.Fatalf("compress() error = %v", err)
	}
	tail, err := c.flush()
	if err != nil {
		t.Fatalf("flush() error = %v", err)
	}
	if len(tail) != 0 {
		t.Errorf("flush() returned %d bytes, want 0", len(tail))
	}

	// After flush, the compressor must behave as if starting a fresh
	// folder: a newly compressed block should round-trip with no preset
	// dictionary required.
	block := []byte("brand new folder content, never seen before")
	p, err := c.compress(block)
	if err != nil {
		t.Fatalf("compress() after flush error = %v", err)
	}
	got, err := inflateMSZIPBlock(p, nil, len(block))
	if err != nil {
		t.Fatalf("inflating post-flush block: %v", err)
	}
	if !bytes.Equal(got, block) {
		t.Errorf("post-flush block round-trip mismatch")
	}
}

func TestStoredMSZIPBlockExactBytes(t *testing.T) {
	block := bytes.Repeat([]byte{0}, 32768)
	got := storedMSZIPBlock(block)

	wantPrefix := []byte{'C', 'K', 0x01, 0x00, 0x80, 0xFF, 0x7F}
	if len(got) != len(wantPrefix)+len(block) {
		t.Fatalf("storedMSZIPBlock() length = %d, want %d", len(got), len(wantPrefix)+len(block))
	}
	if !bytes.Equal(got[:len(wantPrefix)], wantPrefix) {
		t.Errorf("storedMSZIPBlock() prefix = % X, want % X", got[:len(wantPrefix)], wantPrefix)
	}
	if !bytes.Equal(got[len(wantPrefix):], block) {
		t.Errorf("storedMSZIPBlock() payload does not match input block verbatim")
	}
}

func TestMSZIPCompressStaysUnderCeilingForFullBlock(t *testing.T) {
	c, err := newMSZIPCompressor(6)
	if err != nil {
		t.Fatalf("newMSZIPCompressor() error = %v", err)
	}
	block := bytes.Repeat([]byte("compressible filler "), 1640)[:32768]
	payload, err := c.compress(block)
	if err != nil {
		t.Fatalf("compress() error = %v", err)
	}
	if len(payload) > maxMSZIPPayload {
		t.Errorf("compress() payload = %d bytes, want at most %d (stored fallback threshold)", len(payload), maxMSZIPPayload)
	}
}
