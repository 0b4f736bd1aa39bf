package cab

import (
	"bytes"
	"errors"
	"testing"
)

type fakeLZXCoder struct {
	compressed  [][]byte
	resetCalls  int
	failCompress bool
}

func (f *fakeLZXCoder) Compress(block []byte) ([]byte, error) {
	if f.failCompress {
		return nil, errors.New("fake coder failure")
	}
	cp := append([]byte(nil), block...)
	f.compressed = append(f.compressed, cp)
	return cp, nil
}

func (f *fakeLZXCoder) Reset() error {
	f.resetCalls++
	return nil
}

func TestNewLZXCompressorValidation(t *testing.T) {
	coder := &fakeLZXCoder{}
	if _, err := newLZXCompressor(14, coder); err == nil {
		t.Errorf("window 14 accepted, want rejected (min 15)")
	}
	if _, err := newLZXCompressor(22, coder); err == nil {
		t.Errorf("window 22 accepted, want rejected (max 21)")
	}
	if _, err := newLZXCompressor(15, nil); err == nil {
		t.Errorf("nil coder accepted, want rejected")
	}
	if _, err := newLZXCompressor(21, coder); err != nil {
		t.Errorf("window 21 with a coder rejected: %v", err)
	}
}

func TestLZXCompressorDelegatesToCoder(t *testing.T) {
	coder := &fakeLZXCoder{}
	c, err := newLZXCompressor(16, coder)
	if err != nil {
		t.Fatalf("newLZXCompressor() error = %v", err)
	}
	block := []byte("some folder bytes")
	got, err := c.compress(block)
	if err != nil {
		t.Fatalf("compress() error = %v", err)
	}
	if !bytes.Equal(got, block) {
		t.Errorf("compress() = %v, want %v", got, block)
	}
	if len(coder.compressed) != 1 {
		t.Fatalf("coder.Compress called %d times, want 1", len(coder.compressed))
	}

	if _, err := c.flush(); err != nil {
		t.Fatalf("flush() error = %v", err)
	}
	if coder.resetCalls != 1 {
		t.Errorf("coder.Reset called %d times, want 1", coder.resetCalls)
	}
}

func TestLZXCompressorPropagatesCoderError(t *testing.T) {
	coder := &fakeLZXCoder{failCompress: true}
	c, err := newLZXCompressor(15, coder)
	if err != nil {
		t.Fatalf("newLZXCompressor() error = %v", err)
	}
	if _, err := c.compress([]byte("x")); err == nil {
		t.Errorf("compress() succeeded despite coder failure, want an error")
	}
}

func TestLZXCompressorRejectsOversizedOutput(t *testing.T) {
	coder := &fakeLZXCoder{}
	c, err := newLZXCompressor(15, coder)
	if err != nil {
		t.Fatalf("newLZXCompressor() error = %v", err)
	}
	oversized := make([]byte, maxLZXPayload+1)
	coder.compressed = nil
	// Swap in a coder variant whose Compress returns more than maxLZXPayload
	// bytes regardless of input, to exercise the ceiling check.
	c.coder = oversizeLZXCoder{out: oversized}
	if _, err := c.compress([]byte("small input")); err == nil {
		t.Errorf("compress() accepted an oversized payload, want an error")
	}
}

type oversizeLZXCoder struct{ out []byte }

func (o oversizeLZXCoder) Compress(block []byte) ([]byte, error) { return o.out, nil }
func (o oversizeLZXCoder) Reset() error                          { return nil }

func TestStoreCompressor(t *testing.T) {
	var c storeCompressor
	block := []byte("raw bytes, identity compressed")
	got, err := c.compress(block)
	if err != nil {
		t.Fatalf("compress() error = %v", err)
	}
	if !bytes.Equal(got, block) {
		t.Errorf("compress() = %v, want %v", got, block)
	}
	// compress() must copy, not alias, its input.
	block[0] = 'X'
	if got[0] == 'X' {
		t.Errorf("compress() result aliases the input slice")
	}

	if empty, err := c.compress(nil); err != nil || empty != nil {
		t.Errorf("compress(nil) = (%v, %v), want (nil, nil)", empty, err)
	}
	if tail, err := c.flush(); err != nil || tail != nil {
		t.Errorf("flush() = (%v, %v), want (nil, nil)", tail, err)
	}
}
