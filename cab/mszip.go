package cab

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/flate"
)

const (
	mszipSignature = "CK"
	// maxMSZIPPayload is the largest payload a decoder is required to
	// accept for one CFDATA block: 32768 uncompressed bytes plus at most
	// 12 bytes of DEFLATE/MS-ZIP framing overhead.
	maxMSZIPPayload = 32768 + 12
)

// mszipCompressor implements blockCompressor for MS-ZIP: a raw DEFLATE
// stream framed with the "CK" signature, built on klauspost/compress/flate
// instead of a DLL-backed zlib binding.
//
// Every call to compress emits a sync-flushed, byte-aligned chunk of the
// continuing DEFLATE stream plus a small terminator that independently
// marks the chunk as a complete, final DEFLATE stream — so a decoder can
// treat each CFDATA block as self-contained (as this package's own reader
// does) while the compressor itself keeps its LZ77 window across blocks.
type mszipCompressor struct {
	level int
	buf   bytes.Buffer
	w     *flate.Writer
	term  []byte
}

func newMSZIPCompressor(level int) (*mszipCompressor, error) {
	if level < 1 || level > 9 {
		return nil, fmt.Errorf("%w: mszip level %d out of range 1..9", ErrConfiguration, level)
	}
	c := &mszipCompressor{level: level}
	if err := c.reset(); err != nil {
		return nil, err
	}
	return c, nil
}

// reset starts a fresh DEFLATE stream (new folder) and recomputes the
// cached terminator bytes for the configured level.
func (c *mszipCompressor) reset() error {
	c.buf.Reset()
	w, err := flate.NewWriter(&c.buf, c.level)
	if err != nil {
		return fmt.Errorf("cab: initializing MS-ZIP deflater: %w", err)
	}
	c.w = w
	term, err := mszipTerminator(c.level)
	if err != nil {
		return err
	}
	c.term = term
	return nil
}

// mszipTerminator builds the bytes a fresh DEFLATE writer emits when closed
// having written nothing: a minimal, context-free final empty block. This
// stands in for the original's "clone the compressor, finish it" trick —
// an empty final block carries no backreferences, so it needs no shared
// window state with the real, continuing compressor.
func mszipTerminator(level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("cab: building MS-ZIP terminator: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("cab: closing MS-ZIP terminator: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *mszipCompressor) compress(block []byte) ([]byte, error) {
	if len(block) == 0 {
		return nil, nil
	}
	c.buf.Reset()
	if _, err := c.w.Write(block); err != nil {
		return nil, fmt.Errorf("cab: MS-ZIP compress: %w", err)
	}
	if err := c.w.Flush(); err != nil {
		return nil, fmt.Errorf("cab: MS-ZIP sync flush: %w", err)
	}
	payload := make([]byte, 0, len(mszipSignature)+c.buf.Len()+len(c.term))
	payload = append(payload, mszipSignature...)
	payload = append(payload, c.buf.Bytes()...)
	payload = append(payload, c.term...)
	if len(payload) > maxMSZIPPayload {
		return storedMSZIPBlock(block), nil
	}
	return payload, nil
}

func (c *mszipCompressor) flush() ([]byte, error) {
	return nil, c.reset()
}

// storedMSZIPBlock falls back to an uncompressed raw DEFLATE "stored" block
// when compression would have exceeded the wire ceiling (maxMSZIPPayload,
// 32780 bytes); for a full 32768-byte block the fallback payload is 32775
// bytes. It handles blocks of any length: the DEFLATE
// stored-block format is self-describing via its own LEN/NLEN fields.
func storedMSZIPBlock(block []byte) []byte {
	n := len(block)
	out := make([]byte, 0, len(mszipSignature)+5+n)
	out = append(out, mszipSignature...)
	out = append(out, 0x01) // BFINAL=1, BTYPE=00 (stored), byte-aligned
	var lens [4]byte
	binary.LittleEndian.PutUint16(lens[0:2], uint16(n))
	binary.LittleEndian.PutUint16(lens[2:4], ^uint16(n))
	out = append(out, lens[:]...)
	out = append(out, block...)
	return out
}
