package cab

import "fmt"

// LZXCoder is the pluggable LZX block compressor a caller must supply to
// use LZX folders. The LZX codec itself sits outside this module as an
// external collaborator, delegated to by the caller the way a dedicated
// compression library or shared object would be.
//
// Implementations receive up to 32768 bytes per call and must return at
// most 32768+6144 bytes. Reset is called once per folder, mirroring
// blockCompressor.flush.
type LZXCoder interface {
	Compress(block []byte) ([]byte, error)
	Reset() error
}

// maxLZXPayload bounds a single LZX block's on-wire size.
const maxLZXPayload = 32768 + 6144

type lzxCompressor struct {
	window int
	coder  LZXCoder
}

func newLZXCompressor(window int, coder LZXCoder) (*lzxCompressor, error) {
	if window < 15 || window > 21 {
		return nil, fmt.Errorf("%w: lzx window %d out of range 15..21", ErrConfiguration, window)
	}
	if coder == nil {
		return nil, fmt.Errorf("%w: lzx compression requires an LZXCoder implementation", ErrConfiguration)
	}
	return &lzxCompressor{window: window, coder: coder}, nil
}

func (c *lzxCompressor) compress(block []byte) ([]byte, error) {
	if len(block) == 0 {
		return nil, nil
	}
	out, err := c.coder.Compress(block)
	if err != nil {
		return nil, fmt.Errorf("cab: LZX compress: %w", err)
	}
	if len(out) > maxLZXPayload {
		return nil, fmt.Errorf("cab: LZX block exceeded %d bytes", maxLZXPayload)
	}
	return out, nil
}

func (c *lzxCompressor) flush() ([]byte, error) {
	return nil, c.coder.Reset()
}
