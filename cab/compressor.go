package cab

// blockCompressor converts one folder's uncompressed stream, 32 KiB at a
// time, into the on-wire payload CFDATA stores, preserving whatever
// compression history it needs across calls within a folder.
type blockCompressor interface {
	// compress returns the on-wire payload for block (at most 32768 bytes).
	// Returning an empty slice for an empty input is legal.
	compress(block []byte) ([]byte, error)
	// flush marks the folder's stream terminated and resets internal state
	// for the next folder. Any bytes it returns must be appended to the
	// last record written for the folder.
	flush() ([]byte, error)
}

// storeCompressor is the identity BlockCompressor: CFDATA payloads are the
// uncompressed bytes themselves.
type storeCompressor struct{}

func (storeCompressor) compress(block []byte) ([]byte, error) {
	if len(block) == 0 {
		return nil, nil
	}
	out := make([]byte, len(block))
	copy(out, block)
	return out, nil
}

func (storeCompressor) flush() ([]byte, error) { return nil, nil }
