package cab

import (
	"encoding/binary"
	"fmt"
	"io"
)

// dataRecordHeaderSize is the on-wire size of a CFDATA record before its
// payload: checksum (4) + cbData (2) + cbUncomp (2).
const dataRecordHeaderSize = 8

// dataRecord is the in-memory form of a CFDATA structure: a checksummed
// block of compressed bytes plus the uncompressed length a decoder should
// expect once it inflates the payload.
type dataRecord struct {
	compressed   []byte
	uncompressed uint16 // 0 marks "continues in the next volume"
}

func (r dataRecord) compressedLen() uint16 { return uint16(len(r.compressed)) }

// encode writes the CFDATA wire form to w: checksum, cbData, cbUncomp, then
// the payload itself. A record whose payload is empty is never written; it
// is elided entirely.
func (r dataRecord) encode(w io.Writer) (int64, error) {
	if len(r.compressed) == 0 {
		return 0, nil
	}
	cbData := r.compressedLen()
	sum := dataChecksum(r.compressed, cbData, r.uncompressed)
	var hdr [dataRecordHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], sum)
	binary.LittleEndian.PutUint16(hdr[4:6], cbData)
	binary.LittleEndian.PutUint16(hdr[6:8], r.uncompressed)
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, fmt.Errorf("cab: writing CFDATA header: %w", err)
	}
	if _, err := w.Write(r.compressed); err != nil {
		return 0, fmt.Errorf("cab: writing CFDATA payload: %w", err)
	}
	return int64(dataRecordHeaderSize) + int64(len(r.compressed)), nil
}

// onWireSize returns the number of bytes this record would occupy once
// encoded, without writing anything.
func (r dataRecord) onWireSize() int64 {
	if len(r.compressed) == 0 {
		return 0
	}
	return int64(dataRecordHeaderSize) + int64(len(r.compressed))
}
