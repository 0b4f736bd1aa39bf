package cab

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Compression type tags stored in CFFOLDER.TypeCompress, shared in value
// (not name) with the reader's unexported compNone/compMSZIP/compQuantum/
// compLZX constants.
const (
	compressTypeStore   = compNone
	compressTypeMSZIP   = compMSZIP
	compressTypeQuantum = compQuantum
	compressTypeLZX     = compLZX
)

// lzxTypeCompress encodes an LZX window size (15..21) into the 16-bit
// compression-type tag: (window<<8)|0x03.
func lzxTypeCompress(window int) uint16 {
	return uint16(window)<<8 | compressTypeLZX
}

// folderEntry is a folder's CFFOLDER record plus the ordered FileEntry list
// backing its uncompressed stream. relativeDataOffset and recordCount
// describe this folder's records *within the volume currently being
// written*; both are recomputed per volume when a folder spans one.
type folderEntry struct {
	// relativeDataOffset is the byte offset of this folder's first CFDATA
	// record within the volume's data region, i.e. relative to the end of
	// the header/folder/file tables. The header writer turns this into
	// the absolute coffCabStart once the total header size is known.
	relativeDataOffset uint32
	recordCount        uint16
	typeCompress       uint16
	files              []*FileEntry

	size uint32 // accumulated uncompressed bytes of the whole folder stream, carried over when the folder continues into a new volume

	// indexInVolume is this folder's zero-based position among the current
	// volume's folders, the value a non-continuation FileEntry.FolderIndex
	// carries.
	indexInVolume uint16
}

// encode writes the CFFOLDER wire form: coffCabStart, cCFData, typeCompress.
// An MS-ZIP compression level (1..9) is normalized to the flag value 1
// before encoding; store and LZX tags are preserved as-is.
func (f *folderEntry) encode(w io.Writer, headerSize uint32) (int64, error) {
	typeCompress := f.typeCompress
	if typeCompress > compressTypeStore && typeCompress < 10 {
		typeCompress = compressTypeMSZIP
	}
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], f.relativeDataOffset+headerSize)
	binary.LittleEndian.PutUint16(hdr[4:6], f.recordCount)
	binary.LittleEndian.PutUint16(hdr[6:8], typeCompress)
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, fmt.Errorf("cab: writing CFFOLDER: %w", err)
	}
	return 8, nil
}

const folderEntryWireSize = 8
