package cab

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Folder-index sentinels a CFFILE's IFolder field may carry instead of a
// real folder number, marking that the file's bytes straddle a volume
// boundary.
const (
	folderContinuesFromPrev uint16 = 0xFFFD
	folderContinuesToNext   uint16 = 0xFFFE
	folderContinuesBoth     uint16 = 0xFFFF
)

// Attribute bits stored in CFFILE.Attribs, shared with the reader's
// unexported constants of the same value (cabfile.go).
const (
	attrReadOnly = attribReadOnly
	attrHidden   = attribHidden
	attrSystem   = attribSystem
	attrArchive  = attribArchive
	attrExec     = attribExec
	attrUTF8Name = attribNameIsUTF
)

// FileEntry describes one item queued into a folder's uncompressed stream.
// It is finalized (size, timestamp, attributes) the first time the pipeline
// reads from its source, and its FolderIndex is rewritten at each volume
// split the file's bytes cross, to record cross-volume continuation.
type FileEntry struct {
	Name             string
	UncompressedSize uint32
	FolderOffset     uint32
	FolderIndex      uint16
	DOSDate          uint16
	DOSTime          uint16
	Attrs            uint16

	encodedName []byte
}

// encode writes the CFFILE wire form: cbFile, uoffFolderStart, iFolder,
// date, time, attribs, then the NUL-terminated encoded name.
func (f *FileEntry) encode(w io.Writer) (int64, error) {
	var hdr [16]byte
	binary.LittleEndian.PutUint32(hdr[0:4], f.UncompressedSize)
	binary.LittleEndian.PutUint32(hdr[4:8], f.FolderOffset)
	binary.LittleEndian.PutUint16(hdr[8:10], f.FolderIndex)
	binary.LittleEndian.PutUint16(hdr[10:12], f.DOSDate)
	binary.LittleEndian.PutUint16(hdr[12:14], f.DOSTime)
	binary.LittleEndian.PutUint16(hdr[14:16], f.Attrs)
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, fmt.Errorf("cab: writing CFFILE header for %q: %w", f.Name, err)
	}
	n := int64(16)
	if _, err := w.Write(f.encodedName); err != nil {
		return 0, fmt.Errorf("cab: writing CFFILE name for %q: %w", f.Name, err)
	}
	n += int64(len(f.encodedName))
	if _, err := w.Write([]byte{0}); err != nil {
		return 0, fmt.Errorf("cab: writing CFFILE name terminator for %q: %w", f.Name, err)
	}
	return n + 1, nil
}

// wireSize returns the encoded size of this CFFILE entry, name included.
func (f *FileEntry) wireSize() int64 {
	return 16 + int64(len(f.encodedName)) + 1
}

// setName encodes name (applying the CP437-or-UTF-8 fallback policy) and
// records the name-is-utf8 attribute bit when needed.
func (f *FileEntry) setName(name string) error {
	encoded, isUTF8, err := encodeName(name)
	if err != nil {
		return err
	}
	f.Name = name
	f.encodedName = encoded
	if isUTF8 {
		f.Attrs |= attrUTF8Name
	}
	return nil
}
