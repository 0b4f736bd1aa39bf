package cab

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Header flag bits, CFHEADER.flags.
const (
	hdrFlagPrevCabinet uint16 = 1 << iota
	hdrFlagNextCabinet
	hdrFlagReservePresent
)

const (
	cabinetSignature   = "MSCF"
	fixedHeaderSize    = 36
	versionMinor  byte = 3
	versionMajor  byte = 1
)

// volumeHeader is one volume's CFHEADER plus the CFFOLDER/CFFILE tables that
// follow it. A set with more than one volume chains consecutive headers via
// the prev/next name+disk fields.
type volumeHeader struct {
	setID       uint16
	volumeIndex uint16
	flags       uint16

	reservedHeader uint16 // cbCFHeader, 0..60000
	reservedFolder uint8  // cbCFFolder
	reservedData   uint8  // cbCFData

	prevName, prevDisk string
	nextName, nextDisk string

	folders []*folderEntry

	cbCabinet uint32 // not read by write(); the volume writer patches cbCabinet into the file via patchCabinetSize
}

// fixedAreaSize returns the byte size of everything in this volume that
// precedes the first CFDATA record: the fixed header, any reserve-area
// header, the prev/next cabinet names, the CFFOLDER table and the CFFILE
// table. folderEntry.relativeDataOffset is expressed relative to this value.
func (h *volumeHeader) fixedAreaSize() uint32 {
	n := uint32(fixedHeaderSize)
	if h.flags&hdrFlagReservePresent != 0 {
		n += 4 + uint32(h.reservedHeader)
	}
	if h.flags&hdrFlagPrevCabinet != 0 {
		n += uint32(len(h.prevName)) + 1 + uint32(len(h.prevDisk)) + 1
	}
	if h.flags&hdrFlagNextCabinet != 0 {
		n += uint32(len(h.nextName)) + 1 + uint32(len(h.nextDisk)) + 1
	}
	n += uint32(len(h.folders)) * folderEntryWireSize
	for _, f := range h.folders {
		for _, file := range f.files {
			n += uint32(file.wireSize())
		}
	}
	return n
}

// cfileCount returns the total number of CFFILE entries across all folders
// in this volume.
func (h *volumeHeader) cfileCount() uint16 {
	var n int
	for _, f := range h.folders {
		n += len(f.files)
	}
	return uint16(n)
}

// write lays down the full volume header, folder table and file table to w
// in a single pass, then seeks back to patch in coffFiles — the absolute
// offset of the first CFFILE entry — once it is known. This mirrors the
// original CFHEADER.Write()'s two-pass "again" write: the first pass needs
// placeholder bytes for a value only known after the rest has been laid
// out, so it is cheaper to patch the four bytes in place than to redo the
// whole write. Returns the total number of bytes occupied by the header,
// folder and file tables (i.e. the offset where CFDATA records begin).
func (h *volumeHeader) write(w io.WriteSeeker) (int64, error) {
	start, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("cab: locating header start: %w", err)
	}

	var fixed [fixedHeaderSize]byte
	copy(fixed[0:4], cabinetSignature)
	// reserved1 (4), cbCabinet (4) placeholder, reserved2 (4) stay zero for
	// now; cbCabinet is patched in the final pass once the volume is closed.
	binary.LittleEndian.PutUint32(fixed[16:20], 0) // coffFiles placeholder
	// reserved3 (4) at [20:24] stays zero.
	fixed[24] = versionMinor
	fixed[25] = versionMajor
	binary.LittleEndian.PutUint16(fixed[26:28], uint16(len(h.folders)))
	binary.LittleEndian.PutUint16(fixed[28:30], h.cfileCount())
	binary.LittleEndian.PutUint16(fixed[30:32], h.flags)
	binary.LittleEndian.PutUint16(fixed[32:34], h.setID)
	binary.LittleEndian.PutUint16(fixed[34:36], h.volumeIndex)
	if _, err := w.Write(fixed[:]); err != nil {
		return 0, fmt.Errorf("cab: writing CFHEADER: %w", err)
	}

	if h.flags&hdrFlagReservePresent != 0 {
		var res [4]byte
		binary.LittleEndian.PutUint16(res[0:2], h.reservedHeader)
		res[2] = h.reservedFolder
		res[3] = h.reservedData
		if _, err := w.Write(res[:]); err != nil {
			return 0, fmt.Errorf("cab: writing CFHEADER reserve sizes: %w", err)
		}
		if h.reservedHeader > 0 {
			if _, err := w.Write(make([]byte, h.reservedHeader)); err != nil {
				return 0, fmt.Errorf("cab: writing CFHEADER reserved area: %w", err)
			}
		}
	}
	if h.flags&hdrFlagPrevCabinet != 0 {
		if err := writeCString(w, h.prevName); err != nil {
			return 0, err
		}
		if err := writeCString(w, h.prevDisk); err != nil {
			return 0, err
		}
	}
	if h.flags&hdrFlagNextCabinet != 0 {
		if err := writeCString(w, h.nextName); err != nil {
			return 0, err
		}
		if err := writeCString(w, h.nextDisk); err != nil {
			return 0, err
		}
	}

	headerSize := h.fixedAreaSize()
	for _, f := range h.folders {
		if _, err := f.encode(w, headerSize); err != nil {
			return 0, err
		}
	}

	coffFiles, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("cab: locating CFFILE table offset: %w", err)
	}
	if _, err := w.Seek(start+16, io.SeekStart); err != nil {
		return 0, fmt.Errorf("cab: seeking back to patch coffFiles: %w", err)
	}
	var patch [4]byte
	binary.LittleEndian.PutUint32(patch[:], uint32(coffFiles-start))
	if _, err := w.Write(patch[:]); err != nil {
		return 0, fmt.Errorf("cab: patching coffFiles: %w", err)
	}
	if _, err := w.Seek(coffFiles, io.SeekStart); err != nil {
		return 0, fmt.Errorf("cab: restoring write position: %w", err)
	}

	for _, f := range h.folders {
		for _, file := range f.files {
			if _, err := file.encode(w); err != nil {
				return 0, err
			}
		}
	}
	end, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("cab: locating header end: %w", err)
	}
	return end - start, nil
}

// patchCabinetSize seeks back to the cbCabinet field and writes the final,
// now-known total size of the volume. Called once by the volume writer
// after the data area has been fully appended and the volume's true length
// is known.
func patchCabinetSize(w io.WriteSeeker, headerStart int64, cbCabinet uint32) error {
	cur, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("cab: locating write position: %w", err)
	}
	if _, err := w.Seek(headerStart+8, io.SeekStart); err != nil {
		return fmt.Errorf("cab: seeking to cbCabinet: %w", err)
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], cbCabinet)
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("cab: patching cbCabinet: %w", err)
	}
	if _, err := w.Seek(cur, io.SeekStart); err != nil {
		return fmt.Errorf("cab: restoring write position: %w", err)
	}
	return nil
}

func writeCString(w io.Writer, s string) error {
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("cab: writing CFHEADER string: %w", err)
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return fmt.Errorf("cab: writing CFHEADER string terminator: %w", err)
	}
	return nil
}
