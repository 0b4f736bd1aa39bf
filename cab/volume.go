package cab

import (
	"fmt"
	"io"
	"os"

	"github.com/google/renameio"
)

// volumeWriter accumulates one volume's CFDATA records in a scratch file
// and, once the volume is closed, prepends the finished CFHEADER/CFFOLDER/
// CFFILE tables and atomically publishes the result. Buffering the data
// area separately lets the header be sized and offset exactly without
// knowing in advance how many records or files a volume will hold: a
// temporary file held open across the whole volume, finished off by
// prepending the header once its true size is known.
type volumeWriter struct {
	scratch       *os.File
	scratchOffset int64
}

func newVolumeWriter() (*volumeWriter, error) {
	f, err := os.CreateTemp("", "cabpack-volume-*.scratch")
	if err != nil {
		return nil, fmt.Errorf("cab: creating scratch volume: %w", err)
	}
	return &volumeWriter{scratch: f}, nil
}

// appendRecord writes r to the scratch sink and returns the offset, relative
// to the start of the volume's data area, at which it was written.
func (v *volumeWriter) appendRecord(r dataRecord) (int64, error) {
	offset := v.scratchOffset
	n, err := r.encode(v.scratch)
	if err != nil {
		return 0, err
	}
	v.scratchOffset += n
	return offset, nil
}

// dataSize returns the number of bytes written to the data area so far.
func (v *volumeWriter) dataSize() int64 {
	return v.scratchOffset
}

// finalize prepends h's header/folder/file tables to the accumulated data
// area and atomically publishes the result at path. The scratch file is
// left open for appendRecord-style reuse only up to this call; finalize
// consumes it, closing and removing it once the data area has been copied
// into the published volume (success or failure).
func (v *volumeWriter) finalize(path string, h *volumeHeader) (err error) {
	pf, err := renameio.TempFile("", path)
	if err != nil {
		return fmt.Errorf("cab: creating volume %s: %w", path, err)
	}
	defer pf.Cleanup()
	defer func() {
		if cerr := v.close(); err == nil {
			err = cerr
		}
	}()

	headerSize, err := h.write(pf)
	if err != nil {
		return fmt.Errorf("cab: writing header for volume %s: %w", path, err)
	}
	if _, err := v.scratch.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("cab: rewinding scratch volume: %w", err)
	}
	if _, err := io.Copy(pf, v.scratch); err != nil {
		return fmt.Errorf("cab: copying data area into volume %s: %w", path, err)
	}
	total := headerSize + v.scratchOffset
	if err := patchCabinetSize(pf, 0, uint32(total)); err != nil {
		return fmt.Errorf("cab: finalizing volume %s: %w", path, err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("cab: publishing volume %s: %w", path, err)
	}
	return nil
}

// close releases the scratch file: closes its descriptor and removes it from
// the temp dir. Called by finalize once the data area has been copied into
// the published volume, whether or not publishing succeeded.
func (v *volumeWriter) close() error {
	name := v.scratch.Name()
	err := v.scratch.Close()
	os.Remove(name)
	return err
}
