package cab

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileInfo is the metadata a FileSource reports about one item, enough to
// fill in a FileEntry's size, timestamp and DOS attribute bits.
type FileInfo struct {
	Size    int64
	ModTime time.Time

	ReadOnly bool
	Hidden   bool
	System   bool
	Archive  bool
}

// FileSource is consumed by the pipeline to resolve a queued path into
// metadata and a byte stream. On a missing or unreadable source, the
// pipeline logs a warning and skips the item.
type FileSource interface {
	Open(path string) (io.ReadCloser, FileInfo, error)
}

// osFileSource is the default FileSource, backed directly by the local
// filesystem.
type osFileSource struct{}

func (osFileSource) Open(path string) (io.ReadCloser, FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, FileInfo{}, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, FileInfo{}, err
	}
	info := FileInfo{
		Size:    st.Size(),
		ModTime: st.ModTime(),
		Archive: true,
	}
	if st.Mode().Perm()&0o200 == 0 {
		info.ReadOnly = true
	}
	// Go's os.FileInfo has no portable notion of the Windows hidden/system
	// bits this format was designed around; dotfiles are the closest
	// cross-platform stand-in for "hidden" and System is left unset.
	if strings.HasPrefix(filepath.Base(path), ".") {
		info.Hidden = true
	}
	return f, info, nil
}
