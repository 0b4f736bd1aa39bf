package cab

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"strconv"
	"strings"
)

// minVolumeLimit is the smallest per-volume byte budget this package will
// accept. Below it, a volume's own header can't reliably leave room for a
// single data record; the exact lower bound beyond the published minimum
// permitted limit (50,000 bytes) is unspecified, so this package enforces
// that floor directly rather than trying to derive a tighter one per
// configuration.
const minVolumeLimit = 50_000

// Method selects a folder's compression algorithm.
type Method int

const (
	Store Method = iota
	MSZIP
	LZX
)

// Compression describes how a folder's uncompressed stream is packed into
// CFDATA records.
type Compression struct {
	Method Method
	Level  int      // MSZIP: 1..9
	Window int      // LZX: 15..21
	Coder  LZXCoder // LZX: required
}

// Options configures a Builder beyond the required path pattern, volume
// limit and default compression.
type Options struct {
	// Reserved is the per-volume reserved-area size, 0..60000.
	Reserved uint16
	// Label is an optional disk-label pattern, substituted the same way as
	// the path pattern.
	Label string
	// Logger receives warnings for skipped items. Defaults to log.Default().
	Logger *log.Logger
	// Source resolves queued paths to metadata and byte streams. Defaults
	// to the local filesystem.
	Source FileSource
	// SetID, if set, fixes the archive's set id instead of randomizing it
	// for reproducible tests.
	SetID *uint16
}

// Stats reports cumulative progress across a Builder's lifetime.
type Stats struct {
	BytesRead    int64
	BytesWritten int64
	FilesAdded   int
	Volumes      int
}

type queuedFile struct {
	archiveName string
	sourcePath  string
}

// Builder is a streaming Microsoft Cabinet archive writer. A Builder holds
// at most one open folder and one open volume at a time; all operations are
// synchronous and must not be called concurrently.
type Builder struct {
	namePattern  string
	labelPattern string
	limit        uint32
	reserved     uint16

	logger *log.Logger
	source FileSource

	setID       uint16
	volumeIndex uint16

	vw     *volumeWriter
	header *volumeHeader

	currentFolder     *folderEntry
	currentCompressor blockCompressor
	currentComp       Compression

	queue         []queuedFile
	currentReader io.ReadCloser
	currentEntry  *FileEntry
	block    [32768]byte
	blockLen int
	// streamPos is the number of bytes of the current folder's uncompressed
	// stream actually passed through the compressor so far, used to locate
	// which files a split block falls across. Distinct from folderEntry.size,
	// which tracks bytes *queued* (via add_file) rather than processed.
	streamPos uint32

	opened []*FileEntry

	pendingFlush bool
	closed       bool

	stats Stats
}

// Open creates a new archive. namePattern is a file name that may contain a
// '#' glyph, substituted with the volume index; limit is the
// per-volume byte budget (must be ≥ 50,000); compression is applied to the
// first folder (subsequent folders may use AddFolder to change it).
func Open(namePattern string, limit uint32, compression Compression, opts Options) (*Builder, error) {
	if limit < minVolumeLimit {
		return nil, fmt.Errorf("%w: volume limit %d below minimum %d", ErrConfiguration, limit, minVolumeLimit)
	}
	if opts.Reserved > 60000 {
		return nil, fmt.Errorf("%w: reserved area %d out of range 0..60000", ErrConfiguration, opts.Reserved)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	source := opts.Source
	if source == nil {
		source = osFileSource{}
	}
	var setID uint16
	if opts.SetID != nil {
		setID = *opts.SetID
	} else {
		setID = uint16(rand.Intn(1 << 16))
	}

	b := &Builder{
		namePattern:  namePattern,
		labelPattern: opts.Label,
		limit:        limit,
		reserved:     opts.Reserved,
		logger:       logger,
		source:       source,
		setID:        setID,
	}
	if err := b.startVolume(); err != nil {
		return nil, err
	}
	if err := b.openFolder(compression); err != nil {
		return nil, err
	}
	return b, nil
}

// volumeName substitutes the 1-based volume index for '#' in pattern.
func volumeName(pattern string, index int) string {
	return strings.ReplaceAll(pattern, "#", strconv.Itoa(index))
}

func (b *Builder) startVolume() error {
	vw, err := newVolumeWriter()
	if err != nil {
		return err
	}
	b.vw = vw
	b.volumeIndex++
	h := &volumeHeader{
		setID:       b.setID,
		volumeIndex: b.volumeIndex - 1,
	}
	if b.reserved > 0 {
		h.flags |= hdrFlagReservePresent
		h.reservedHeader = b.reserved
	}
	// A volume's prev-cabinet link is known as soon as it's opened (it's
	// simply whether this isn't the first volume), unlike its next-cabinet
	// link, which depends on whether a split later forces a successor to
	// exist. Setting it here, rather than lazily at finalize, means every
	// volumeSize() check made while writing this volume already accounts
	// for these header bytes (pipeline.go's splitBlock does the same for
	// hdrFlagNextCabinet, the moment a split makes it certain).
	if b.volumeIndex > 1 {
		h.flags |= hdrFlagPrevCabinet
		h.prevName = volumeName(b.namePattern, int(b.volumeIndex)-1)
		if b.labelPattern != "" {
			h.prevDisk = volumeName(b.labelPattern, int(b.volumeIndex)-1)
		}
	}
	b.header = h
	b.stats.Volumes++
	return nil
}

// openFolder closes any folder currently open, then starts a new one with
// the given compression.
func (b *Builder) openFolder(c Compression) error {
	if b.closed {
		return fmt.Errorf("%w: archive is closed", ErrState)
	}
	if b.currentFolder != nil {
		if err := b.closeFolder(); err != nil {
			return err
		}
	}
	comp, typeTag, err := newBlockCompressor(c)
	if err != nil {
		return err
	}
	f := &folderEntry{
		typeCompress:       typeTag,
		relativeDataOffset: uint32(b.vw.dataSize()),
		indexInVolume:      uint16(len(b.header.folders)),
	}
	for _, of := range b.opened {
		f.files = append(f.files, of)
	}
	b.opened = nil
	b.header.folders = append(b.header.folders, f)
	b.currentFolder = f
	b.currentCompressor = comp
	b.currentComp = c
	b.blockLen = 0
	b.streamPos = 0
	return nil
}

// newBlockCompressor builds the concrete compressor for c and the 16-bit
// CFFOLDER compression-type tag it corresponds to.
func newBlockCompressor(c Compression) (blockCompressor, uint16, error) {
	switch c.Method {
	case Store:
		return storeCompressor{}, compressTypeStore, nil
	case MSZIP:
		comp, err := newMSZIPCompressor(c.Level)
		if err != nil {
			return nil, 0, err
		}
		return comp, compressTypeMSZIP, nil
	case LZX:
		comp, err := newLZXCompressor(c.Window, c.Coder)
		if err != nil {
			return nil, 0, err
		}
		return comp, lzxTypeCompress(c.Window), nil
	default:
		return nil, 0, fmt.Errorf("%w: unknown compression method %d", ErrConfiguration, c.Method)
	}
}

// AddFolder opens a new folder in the current volume, closing the prior one
// first.
func (b *Builder) AddFolder(c Compression) error {
	if err := b.runLoop(); err != nil {
		return err
	}
	return b.openFolder(c)
}

// AddFile queues a file for inclusion in the current folder. The archive
// name is sourcePath, normalized and then stripped; strip may be "" (no
// stripping), "*" (basename only), or a literal substring to remove.
func (b *Builder) AddFile(sourcePath, strip string) error {
	return b.addFile(normalizeName(sourcePath, strip), sourcePath)
}

// AddFileAs queues a file the same way AddFile does, but lets the caller
// supply the archive name and the FileSource lookup key independently.
// Useful when the two aren't derived from the same string, e.g. repacking an
// existing cabinet's members (addressed by an internal CAB name) under the
// path they were originally installed to.
func (b *Builder) AddFileAs(archiveName, sourceKey string) error {
	return b.addFile(normalizeName(archiveName, ""), sourceKey)
}

func (b *Builder) addFile(archiveName, sourceKey string) error {
	if b.closed {
		return fmt.Errorf("%w: archive is closed", ErrState)
	}
	if b.currentFolder == nil {
		return fmt.Errorf("%w: add_file before any folder is open", ErrState)
	}
	b.queue = append(b.queue, queuedFile{archiveName: archiveName, sourcePath: sourceKey})
	return b.runLoop()
}

// SetSource swaps the FileSource consulted by subsequent AddFile/AddFileAs
// calls. Useful for repacking multiple existing cabinets, each backed by a
// different opened cab.Cabinet, into one output set.
func (b *Builder) SetSource(src FileSource) {
	b.source = src
}

// Flush terminates the stream: closes the last folder, writes the final
// volume with the has-next flag cleared, and back-patches its header.
func (b *Builder) Flush() error {
	if b.closed {
		return fmt.Errorf("%w: archive already closed", ErrState)
	}
	if err := b.runLoop(); err != nil {
		return err
	}
	if b.currentFolder != nil {
		if err := b.closeFolder(); err != nil {
			return err
		}
	}
	if err := b.finalizeVolume(true); err != nil {
		return err
	}
	b.closed = true
	return nil
}

// Stats returns cumulative progress counters.
func (b *Builder) Stats() Stats {
	return b.stats
}

func (b *Builder) logf(format string, args ...interface{}) {
	b.logger.Printf(format, args...)
}
