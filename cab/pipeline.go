package cab

import (
	"errors"
	"fmt"
	"io"
)

// runLoop drives the read loop: it dequeues and reads queued files into
// the 32 KiB block buffer, emitting full blocks as records, until the
// queue and any open reader are both drained. The trailing partial block,
// if any, is left in b.block for closeFolder to emit once the folder's
// last byte is known.
func (b *Builder) runLoop() error {
	for {
		if b.currentReader == nil {
			if len(b.queue) == 0 {
				return nil
			}
			qf := b.queue[0]
			b.queue = b.queue[1:]
			if err := b.beginFile(qf); err != nil {
				if errors.Is(err, ErrItem) {
					b.logf("skipping %q: %v", qf.archiveName, err)
					continue
				}
				return err
			}
		}

		n, rerr := b.currentReader.Read(b.block[b.blockLen:])
		b.blockLen += n
		b.stats.BytesRead += int64(n)

		if rerr != nil && rerr != io.EOF {
			b.currentReader.Close()
			b.currentReader = nil
			return fmt.Errorf("cab: reading %q: %w", b.currentEntry.Name, rerr)
		}
		if rerr == io.EOF || n == 0 {
			b.currentReader.Close()
			b.currentReader = nil
			b.currentEntry = nil
			if b.pendingFlush {
				return nil
			}
			continue
		}
		if b.blockLen == len(b.block) {
			if err := b.emitBlock(); err != nil {
				return err
			}
		}
	}
}

// beginFile opens the next queued item, finalizes its FileEntry metadata
// from the source, and appends it to the current folder's file list.
func (b *Builder) beginFile(qf queuedFile) error {
	rc, info, err := b.source.Open(qf.sourcePath)
	if err != nil {
		return fmt.Errorf("%w: opening %q: %v", ErrItem, qf.sourcePath, err)
	}

	entry := &FileEntry{}
	if err := entry.setName(qf.archiveName); err != nil {
		rc.Close()
		return fmt.Errorf("%w: %v", ErrItem, err)
	}
	entry.UncompressedSize = uint32(info.Size)
	entry.DOSDate, entry.DOSTime = timeToMSDos(info.ModTime)
	entry.Attrs |= attrsFromFileInfo(info)

	entry.FolderIndex = b.currentFolder.indexInVolume
	entry.FolderOffset = b.currentFolder.size
	b.currentFolder.size += entry.UncompressedSize
	b.currentFolder.files = append(b.currentFolder.files, entry)
	b.stats.FilesAdded++

	b.currentReader = rc
	b.currentEntry = entry
	return nil
}

func attrsFromFileInfo(info FileInfo) uint16 {
	var a uint16
	if info.ReadOnly {
		a |= attrReadOnly
	}
	if info.Hidden {
		a |= attrHidden
	}
	if info.System {
		a |= attrSystem
	}
	if info.Archive {
		a |= attrArchive
	}
	return a
}

// emitBlock compresses the accumulated block and writes it as a CFDATA
// record, splitting it across a volume boundary if the record would not
// fit in the current volume.
func (b *Builder) emitBlock() error {
	ulen := b.blockLen
	block := b.block[:ulen]

	cpayload, err := b.currentCompressor.compress(block)
	if err != nil {
		return err
	}
	// compressor.flush()'s bytes belong on the folder's *last* record.
	// Every compressor in this package emits a self-contained,
	// independently decodable unit per compress() call and returns nothing
	// from flush(), so nothing is appended here; closeFolder calls flush()
	// and treats any bytes it returns as an error.

	b.blockLen = 0
	clen := len(cpayload)

	if b.volumeSize()+8+uint32(clen) < b.limit {
		_, err := b.vw.appendRecord(dataRecord{compressed: cpayload, uncompressed: uint16(ulen)})
		if err != nil {
			return err
		}
		b.currentFolder.recordCount++
		b.stats.BytesWritten += int64(8 + clen)
		b.streamPos += uint32(ulen)
		return nil
	}
	return b.splitBlock(cpayload, uint16(ulen))
}

// volumeSize reports the current volume's on-disk size so far: the header
// region (which grows as folders/files are added) plus the data area
// accumulated in the scratch sink.
func (b *Builder) volumeSize() uint32 {
	return b.header.fixedAreaSize() + uint32(b.vw.dataSize())
}

// splitBlock writes the head of the
// compressed block (uncompressed_len=0, marking "continuation follows")
// into the closing volume, marks every file whose bytes lie in this block
// as crossing the split, finalizes the current volume, opens a new one,
// and writes the tail as the new volume's first folder's first record.
func (b *Builder) splitBlock(cpayload []byte, ulen uint16) error {
	// A split means this volume will definitely carry a next-cabinet link;
	// fold those header bytes into the budget now, before computing
	// headBytes, rather than letting finalizeVolume add them afterward
	// where they'd silently push the volume past b.limit.
	if b.header.flags&hdrFlagNextCabinet == 0 {
		b.header.flags |= hdrFlagNextCabinet
		b.header.nextName = volumeName(b.namePattern, int(b.volumeIndex)+1)
		if b.labelPattern != "" {
			b.header.nextDisk = volumeName(b.labelPattern, int(b.volumeIndex)+1)
		}
	}

	volSize := b.volumeSize()
	if volSize+8 >= b.limit {
		return fmt.Errorf("%w: volume limit %d too small to hold even a partial record", ErrConfiguration, b.limit)
	}
	headBytes := int(b.limit - volSize - 8)
	if headBytes > len(cpayload) {
		headBytes = len(cpayload)
	}

	if _, err := b.vw.appendRecord(dataRecord{compressed: cpayload[:headBytes], uncompressed: 0}); err != nil {
		return err
	}
	b.currentFolder.recordCount++
	b.stats.BytesWritten += int64(8 + headBytes)

	blockStart := b.streamPos
	blockEnd := b.streamPos + uint32(ulen)
	b.streamPos = blockEnd
	for _, f := range b.currentFolder.files {
		fStart := f.FolderOffset
		fEnd := f.FolderOffset + f.UncompressedSize
		if fEnd <= blockStart || fStart >= blockEnd {
			continue
		}
		switch f.FolderIndex {
		case folderContinuesFromPrev, folderContinuesBoth:
			f.FolderIndex = folderContinuesBoth
		default:
			f.FolderIndex = folderContinuesToNext
		}
		b.opened = append(b.opened, f)
	}

	if err := b.finalizeVolume(false); err != nil {
		return err
	}

	for _, f := range b.opened {
		f.FolderIndex = folderContinuesFromPrev
	}

	if err := b.startVolume(); err != nil {
		return err
	}
	// The folder itself continues into the new volume: its compressor
	// keeps the history built up so far, so this is a fresh CFFOLDER
	// record wrapping the *same* blockCompressor, not a new one.
	nf := &folderEntry{
		typeCompress:       b.currentFolder.typeCompress,
		relativeDataOffset: uint32(b.vw.dataSize()),
		indexInVolume:      uint16(len(b.header.folders)),
		size:               b.currentFolder.size,
		files:              append([]*FileEntry(nil), b.opened...),
	}
	b.opened = nil
	b.header.folders = append(b.header.folders, nf)
	b.currentFolder = nf

	tail := cpayload[headBytes:]
	if _, err := b.vw.appendRecord(dataRecord{compressed: tail, uncompressed: ulen}); err != nil {
		return err
	}
	b.currentFolder.recordCount++
	b.stats.BytesWritten += int64(8 + len(tail))
	b.pendingFlush = true
	return nil
}

// closeFolder emits the folder's trailing partial block (if any), resets
// the block-compressor state, and clears pendingFlush so the next
// AddFolder/AddFile starts clean.
func (b *Builder) closeFolder() error {
	if b.blockLen > 0 {
		if err := b.emitBlock(); err != nil {
			return err
		}
	}
	tail, err := b.currentCompressor.flush()
	if err != nil {
		return err
	}
	if len(tail) != 0 {
		return fmt.Errorf("%w: block compressor returned unexpected flush bytes at folder close", ErrState)
	}
	b.currentFolder = nil
	b.currentCompressor = nil
	b.pendingFlush = false
	return nil
}

// finalizeVolume writes the current volume's header/folder/file tables
// followed by its accumulated data area, and publishes the result. When
// isLast is false, the header carries has-next plus the next volume's
// name/label so a split folder's continuation is discoverable.
func (b *Builder) finalizeVolume(isLast bool) error {
	h := b.header
	// hdrFlagPrevCabinet is set by startVolume; hdrFlagNextCabinet is set
	// by splitBlock before it budgets the split against volumeSize(). Both
	// are idempotent here as a defensive fallback, not the primary path.
	if b.volumeIndex > 1 {
		h.flags |= hdrFlagPrevCabinet
		if h.prevName == "" {
			h.prevName = volumeName(b.namePattern, int(b.volumeIndex)-1)
			if b.labelPattern != "" {
				h.prevDisk = volumeName(b.labelPattern, int(b.volumeIndex)-1)
			}
		}
	}
	if !isLast && h.nextName == "" {
		h.flags |= hdrFlagNextCabinet
		h.nextName = volumeName(b.namePattern, int(b.volumeIndex)+1)
		if b.labelPattern != "" {
			h.nextDisk = volumeName(b.labelPattern, int(b.volumeIndex)+1)
		}
	}

	path := volumeName(b.namePattern, int(b.volumeIndex))
	if err := b.vw.finalize(path, h); err != nil {
		return err
	}
	b.stats.BytesWritten += int64(h.fixedAreaSize())
	return nil
}
