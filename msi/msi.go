// Package msi reads just enough of a Windows Installer (.msi) package's
// Directory/Component/File/Media tables to map each embedded cabinet's
// member names back onto the install-time paths they extract to. It exists
// to feed cmd/cabrepack: repacking an MSI's payload requires knowing which
// cabinet holds which file and what final path that file was destined for,
// neither of which the cabinet itself records.
package msi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/richardlehane/mscfb"
)

// Media describes one entry in the MSI's Media table: a source disk
// (in practice, almost always a single embedded cabinet) and the highest
// file sequence number it carries.
type Media struct {
	DiskID        uint16
	LastSequence1 uint16
	LastSequence2 uint16
	DiskPrompt    string
	Cabinet       string
	VolumeLabel   string
	Source        string
}

// File is one row of the MSI's File table: a component member with its
// cabinet-relative short/long name pair and compressed size.
type File struct {
	File       string
	Component  string
	FileName   string
	FileSize1  uint16
	FileSize2  uint16
	Version    string
	Language   string
	Attributes uint16
	Sequence1  uint16
	Sequence2  uint16
}

// Component is one row of the MSI's Component table, tying a group of
// File rows to the Directory their install path is rooted at.
type Component struct {
	Component   string
	ComponentID string
	Directory   string
	Attributes  uint16
	Condition   string
	KeyPath     string
}

// Directory is one row of the MSI's Directory table: a directory tree node
// plus the (possibly "short|long"-encoded) name it contributes to the
// install path.
type Directory struct {
	Directory       string
	DirectoryParent string
	DefaultDir      string
}

// msiIdentifierAlphabet is the 64-symbol set used to pack two base64-ish
// characters into one UTF-16 code unit for MSI table/stream names ([MS-CFB]
// naming convention used by the Windows Installer database format), plus a
// 65th symbol '!' at index 64, reachable only as the single-character code
// 0x4840.
var msiIdentifierAlphabet = []rune("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz._!")

// decodeName reverses the packed-identifier encoding MSI uses for its
// compound-file stream and storage names, recovering the literal table or
// stream name.
func decodeName(name string) string {
	var decoded []rune
	for _, r := range name {
		switch {
		case r >= 0x3800 && r < 0x4800:
			decoded = append(decoded, msiIdentifierAlphabet[(r-0x3800)&0x3F], msiIdentifierAlphabet[((r-0x3800)>>6)&0x3F])
		case r >= 0x4800 && r <= 0x4840:
			decoded = append(decoded, msiIdentifierAlphabet[r-0x4800])
		default:
			decoded = append(decoded, r)
		}
	}
	return string(decoded)
}

// decodeStrings splits the MSI string pool into its component strings.
// stringPool holds one (length, refcount) uint16 pair per string;
// stringData holds their concatenated UTF-8/ANSI bytes. A zero-length entry
// with a non-zero refcount carries its real length in the following
// uint32 instead, for strings too long to fit the 16-bit field.
func decodeStrings(stringData, stringPool []byte) []string {
	var strs []string
	poolReader := bytes.NewReader(stringPool)
	var offset uint32
	for {
		var strLen, refCount uint16
		if err := binary.Read(poolReader, binary.LittleEndian, &strLen); err != nil {
			return strs
		}
		if err := binary.Read(poolReader, binary.LittleEndian, &refCount); err != nil {
			return strs
		}
		if refCount == 0 {
			strs = append(strs, "")
			continue
		}
		length := uint32(strLen)
		if strLen == 0 {
			if err := binary.Read(poolReader, binary.LittleEndian, &length); err != nil {
				return strs
			}
		}
		strs = append(strs, string(stringData[offset:offset+length]))
		offset += length
	}
}

// parseTable decodes a table's raw column-major uint16 cells (as stored in
// its MSI stream) into target, a pointer to a slice of one of this
// package's row structs. String-typed fields are resolved through
// stringTable; everything else must be a uint16.
func parseTable(data []uint16, stringTable []string, target interface{}) error {
	targetVal := reflect.ValueOf(target)
	rowType := targetVal.Type().Elem().Elem()
	nColumns := rowType.NumField()
	if nColumns == 0 || len(data)%nColumns != 0 {
		return fmt.Errorf("msi: malformed table data: %d cells does not divide into %d columns", len(data), nColumns)
	}
	nRows := len(data) / nColumns
	for i := 0; i < nRows; i++ {
		row := reflect.New(rowType).Elem()
		for col := 0; col < nColumns; col++ {
			cell := data[(nRows*col)+i]
			field := row.Field(col)
			switch field.Kind() {
			case reflect.String:
				if int(cell) >= len(stringTable) {
					return fmt.Errorf("msi: string index %d out of range (pool has %d entries)", cell, len(stringTable))
				}
				field.SetString(stringTable[cell])
			case reflect.Uint16:
				field.SetUint(uint64(cell))
			default:
				return fmt.Errorf("msi: unsupported column kind %s in %s", field.Kind(), rowType.Name())
			}
		}
		targetVal.Elem().Set(reflect.Append(targetVal.Elem(), row))
	}
	return nil
}

// preferredName picks the long-name half of an MSI "short|long" filename or
// directory-name pair, falling back to the whole string when there is no
// short-name alternative.
func preferredName(name string) string {
	if i := strings.IndexByte(name, '|'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// MSI is the subset of an installer package's content this module needs:
// which cabinet(s) it embeds, and where each cabinet member ultimately
// belongs on disk.
type MSI struct {
	// FileMap maps a CFFILE name (as stored in one of CABFiles) to the
	// install-time path it should be repacked under.
	FileMap map[string]string
	// CABFiles lists the embedded cabinet stream names referenced by the
	// Media table, in table order.
	CABFiles []string
}

// rawTables are the MSI tables Parse needs, read once while walking the
// compound file's directory and decoded afterward once the string pool is
// available.
type rawTables struct {
	stringData, stringPool []byte
	cells                  map[string][]uint16
}

func readRawTables(doc *mscfb.Reader) (*rawTables, error) {
	rt := &rawTables{cells: make(map[string][]uint16)}
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		name := decodeName(entry.Name)
		switch {
		case name == "!_StringPool":
			if rt.stringPool, err = io.ReadAll(entry); err != nil {
				return nil, fmt.Errorf("msi: reading string pool: %w", err)
			}
		case name == "!_StringData":
			if rt.stringData, err = io.ReadAll(entry); err != nil {
				return nil, fmt.Errorf("msi: reading string data: %w", err)
			}
		case strings.HasPrefix(name, "!") && !strings.HasPrefix(name, "!_"):
			raw := make([]uint16, entry.Size/2)
			if err := binary.Read(doc, binary.LittleEndian, &raw); err != nil {
				return nil, fmt.Errorf("msi: reading table %q: %w", name, err)
			}
			rt.cells[strings.TrimPrefix(name, "!")] = raw
		}
	}
	return rt, nil
}

// directoryPaths resolves every Directory row to its full install-relative
// path by walking each node's DirectoryParent chain up to the synthetic
// TARGETDIR root.
func directoryPaths(dirs []Directory) map[string]string {
	byName := make(map[string]Directory, len(dirs))
	for _, d := range dirs {
		if d.Directory == "TARGETDIR" {
			d.DefaultDir = "."
		}
		byName[d.Directory] = d
	}
	paths := make(map[string]string, len(dirs))
	for _, d := range dirs {
		var parts []string
		for cur, ok := d, true; ok; cur, ok = byName[cur.DirectoryParent] {
			parts = append(parts, preferredName(cur.DefaultDir))
			if cur.DirectoryParent == "" {
				break
			}
		}
		for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
			parts[i], parts[j] = parts[j], parts[i]
		}
		paths[d.Directory] = path.Join(parts...)
	}
	return paths
}

// Parse reads an MSI compound-file package and returns the cabinet(s) it
// embeds plus the final install path for every file they contain.
func Parse(reader io.ReaderAt) (*MSI, error) {
	doc, err := mscfb.New(reader)
	if err != nil {
		return nil, fmt.Errorf("msi: parsing compound file header (not an MSI package?): %w", err)
	}
	rt, err := readRawTables(doc)
	if err != nil {
		return nil, err
	}
	strs := decodeStrings(rt.stringData, rt.stringPool)

	var dirs []Directory
	if err := parseTable(rt.cells["Directory"], strs, &dirs); err != nil {
		return nil, fmt.Errorf("msi: decoding Directory table: %w", err)
	}
	dirPaths := directoryPaths(dirs)

	var components []Component
	if err := parseTable(rt.cells["Component"], strs, &components); err != nil {
		return nil, fmt.Errorf("msi: decoding Component table: %w", err)
	}
	componentDir := make(map[string]string, len(components))
	for _, c := range components {
		componentDir[c.Component] = dirPaths[c.Directory]
	}

	var medias []Media
	if err := parseTable(rt.cells["Media"], strs, &medias); err != nil {
		return nil, fmt.Errorf("msi: decoding Media table: %w", err)
	}

	var files []File
	if err := parseTable(rt.cells["File"], strs, &files); err != nil {
		return nil, fmt.Errorf("msi: decoding File table: %w", err)
	}

	result := &MSI{FileMap: make(map[string]string, len(files))}
	for _, f := range files {
		result.FileMap[f.File] = filepath.Join(componentDir[f.Component], preferredName(f.FileName))
	}
	for _, m := range medias {
		if m.Cabinet == "" {
			continue
		}
		result.CABFiles = append(result.CABFiles, m.Cabinet)
	}
	return result, nil
}
