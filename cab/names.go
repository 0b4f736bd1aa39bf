package cab

import (
	"errors"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// maxNameBytes is the largest encoded archive name CFFILE can carry
// (excluding the terminating NUL).
const maxNameBytes = 255

// ErrNameTooLong is returned (wrapped in ErrItem by the pipeline) when an
// archive name cannot be made to fit within maxNameBytes.
var ErrNameTooLong = errors.New("cab: archive name exceeds 255 bytes encoded")

// normalizeName turns a source path into the backslash-separated archive
// name CAB stores, applying the strip policy: "*" keeps only the basename,
// anything else is a literal substring, every occurrence of which is removed.
func normalizeName(src, strip string) string {
	name := src
	if i := strings.IndexByte(name, ':'); i == 1 {
		// drop a drive specifier such as "C:"
		name = name[i+1:]
	}
	name = strings.ReplaceAll(name, "/", "\\")
	name = strings.TrimPrefix(name, "\\")
	switch {
	case strip == "*":
		if i := strings.LastIndexByte(name, '\\'); i >= 0 {
			name = name[i+1:]
		}
	case strip != "":
		name = strings.ReplaceAll(name, strip, "")
	}
	return name
}

// encodeName attempts the primary DOS code page (CP437) first, falling back
// to UTF-8 with the name-is-utf8 attribute bit set when the name contains
// characters the code page cannot represent. Returns an error if the
// resulting byte string would still exceed maxNameBytes.
func encodeName(name string) ([]byte, bool, error) {
	enc := charmap.CodePage437.NewEncoder()
	if s, encErr := enc.String(name); encErr == nil && len(s) <= maxNameBytes {
		return []byte(s), false, nil
	}
	// CP437 either can't represent name or (rarely) produced a string
	// longer than the limit; UTF-8 is the only remaining candidate.
	b := []byte(name)
	if len(b) > maxNameBytes {
		return nil, false, ErrNameTooLong
	}
	return b, true, nil
}
