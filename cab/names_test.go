package cab

import (
	"strings"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		strip string
		want  string
	}{
		{"forward slashes become backslashes", "foo/bar/baz.txt", "", `foo\bar\baz.txt`},
		{"drive letter stripped", `C:\foo\bar.txt`, "", `foo\bar.txt`},
		{"leading backslash trimmed", `\foo\bar.txt`, "", `foo\bar.txt`},
		{"star strip keeps basename", `C:\foo\bar\baz.txt`, "*", "baz.txt"},
		{"literal prefix removed", `build\output\x.dll`, `build\`, `output\x.dll`},
		{"no strip leaves path as-is", `foo\bar.txt`, "", `foo\bar.txt`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeName(tt.src, tt.strip); got != tt.want {
				t.Errorf("normalizeName(%q, %q) = %q, want %q", tt.src, tt.strip, got, tt.want)
			}
		})
	}
}

func TestEncodeNameASCII(t *testing.T) {
	encoded, isUTF8, err := encodeName("readme.txt")
	if err != nil {
		t.Fatalf("encodeName() error = %v", err)
	}
	if isUTF8 {
		t.Errorf("encodeName(ASCII) reported isUTF8 = true, want false")
	}
	if string(encoded) != "readme.txt" {
		t.Errorf("encodeName() = %q, want %q", encoded, "readme.txt")
	}
}

func TestEncodeNameNonASCIIFallsBackToUTF8(t *testing.T) {
	// U+4E2D (中) has no CP437 representation, forcing the UTF-8 fallback
	// and the name-is-utf8 attribute bit.
	encoded, isUTF8, err := encodeName("中文.txt")
	if err != nil {
		t.Fatalf("encodeName() error = %v", err)
	}
	if !isUTF8 {
		t.Errorf("encodeName(non-ASCII) reported isUTF8 = false, want true")
	}
	if string(encoded) != "中文.txt" {
		t.Errorf("encodeName() = %q, want the literal UTF-8 bytes", encoded)
	}
}

func TestEncodeNameTooLong(t *testing.T) {
	long := strings.Repeat("a", maxNameBytes+1)
	if _, _, err := encodeName(long); err == nil {
		t.Errorf("encodeName(%d bytes) succeeded, want ErrNameTooLong", len(long))
	}
}

func TestEncodeNameExactlyAtLimit(t *testing.T) {
	exact := strings.Repeat("a", maxNameBytes)
	encoded, _, err := encodeName(exact)
	if err != nil {
		t.Fatalf("encodeName(%d bytes) error = %v", maxNameBytes, err)
	}
	if len(encoded) != maxNameBytes {
		t.Errorf("encodeName() produced %d bytes, want %d", len(encoded), maxNameBytes)
	}
}
