// Command cabpack packs a list of files into a Microsoft Cabinet archive.
package main

import (
	"flag"
	"log"
	"strconv"
	"strings"

	"github.com/lorenzp/cabpack/cab"
)

var (
	flagOut    = flag.String("out", "out.cab", "Output cabinet name pattern; '#' is replaced by the 1-based volume index for multi-volume sets.")
	flagLimit  = flag.Uint64("limit", 1<<32-1, "Per-volume size budget in bytes (minimum 50000).")
	flagStrip  = flag.String("strip", "", "Name policy applied to each input path: '*' keeps only the basename, any other value is removed wherever it occurs as a literal substring.")
	flagComp   = flag.String("compression", "mszip:6", "Folder compression: 'store', 'mszip:<1-9>' or 'lzx:<15-21>' (lzx requires a coder, not available from this CLI).")
	flagLabel  = flag.String("label", "", "Optional disk-label pattern, substituted like -out.")
)

func parseCompression(s string) cab.Compression {
	switch {
	case s == "store":
		return cab.Compression{Method: cab.Store}
	case strings.HasPrefix(s, "mszip:"):
		level, err := strconv.Atoi(s[len("mszip:"):])
		if err != nil {
			log.Fatalf("invalid mszip level in %q: %v", s, err)
		}
		return cab.Compression{Method: cab.MSZIP, Level: level}
	case strings.HasPrefix(s, "lzx:"):
		log.Fatalf("lzx compression requires an LZXCoder; not available from this CLI")
	}
	log.Fatalf("unknown -compression value %q", s)
	return cab.Compression{}
}

func main() {
	flag.Parse()
	comp := parseCompression(*flagComp)

	b, err := cab.Open(*flagOut, uint32(*flagLimit), comp, cab.Options{Label: *flagLabel})
	if err != nil {
		log.Fatalf("failed to open cabinet: %v", err)
	}

	for _, path := range flag.Args() {
		if err := b.AddFile(path, *flagStrip); err != nil {
			log.Fatalf("failed to add %q: %v", path, err)
		}
	}

	if err := b.Flush(); err != nil {
		log.Fatalf("failed to finish cabinet: %v", err)
	}

	stats := b.Stats()
	log.Printf("wrote %d file(s) across %d volume(s), %d bytes read, %d bytes written",
		stats.FilesAdded, stats.Volumes, stats.BytesRead, stats.BytesWritten)
}
