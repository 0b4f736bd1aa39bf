// Command cabrepack reads an MSI package plus its associated cabinet
// volume(s) and republishes the files it references into a fresh cabinet
// set, using this module's writer instead of whatever produced the
// original.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/lorenzp/cabpack/cab"
	"github.com/lorenzp/cabpack/msi"
)

var (
	flagMSI   = flag.String("msi", "", "Path to the source .msi package.")
	flagCabDir = flag.String("cab-dir", ".", "Directory containing the MSI's referenced .cab file(s).")
	flagOut   = flag.String("out", "repacked.cab", "Output cabinet name pattern.")
	flagLimit = flag.Uint64("limit", 1<<32-1, "Per-volume size budget in bytes.")
	flagLevel = flag.Int("mszip-level", 6, "MS-ZIP compression level, 1..9.")
)

// cabSource is a cab.FileSource backed by an already-open source cabinet,
// letting the pipeline treat "a file already sitting in a cabinet" the
// same way it treats "a file sitting on disk".
type cabSource struct {
	cabinet *cab.Cabinet
	headers map[string]*cab.Header
}

func newCabSource(cabinet *cab.Cabinet) (*cabSource, error) {
	headers := make(map[string]*cab.Header)
	for {
		h, err := cabinet.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading source cabinet directory: %w", err)
		}
		headers[h.Name] = h
	}
	return &cabSource{cabinet: cabinet, headers: headers}, nil
}

func (s *cabSource) Open(name string) (io.ReadCloser, cab.FileInfo, error) {
	h, ok := s.headers[name]
	if !ok {
		return nil, cab.FileInfo{}, fmt.Errorf("cabrepack: %q not found in source cabinet", name)
	}
	r, err := s.cabinet.Content(name)
	if err != nil {
		return nil, cab.FileInfo{}, err
	}
	return io.NopCloser(r), cab.FileInfo{
		Size:    int64(h.Size),
		ModTime: h.CreateTime,
		Archive: true,
	}, nil
}

func main() {
	flag.Parse()
	if *flagMSI == "" {
		log.Fatalf("-msi is required")
	}

	msiFile, err := os.Open(*flagMSI)
	if err != nil {
		log.Fatalf("failed to open %s: %v", *flagMSI, err)
	}
	defer msiFile.Close()

	pkg, err := msi.Parse(msiFile)
	if err != nil {
		log.Fatalf("failed to parse %s: %v", *flagMSI, err)
	}

	b, err := cab.Open(*flagOut, uint32(*flagLimit), cab.Compression{Method: cab.MSZIP, Level: *flagLevel}, cab.Options{})
	if err != nil {
		log.Fatalf("failed to open output cabinet: %v", err)
	}

	for _, cabName := range pkg.CABFiles {
		f, err := os.Open(filepath.Join(*flagCabDir, cabName))
		if err != nil {
			log.Fatalf("failed to open source cabinet %s: %v", cabName, err)
		}
		cabinet, err := cab.New(f)
		if err != nil {
			log.Fatalf("failed to parse source cabinet %s: %v", cabName, err)
		}
		src, err := newCabSource(cabinet)
		if err != nil {
			log.Fatalf("failed to index source cabinet %s: %v", cabName, err)
		}
		b.SetSource(src)

		for cabFileName, finalPath := range pkg.FileMap {
			if _, ok := src.headers[cabFileName]; !ok {
				continue
			}
			if err := b.AddFileAs(finalPath, cabFileName); err != nil {
				log.Fatalf("failed to add %s: %v", finalPath, err)
			}
		}
		f.Close()
	}

	if err := b.Flush(); err != nil {
		log.Fatalf("failed to finish output cabinet: %v", err)
	}

	stats := b.Stats()
	log.Printf("repacked %d file(s) across %d volume(s)", stats.FilesAdded, stats.Volumes)
}
