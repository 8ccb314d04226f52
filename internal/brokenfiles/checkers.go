package brokenfiles

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// checker reads an archive to the end and reports the first failure.
type checker func(path string) error

var checkers = map[string]checker{
	".zip": checkZip,
	".gz":  checkGzip,
	".tgz": checkTarGzip,
}

// checkerFor returns the checker for path, or nil if its type is not checked.
func checkerFor(path string) checker {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".tar.gz") {
		return checkTarGzip
	}
	return checkers[filepath.Ext(lower)]
}

// Supported reports whether path has a checked archive extension.
func Supported(path string) bool {
	return checkerFor(path) != nil
}

func checkZip(path string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := drain(f); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return nil
}

// drain reads one member fully so the CRC is verified.
func drain(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	_, err = io.Copy(io.Discard, rc)
	return err
}

func checkGzip(path string) error {
	return withGzip(path, func(r io.Reader) error {
		_, err := io.Copy(io.Discard, r)
		return err
	})
}

func checkTarGzip(path string) error {
	return withGzip(path, func(r io.Reader) error {
		tr := tar.NewReader(r)
		for {
			_, err := tr.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if _, err := io.Copy(io.Discard, tr); err != nil {
				return err
			}
		}
	})
}

func withGzip(path string, read func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer func() { _ = gz.Close() }()
	return read(gz)
}
