package testfs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// -----------------------------------------------------------------------------
// Sow Operations - Create filesystem from spec
// -----------------------------------------------------------------------------

// SowFileTree creates spec under root. Each MountPoint becomes a path below
// root; with root "/" (inside the E2E container) mount points are used as-is.
func SowFileTree(root string, spec FileTree) error {
	now := time.Now()
	for _, vol := range spec.Volumes {
		if err := sowVolume(root, vol, now); err != nil {
			return fmt.Errorf("sow volume %s: %w", vol.MountPoint, err)
		}
	}
	return nil
}

// SowFromReader decodes a JSON FileTree and sows it under root.
func SowFromReader(r io.Reader, root string) error {
	var spec FileTree
	if err := json.NewDecoder(r).Decode(&spec); err != nil {
		return fmt.Errorf("decode spec: %w", err)
	}
	return SowFileTree(root, spec)
}

func sowVolume(root string, vol Volume, now time.Time) error {
	volPath := VolumePath(root, vol.MountPoint)
	if err := os.MkdirAll(volPath, 0o755); err != nil {
		return fmt.Errorf("create volume dir: %w", err)
	}
	for _, f := range vol.Files {
		if err := sowFile(volPath, f, now); err != nil {
			return err
		}
	}
	for _, sym := range vol.Symlinks {
		linkPath := filepath.Join(volPath, sym.Path)
		if err := createLink(os.Symlink, sym.Target, linkPath); err != nil {
			return fmt.Errorf("symlink %s -> %s: %w", linkPath, sym.Target, err)
		}
	}
	return nil
}

// VolumePath maps a mount point to its location under root.
func VolumePath(root, mountPoint string) string {
	if root == "" || root == "/" {
		return mountPoint
	}
	return filepath.Join(root, mountPoint)
}

func sowFile(volPath string, f File, now time.Time) error {
	if len(f.Path) == 0 {
		return nil
	}

	first := filepath.Join(volPath, f.Path[0])
	if err := writeChunkedFile(first, f.Chunks); err != nil {
		return fmt.Errorf("create %s: %w", first, err)
	}

	mtime, ok, err := f.ModTime(now)
	if err != nil {
		return fmt.Errorf("age of %s: %w", first, err)
	}
	if ok {
		if err := os.Chtimes(first, mtime, mtime); err != nil {
			return err
		}
	}

	for _, p := range f.Path[1:] {
		linkPath := filepath.Join(volPath, p)
		if err := createLink(os.Link, first, linkPath); err != nil {
			return fmt.Errorf("hardlink %s -> %s: %w", linkPath, first, err)
		}
	}
	return nil
}

// writeChunkedFile streams chunks to path through a bounded buffer, so a
// gigabyte chunk costs no more memory than a small one.
func writeChunkedFile(path string, chunks []Chunk) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for _, c := range chunks {
		if err := writeChunk(f, c); err != nil {
			return err
		}
	}
	return nil
}

func writeChunk(w io.Writer, c Chunk) error {
	const maxBufSize = 1 << 20

	size, err := humanize.ParseBytes(c.Size)
	if err != nil {
		return fmt.Errorf("parse chunk size %q: %w", c.Size, err)
	}

	buf := bytes.Repeat([]byte{byte(c.Pattern)}, int(min(size, maxBufSize)))
	for remaining := int64(size); remaining > 0; {
		n := min(remaining, int64(len(buf)))
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}

// createLink runs link(target, path) after creating path's parent.
func createLink(link func(oldname, newname string) error, target, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return link(target, path)
}
