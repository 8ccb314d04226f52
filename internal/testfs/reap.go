//go:build unix

package testfs

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sys/unix"
)

// -----------------------------------------------------------------------------
// Reap Operations - Capture filesystem state
// -----------------------------------------------------------------------------

// ReapPaths captures each path as a ReapVolume. root is prefixed to the paths
// for the walk but not to the reported names.
func ReapPaths(root string, paths []string) (*ReapResult, error) {
	result := &ReapResult{}
	for _, path := range paths {
		vol, err := reapPath(VolumePath(root, path), path)
		if err != nil {
			return nil, fmt.Errorf("reap %s: %w", path, err)
		}
		result.Volumes = append(result.Volumes, vol)
	}
	return result, nil
}

// ReapToWriter writes the state of paths as indented JSON.
func ReapToWriter(w io.Writer, paths []string) error {
	result, err := ReapPaths("", paths)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func reapPath(rootPath, name string) (ReapVolume, error) {
	vol := ReapVolume{Name: name}
	byInode := make(map[uint64]*ReapFile)

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == rootPath || d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(rootPath, path)

		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
			vol.Symlinks = append(vol.Symlinks, ReapSymlink{Path: rel, Target: target})
			return nil
		}

		var st unix.Stat_t
		if err := unix.Lstat(path, &st); err != nil {
			return fmt.Errorf("lstat %s: %w", path, err)
		}
		ino := uint64(st.Ino) //nolint:unconvert // platform-dependent type
		if rf, ok := byInode[ino]; ok {
			rf.Path = append(rf.Path, rel)
			return nil
		}
		byInode[ino] = &ReapFile{
			Path:  []string{rel},
			Inode: ino,
			Nlink: uint64(st.Nlink), //nolint:unconvert // platform-dependent type
			Size:  st.Size,
		}
		return nil
	})
	if err != nil {
		return vol, err
	}

	for _, rf := range byInode {
		vol.Files = append(vol.Files, *rf)
	}
	slices.SortFunc(vol.Files, func(a, b ReapFile) int { return strings.Compare(a.Path[0], b.Path[0]) })
	return vol, nil
}
