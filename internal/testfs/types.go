// Package testfs builds declarative file trees for scan and action tests and
// checks the tree left behind.
//
// It supports two modes:
//   - Integration tests: Harness creates volumes as directories in t.TempDir()
//   - E2E tests: the e2e Harness runs the dupehound binary in a Docker
//     container where every volume is a separate tmpfs mount
//
// The E2E mode gives each volume its own device ID, so one_filesystem and
// cross-device hard-link failures can be observed.
//
// # FileTree
//
// The same FileTree type describes the setup and the expected result:
//
//	given := testfs.FileTree{
//	    Volumes: []testfs.Volume{{
//	        MountPoint: "/data",
//	        Files: []testfs.File{
//	            {Path: []string{"old.txt"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1KiB"}}, Age: "2h"},
//	            {Path: []string{"new.txt"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1KiB"}}},
//	        },
//	    }},
//	}
//	then := testfs.FileTree{
//	    Volumes: []testfs.Volume{{
//	        MountPoint: "/data",
//	        Files:      []testfs.File{{Path: []string{"old.txt"}}},
//	        Absent:     []string{"new.txt"},
//	    }},
//	}
//
// Parent directories are created from file paths. File paths are relative to
// the volume mount point.
//
// # Field usage
//
//	| Field          | Setup              | Verification             |
//	|----------------|--------------------|--------------------------|
//	| Volumes        | Creates mounts     | Scope for assertions     |
//	| File.Path      | Create file/links  | Assert same inode        |
//	| File.Chunks    | Generate content   | Ignored                  |
//	| File.Age       | Backdate mtime     | Ignored                  |
//	| Symlink.Path   | Create symlink     | Assert is symlink        |
//	| Symlink.Target | Symlink target     | Assert symlink target    |
//	| Volume.Absent  | Ignored            | Assert path is missing   |
//	| ExitCode       | Ignored            | Assert matches           |
package testfs

import (
	"time"

	"github.com/dustin/go-humanize"
)

// -----------------------------------------------------------------------------
// FileTree Specification Types
// -----------------------------------------------------------------------------

// FileTree describes a filesystem state.
type FileTree struct {
	Volumes []Volume `json:"volumes"`

	// ExitCode expected from dupehound (verification only, default 0).
	ExitCode int `json:"-"`
}

// Volume is a separate filesystem in E2E mode and a plain directory otherwise.
// Nested mount points such as "/data/sub" inside "/data" are allowed.
type Volume struct {
	MountPoint string    `json:"mountPoint"`
	Files      []File    `json:"files,omitempty"`
	Symlinks   []Symlink `json:"symlinks,omitempty"`

	// Absent lists paths that must not exist after the run.
	Absent []string `json:"absent,omitempty"`
}

// File defines a regular file, possibly with hard links.
//
// On setup Path[0] is written from Chunks and Path[1:] are linked to it.
// On verification every path must exist and share one inode, and different
// File entries must not share an inode.
type File struct {
	Path   []string `json:"path"`
	Chunks []Chunk  `json:"chunks,omitempty"`

	// Age backdates the modification time, e.g. "2h". Empty keeps the
	// creation time.
	Age string `json:"age,omitempty"`
}

// Chunk is a region of content filled with one byte.
type Chunk struct {
	Pattern rune `json:"pattern"`

	// Size accepts humanize units; IEC ("1KiB") keeps sizes aligned with the
	// prehash boundary.
	Size string `json:"size"`
}

// TotalSize sums the chunk sizes in bytes.
func (f *File) TotalSize() int64 {
	var total int64
	for _, c := range f.Chunks {
		size, _ := humanize.ParseBytes(c.Size)
		total += int64(size)
	}
	return total
}

// ModTime returns the mtime Age asks for, relative to now.
func (f *File) ModTime(now time.Time) (time.Time, bool, error) {
	if f.Age == "" {
		return time.Time{}, false, nil
	}
	d, err := time.ParseDuration(f.Age)
	if err != nil {
		return time.Time{}, false, err
	}
	return now.Add(-d), true, nil
}

// Symlink defines a symbolic link; Target is written verbatim.
type Symlink struct {
	Path   string `json:"path"`
	Target string `json:"target"`
}

// -----------------------------------------------------------------------------
// Execution Result Types
// -----------------------------------------------------------------------------

// RunResult captures one dupehound execution.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// -----------------------------------------------------------------------------
// Reap Types
// -----------------------------------------------------------------------------

// ReapResult is the state captured by ReapPaths, also the JSON output of
// testfs-helper reap.
type ReapResult struct {
	Volumes []ReapVolume `json:"volumes"`
}

// ReapVolume is the captured state of one volume.
type ReapVolume struct {
	Name     string        `json:"name"`
	Files    []ReapFile    `json:"files,omitempty"` // grouped by inode
	Symlinks []ReapSymlink `json:"symlinks,omitempty"`
}

// ReapFile is one inode with every path that refers to it.
type ReapFile struct {
	Path  []string `json:"path"`
	Inode uint64   `json:"inode"`
	Nlink uint64   `json:"nlink"`
	Size  int64    `json:"size"`
}

// ReapSymlink is a captured symlink.
type ReapSymlink struct {
	Path   string `json:"path"`
	Target string `json:"target"`
}
