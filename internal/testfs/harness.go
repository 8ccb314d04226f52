//go:build unix && !e2e

package testfs

import (
	"path/filepath"
	"testing"
)

// Harness sows a FileTree into t.TempDir() for in-process tests.
// Volumes are directories on one filesystem, so cross-device behavior needs
// the e2e build.
type Harness struct {
	t     *testing.T
	root  string
	given FileTree
}

// New sows given into a fresh temporary directory.
func New(t *testing.T, given FileTree) *Harness {
	t.Helper()

	root := t.TempDir()
	if err := SowFileTree(root, given); err != nil {
		t.Fatalf("failed to setup files: %v", err)
	}
	return &Harness{t: t, root: root, given: given}
}

// Root returns the temporary directory holding the volumes.
func (h *Harness) Root() string {
	return h.root
}

// Path resolves a mount point, optionally joined with relative elements.
func (h *Harness) Path(mountPoint string, elem ...string) string {
	return filepath.Join(append([]string{VolumePath(h.root, mountPoint)}, elem...)...)
}

// Assert checks every volume of expected against the disk.
func (h *Harness) Assert(expected FileTree) {
	h.t.Helper()

	for _, vol := range expected.Volumes {
		actual, err := ReapPaths(h.root, []string{vol.MountPoint})
		if err != nil {
			h.t.Fatalf("reap %s: %v", vol.MountPoint, err)
		}
		AssertVolume(h.t, vol, actual.Volumes[0])
	}
}
