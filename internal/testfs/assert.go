package testfs

import (
	"fmt"
	"testing"
)

// -----------------------------------------------------------------------------
// Assertion Functions - Shared by both harnesses
// -----------------------------------------------------------------------------

// AssertVolume reports every difference between expected and actual as a test
// error.
func AssertVolume(t *testing.T, expected Volume, actual ReapVolume) {
	t.Helper()
	for _, m := range Mismatches(expected, actual) {
		t.Error(m)
	}
}

// Mismatches compares a reaped volume with its expectation: files and their
// hard links, symlink targets, and paths that must be gone.
func Mismatches(expected Volume, actual ReapVolume) []string {
	var out []string
	out = append(out, fileMismatches(expected.Files, actual.Files)...)
	out = append(out, symlinkMismatches(expected.Symlinks, actual.Symlinks)...)
	out = append(out, absentMismatches(expected.Absent, actual)...)
	return out
}

// fileMismatches checks that every path of a File entry exists and shares one
// inode, and that different entries do not share an inode.
func fileMismatches(expected []File, actual []ReapFile) []string {
	var out []string
	inodes := pathInodes(actual)
	entryInodes := make(map[int]uint64)
	for i, ef := range expected {
		if len(ef.Path) == 0 {
			continue
		}
		ino, msgs := checkEntry(ef, inodes)
		out = append(out, msgs...)
		if ino != 0 {
			entryInodes[i] = ino
		}
	}

	for i, a := range entryInodes {
		for j, b := range entryInodes {
			if i < j && a == b {
				out = append(out, fmt.Sprintf("files from different entries share inode %d: %v and %v",
					a, expected[i].Path, expected[j].Path))
			}
		}
	}
	return out
}

func symlinkMismatches(expected []Symlink, actual []ReapSymlink) []string {
	var out []string
	targets := make(map[string]string, len(actual))
	for _, rs := range actual {
		targets[rs.Path] = rs.Target
	}
	for _, want := range expected {
		got, ok := targets[want.Path]
		switch {
		case !ok:
			out = append(out, "expected symlink not found: "+want.Path)
		case got != want.Target:
			out = append(out, fmt.Sprintf("symlink %s: got target %q, want %q", want.Path, got, want.Target))
		}
	}
	return out
}

func absentMismatches(paths []string, actual ReapVolume) []string {
	var out []string
	present := pathInodes(actual.Files)
	for _, rs := range actual.Symlinks {
		present[rs.Path] = 0
	}
	for _, p := range paths {
		if _, ok := present[p]; ok {
			out = append(out, fmt.Sprintf("expected %s to be removed", p))
		}
	}
	return out
}

func pathInodes(files []ReapFile) map[string]uint64 {
	m := make(map[string]uint64)
	for _, rf := range files {
		for _, p := range rf.Path {
			m[p] = rf.Inode
		}
	}
	return m
}

// checkEntry returns the inode of ef's first path, or 0 when it is missing.
func checkEntry(ef File, inodes map[string]uint64) (uint64, []string) {
	first := ef.Path[0]
	ino, ok := inodes[first]
	if !ok {
		return 0, []string{"expected file not found: " + first}
	}
	var out []string
	for _, p := range ef.Path[1:] {
		other, ok := inodes[p]
		switch {
		case !ok:
			out = append(out, "expected file not found: "+p)
		case other != ino:
			out = append(out, fmt.Sprintf("hardlink mismatch: %s (inode %d) != %s (inode %d)", first, ino, p, other))
		}
	}
	return ino, out
}
