package types

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNoIncludedDirectories is returned when normalization leaves nothing to scan.
var ErrNoIncludedDirectories = errors.New("no included directories")

// Directories holds the normalized roots of a scan.
// No included path is a subpath of another, and every reference path is
// contained in an included path.
type Directories struct {
	Included  []string
	Excluded  []string
	Reference []string
}

// NewDirectories normalizes raw directory lists. Dropped or merged entries are
// reported to msgs. An empty included set is a critical error.
func NewDirectories(included, excluded, reference []string, msgs *Messages) (Directories, error) {
	var d Directories

	excl := normalizeList(excluded, msgs)
	d.Excluded = mergeNested(excl)

	for _, p := range normalizeList(included, msgs) {
		info, err := os.Stat(p)
		if err != nil {
			msgs.Warn("included directory %s skipped: %v", p, err)
			continue
		}
		if !info.IsDir() {
			msgs.Warn("included path %s is not a directory", p)
			continue
		}
		if IsWithin(p, d.Excluded) {
			msgs.Info("included directory %s is excluded", p)
			continue
		}
		d.Included = append(d.Included, p)
	}
	before := len(d.Included)
	d.Included = mergeNested(d.Included)
	if merged := before - len(d.Included); merged > 0 {
		msgs.Info("%d nested included directories merged into their parents", merged)
	}
	if len(d.Included) == 0 {
		return Directories{}, ErrNoIncludedDirectories
	}

	for _, p := range normalizeList(reference, msgs) {
		if !IsWithin(p, d.Included) {
			msgs.Warn("reference directory %s is not inside any included directory", p)
			continue
		}
		d.Reference = append(d.Reference, p)
	}
	d.Reference = mergeNested(d.Reference)

	return d, nil
}

// IsReference reports whether path lies in a reference directory.
func (d Directories) IsReference(path string) bool {
	return IsWithin(path, d.Reference)
}

// HasReference reports whether reference mode is active.
func (d Directories) HasReference() bool { return len(d.Reference) > 0 }

// IsExcluded reports whether path lies in an excluded directory.
func (d Directories) IsExcluded(path string) bool {
	return IsWithin(path, d.Excluded)
}

// IsWithin reports whether path equals or lies under any of roots.
func IsWithin(path string, roots []string) bool {
	for _, root := range roots {
		if IsSubpath(path, root) {
			return true
		}
	}
	return false
}

// IsSubpath reports whether path equals parent or lies under it.
// Both paths must be clean and absolute.
func IsSubpath(path, parent string) bool {
	if path == parent {
		return true
	}
	if parent == string(filepath.Separator) {
		return strings.HasPrefix(path, parent)
	}
	return strings.HasPrefix(path, parent+string(filepath.Separator))
}

func normalizeList(paths []string, msgs *Messages) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			msgs.Warn("cannot resolve %s: %v", p, err)
			continue
		}
		out = append(out, filepath.Clean(abs))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// mergeNested drops paths contained in another path of the same sorted list.
func mergeNested(sorted []string) []string {
	out := sorted[:0:0]
	for _, p := range sorted {
		if len(out) > 0 && IsWithin(p, out) {
			continue
		}
		out = append(out, p)
	}
	return out
}
