// Package filter compiles scan inclusion and exclusion rules into per-path predicates.
package filter

import (
	"path/filepath"
	"strings"

	"github.com/ivoronin/dupehound/internal/types"
)

// Config holds the raw rules of a scan.
type Config struct {
	Directories             types.Directories
	ExcludedItems           ExcludedItems
	AllowedExtensions       []string
	ExcludedExtensions      []string
	MinSize                 int64 // inclusive
	MaxSize                 int64 // inclusive, 0 means unbounded
	Recursive               bool
	ExcludeOtherFilesystems bool
}

// PathFilter answers the walker's per-directory and per-file questions.
// It is immutable and safe for concurrent use.
type PathFilter struct {
	dirs          types.Directories
	excludedItems ExcludedItems
	allowed       map[string]struct{}
	denied        map[string]struct{}
	minSize       int64
	maxSize       int64
	recursive     bool
	oneFilesystem bool
}

// New compiles cfg.
func New(cfg Config) *PathFilter {
	return &PathFilter{
		dirs:          cfg.Directories,
		excludedItems: cfg.ExcludedItems,
		allowed:       extensionSet(cfg.AllowedExtensions),
		denied:        extensionSet(cfg.ExcludedExtensions),
		minSize:       cfg.MinSize,
		maxSize:       cfg.MaxSize,
		recursive:     cfg.Recursive,
		oneFilesystem: cfg.ExcludeOtherFilesystems,
	}
}

// Directories returns the normalized roots.
func (f *PathFilter) Directories() types.Directories { return f.dirs }

// Roots returns the included roots to walk.
func (f *PathFilter) Roots() []string { return f.dirs.Included }

// Recursive reports whether subdirectories are descended.
func (f *PathFilter) Recursive() bool { return f.recursive }

// OneFilesystem reports whether directories on other devices are skipped.
func (f *PathFilter) OneFilesystem() bool { return f.oneFilesystem }

// SkipDir reports whether a directory must not be descended.
func (f *PathFilter) SkipDir(path string) bool {
	return f.dirs.IsExcluded(path) || f.excludedItems.Matches(path)
}

// SkipPath reports whether a non-directory path is excluded regardless of its size.
func (f *PathFilter) SkipPath(path string) bool {
	if !f.extensionAllowed(path) {
		return true
	}
	return f.excludedItems.Matches(path)
}

// SizeAllowed reports whether size lies in the inclusive size range.
func (f *PathFilter) SizeAllowed(size int64) bool {
	if size < f.minSize {
		return false
	}
	return f.maxSize <= 0 || size <= f.maxSize
}

// Accept reports whether a file passes every rule.
func (f *PathFilter) Accept(path string, size int64) bool {
	return f.SizeAllowed(size) && !f.SkipPath(path)
}

func (f *PathFilter) extensionAllowed(path string) bool {
	if len(f.allowed) == 0 && len(f.denied) == 0 {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if _, ok := f.denied[ext]; ok {
		return false
	}
	if len(f.allowed) == 0 {
		return true
	}
	_, ok := f.allowed[ext]
	return ok
}

// extensionSet normalizes "jpg", ".JPG" and "*.jpg" to "jpg". Entries may be
// comma separated.
func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, raw := range exts {
		for _, e := range strings.Split(raw, ",") {
			e = strings.TrimSpace(strings.ToLower(e))
			e = strings.TrimPrefix(e, "*")
			e = strings.TrimPrefix(e, ".")
			if e != "" {
				set[e] = struct{}{}
			}
		}
	}
	return set
}
