// Package bigfiles finds the largest or smallest files under the scan roots.
package bigfiles

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ivoronin/dupehound/internal/filter"
	"github.com/ivoronin/dupehound/internal/progress"
	"github.com/ivoronin/dupehound/internal/types"
	"github.com/ivoronin/dupehound/internal/walker"
)

// SearchMode selects which end of the size range is reported.
type SearchMode int

const (
	Biggest SearchMode = iota
	Smallest
)

func (m SearchMode) String() string {
	if m == Smallest {
		return "smallest"
	}
	return "biggest"
}

// ParseSearchMode parses "biggest" or "smallest".
func ParseSearchMode(s string) (SearchMode, error) {
	switch strings.ToLower(s) {
	case "biggest":
		return Biggest, nil
	case "smallest":
		return Smallest, nil
	}
	return Biggest, fmt.Errorf("unknown search mode %q (want biggest or smallest)", s)
}

// Options configure a search.
type Options struct {
	Count          int
	Mode           SearchMode
	Workers        int
	FollowSymlinks bool
	Stop           *types.StopFlag
	Progress       chan<- progress.Data
	Log            *zap.Logger
}

// Result lists the selected files, ordered by size then path.
type Result struct {
	Files      []types.FileEntry
	FilesFound int
	TotalSize  int64 // of the selected files
	Elapsed    time.Duration
	Messages   *types.Messages
}

// Find walks f's roots and returns the opts.Count biggest or smallest files.
func Find(f *filter.PathFilter, opts Options) (*Result, error) {
	if opts.Count < 1 {
		return nil, fmt.Errorf("file count must be positive, got %d", opts.Count)
	}
	if f == nil || len(f.Roots()) == 0 {
		return nil, types.ErrNoIncludedDirectories
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	start := time.Now()

	h := progress.Start(opts.Progress, progress.Descriptor{
		Tool:  progress.ToolBigFiles,
		Stage: progress.StageCollectingFiles,
	}, 0, 0, log)
	w := walker.New(f, walker.Options{
		Workers:        opts.Workers,
		FollowSymlinks: opts.FollowSymlinks,
		Stop:           opts.Stop,
		Progress:       h,
		Log:            log,
	})
	walked, err := walker.Collect(w, func(fe types.FileEntry) int64 { return fe.Size })
	h.Join()
	if err != nil {
		return nil, err
	}

	res := &Result{Messages: types.NewMessages(), FilesFound: walked.Files}
	res.Messages.AddWarnings(walked.Warnings)

	sizes := make([]int64, 0, len(walked.Grouped))
	for size := range walked.Grouped {
		sizes = append(sizes, size)
	}
	if opts.Mode == Biggest {
		slices.SortFunc(sizes, func(a, b int64) int { return cmp.Compare(b, a) })
	} else {
		slices.Sort(sizes)
	}

	for _, size := range sizes {
		for _, fe := range types.ByPath(walked.Grouped[size]) {
			if len(res.Files) == opts.Count {
				break
			}
			res.Files = append(res.Files, fe)
			res.TotalSize += fe.Size
		}
	}
	res.Elapsed = time.Since(start)
	log.Named("bigfiles").Debug("search finished", zap.Stringer("mode", opts.Mode), zap.Int("selected", len(res.Files)))
	return res, nil
}
