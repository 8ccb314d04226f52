// Package symlinks finds symlinks whose target is missing or that loop.
package symlinks

import (
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ivoronin/dupehound/internal/filter"
	"github.com/ivoronin/dupehound/internal/progress"
	"github.com/ivoronin/dupehound/internal/types"
	"github.com/ivoronin/dupehound/internal/walker"
)

// Entry is an invalid symlink.
type Entry = walker.SymlinkEntry

// Options configure a search.
type Options struct {
	Workers  int
	Stop     *types.StopFlag
	Progress chan<- progress.Data
	Log      *zap.Logger
}

// Result lists the invalid symlinks sorted by path.
type Result struct {
	Links    []Entry
	Elapsed  time.Duration
	Messages *types.Messages
}

// Find walks f's roots and returns every symlink that cannot be resolved.
func Find(f *filter.PathFilter, opts Options) (*Result, error) {
	if f == nil || len(f.Roots()) == 0 {
		return nil, types.ErrNoIncludedDirectories
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	start := time.Now()

	h := progress.Start(opts.Progress, progress.Descriptor{
		Tool:  progress.ToolInvalidSymlinks,
		Stage: progress.StageCollectingFiles,
	}, 0, 0, log)
	w := walker.New(f, walker.Options{Workers: opts.Workers, Stop: opts.Stop, Progress: h, Log: log})
	walked, err := walker.CollectSymlinks(w)
	h.Join()
	if err != nil {
		return nil, err
	}

	links := walked.Links
	slices.SortFunc(links, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })
	res := &Result{Links: links, Messages: types.NewMessages(), Elapsed: time.Since(start)}
	res.Messages.AddWarnings(walked.Warnings)
	return res, nil
}
