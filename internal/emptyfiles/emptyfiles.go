// Package emptyfiles finds zero-length regular files.
package emptyfiles

import (
	"time"

	"go.uber.org/zap"

	"github.com/ivoronin/dupehound/internal/filter"
	"github.com/ivoronin/dupehound/internal/progress"
	"github.com/ivoronin/dupehound/internal/types"
	"github.com/ivoronin/dupehound/internal/walker"
)

// Options configure a search.
type Options struct {
	Workers  int
	Stop     *types.StopFlag
	Progress chan<- progress.Data
	Log      *zap.Logger
}

// Result lists the empty files sorted by path.
type Result struct {
	Files      []types.FileEntry
	FilesFound int // files accepted by the walker
	Elapsed    time.Duration
	Messages   *types.Messages
}

// Find walks f's roots and returns every empty file. The filter's size range
// still applies, so a minimum size above zero finds nothing.
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
		Tool:  progress.ToolEmptyFiles,
		Stage: progress.StageCollectingFiles,
	}, 0, 0, log)
	w := walker.New(f, walker.Options{Workers: opts.Workers, Stop: opts.Stop, Progress: h, Log: log})
	walked, err := walker.Collect(w, func(fe types.FileEntry) bool { return fe.Size == 0 })
	h.Join()
	if err != nil {
		return nil, err
	}

	res := &Result{
		Files:      types.ByPath(walked.Grouped[true]),
		FilesFound: walked.Files,
		Messages:   types.NewMessages(),
		Elapsed:    time.Since(start),
	}
	res.Messages.AddWarnings(walked.Warnings)
	return res, nil
}
