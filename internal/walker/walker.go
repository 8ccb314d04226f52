// Package walker provides parallel filesystem traversal shared by every scan.
//
// # Concurrency Model
//
// The walker uses the fan-out/fan-in layout of a semaphore-bounded goroutine
// per directory feeding one collector:
//
//  1. WALKER GOROUTINES (fan-out)
//     - One goroutine spawned per directory discovered
//     - Concurrency limited by semaphore (walkerSem)
//     - Each walker: checks the stop flag → acquires semaphore → lists directory
//     → sends matches → spawns child walkers
//
//  2. COLLECTOR GOROUTINE (fan-in)
//     - Single goroutine that drains resultCh and buckets entries by key
//     - Runs until resultCh is closed
//
//  3. CALLING GOROUTINE (orchestrator)
//     - Spawns root walkers, waits for walkerWg, closes resultCh,
//     waits for the collector
//
// # Cancellation
//
// The stop flag is polled once per directory. A walk that observed it returns
// types.ErrStopped and discards everything collected so far.
//
// # Counters
//
// The progress handle's item counter counts every non-directory entry visited;
// its byte counter counts only the sizes of entries that passed the filter.
package walker

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/ivoronin/dupehound/internal/filter"
	"github.com/ivoronin/dupehound/internal/progress"
	"github.com/ivoronin/dupehound/internal/types"
)

// Options configure a Walker.
type Options struct {
	Workers        int                    // max concurrent directory reads
	FollowSymlinks bool                   // resolve file symlinks instead of skipping them
	Accept         func(path string) bool // extra per-file predicate, nil accepts all
	Stop           *types.StopFlag        // polled once per directory
	Progress       *progress.Handle       // item/byte counters, may be nil
	Log            *zap.Logger
}

type mode int

const (
	modeFiles mode = iota
	modeSymlinks
)

// item is one collected entry; exactly one field is set.
type item struct {
	file *types.FileEntry
	link *SymlinkEntry
}

// Walker traverses the roots of a PathFilter.
//
// The walker is designed for single-use: create with New(), call one Collect
// function once.
type Walker struct {
	// Config (immutable, set by New)
	filter *filter.PathFilter
	opts   Options
	log    *zap.Logger

	// Runtime (initialized in run)
	mode      mode
	walkerWg  sync.WaitGroup  // Tracks in-flight walker goroutines
	walkerSem types.Semaphore // Limits concurrent directory reads
	resultCh  chan item       // Fan-in channel: walkers → collector

	warnMu   sync.Mutex
	warnings []string
}

// New creates a Walker over f's roots.
func New(f *filter.PathFilter, opts Options) *Walker {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Walker{filter: f, opts: opts, log: log.Named("walker")}
}

// Result holds the entries of a completed walk bucketed by key.
type Result[K comparable] struct {
	Grouped  map[K][]types.FileEntry
	Warnings []string
	Files    int   // entries that passed the filter
	Bytes    int64 // their total size
}

// Collect walks every root and buckets accepted regular files by groupBy.
// Returns types.ErrStopped if the stop flag was observed.
func Collect[K comparable](w *Walker, groupBy func(types.FileEntry) K) (Result[K], error) {
	res := Result[K]{Grouped: make(map[K][]types.FileEntry)}
	err := w.run(modeFiles, func(it item) {
		fe := *it.file
		k := groupBy(fe)
		res.Grouped[k] = append(res.Grouped[k], fe)
		res.Files++
		res.Bytes += fe.Size
	})
	if err != nil {
		return Result[K]{}, err
	}
	res.Warnings = w.Warnings()
	return res, nil
}

// SymlinkResult holds the invalid symlinks found by a walk.
type SymlinkResult struct {
	Links    []SymlinkEntry
	Warnings []string
}

// CollectSymlinks walks every root and returns symlinks that cannot be resolved.
func CollectSymlinks(w *Walker) (SymlinkResult, error) {
	var res SymlinkResult
	err := w.run(modeSymlinks, func(it item) {
		res.Links = append(res.Links, *it.link)
	})
	if err != nil {
		return SymlinkResult{}, err
	}
	res.Warnings = w.Warnings()
	return res, nil
}

// Warnings returns the per-entry failures recorded so far.
func (w *Walker) Warnings() []string {
	w.warnMu.Lock()
	defer w.warnMu.Unlock()
	out := make([]string, len(w.warnings))
	copy(out, w.warnings)
	return out
}

// run executes the walk, handing every collected item to collect from a
// single collector goroutine.
func (w *Walker) run(m mode, collect func(item)) error {
	w.mode = m
	w.walkerSem = types.NewSemaphore(w.opts.Workers)
	w.resultCh = make(chan item, 1000) // Buffer smooths producer/consumer rates

	collectorWg := sync.WaitGroup{}
	collectorWg.Add(1)
	go func() {
		defer collectorWg.Done()
		for it := range w.resultCh {
			collect(it)
		}
	}()

	for _, root := range w.filter.Roots() {
		if w.filter.SkipDir(root) {
			continue
		}
		var rootDev uint64
		if w.filter.OneFilesystem() {
			info, err := os.Stat(root)
			if err != nil {
				w.warn("cannot stat %s: %v", root, err)
				continue
			}
			rootDev = deviceOf(info)
		}
		w.walkDirectory(root, rootDev)
	}

	// Shutdown sequence: wait for producers, then signal consumer, then wait for consumer
	w.walkerWg.Wait()
	close(w.resultCh)
	collectorWg.Wait()

	if w.opts.Stop.Stopped() {
		w.log.Debug("walk stopped")
		return types.ErrStopped
	}
	return nil
}

// walkDirectory spawns a goroutine to process one directory and recursively
// spawn children. walkerWg.Add happens before the spawn so Wait cannot race.
func (w *Walker) walkDirectory(dir string, rootDev uint64) {
	w.walkerWg.Add(1)
	go func() {
		defer w.walkerWg.Done()

		if w.opts.Stop.Stopped() {
			return
		}

		w.walkerSem.Acquire()
		subdirs := w.listDirectory(dir, rootDev)
		w.walkerSem.Release()

		for _, sub := range subdirs {
			w.walkDirectory(sub, rootDev)
		}
	}()
}

// listDirectory reads one directory, sends matching entries and returns the
// subdirectories to descend. Uses batched ReadDir to bound memory on huge
// directories.
func (w *Walker) listDirectory(dirPath string, rootDev uint64) (subdirs []string) {
	dir, err := os.Open(dirPath)
	if err != nil {
		w.warn("cannot open directory %s: %v", dirPath, err)
		return nil
	}
	defer func() { _ = dir.Close() }()

	const batchSize = 1000
	for {
		entries, err := dir.ReadDir(batchSize)
		for _, entry := range entries {
			if sub := w.processEntry(dirPath, entry, rootDev); sub != "" {
				subdirs = append(subdirs, sub)
			}
		}
		if err == io.EOF || (err == nil && len(entries) == 0) {
			break
		}
		if err != nil {
			w.warn("cannot read directory %s: %v", dirPath, err)
			break
		}
	}
	return subdirs
}

// processEntry classifies one directory entry and returns it as a
// subdirectory to descend, or "" when it was a file or skipped.
func (w *Walker) processEntry(dirPath string, entry os.DirEntry, rootDev uint64) string {
	fullPath := filepath.Join(dirPath, entry.Name())

	if entry.IsDir() {
		return w.processDir(fullPath, entry, rootDev)
	}

	w.opts.Progress.IncreaseItems(1)

	switch {
	case entry.Type()&os.ModeSymlink != 0:
		w.processSymlink(fullPath)
	case entry.Type().IsRegular():
		if w.mode != modeFiles || w.skipFile(fullPath) {
			return ""
		}
		info, err := entry.Info()
		if err != nil {
			w.warn("cannot stat %s: %v", fullPath, err)
			return ""
		}
		w.accept(newFileEntry(fullPath, info))
	}
	// Devices, sockets and pipes are never collected.
	return ""
}

func (w *Walker) processDir(fullPath string, entry os.DirEntry, rootDev uint64) string {
	if !w.filter.Recursive() || w.filter.SkipDir(fullPath) {
		return ""
	}
	if w.filter.OneFilesystem() {
		info, err := entry.Info()
		if err != nil {
			w.warn("cannot stat directory %s: %v", fullPath, err)
			return ""
		}
		if deviceOf(info) != rootDev {
			w.log.Debug("skipping directory on another filesystem", zap.String("path", fullPath))
			return ""
		}
	}
	return fullPath
}

func (w *Walker) processSymlink(fullPath string) {
	if w.filter.SkipPath(fullPath) {
		return
	}
	switch w.mode {
	case modeSymlinks:
		dest, problem, err := ResolveSymlink(fullPath)
		if err != nil {
			w.warn("cannot resolve symlink %s: %v", fullPath, err)
			return
		}
		if problem == LinkOK {
			return
		}
		info, err := os.Lstat(fullPath)
		if err != nil {
			w.warn("cannot stat %s: %v", fullPath, err)
			return
		}
		w.resultCh <- item{link: &SymlinkEntry{
			FileEntry:   newFileEntry(fullPath, info),
			Destination: dest,
			Problem:     problem,
		}}
	case modeFiles:
		if !w.opts.FollowSymlinks || !w.wants(fullPath) {
			return
		}
		_, problem, err := ResolveSymlink(fullPath)
		switch {
		case err != nil:
			w.warn("cannot resolve symlink %s: %v", fullPath, err)
			return
		case problem != LinkOK:
			w.warn("symlink %s skipped: %s", fullPath, problem)
			return
		}
		info, err := os.Stat(fullPath)
		if err != nil {
			w.warn("cannot stat %s: %v", fullPath, err)
			return
		}
		// Directory symlinks are never descended.
		if info.Mode().IsRegular() {
			fe := newFileEntry(fullPath, info)
			fe.Symlink = true
			w.accept(fe)
		}
	}
}

func (w *Walker) skipFile(path string) bool {
	return w.filter.SkipPath(path) || !w.wants(path)
}

func (w *Walker) wants(path string) bool {
	return w.opts.Accept == nil || w.opts.Accept(path)
}

func (w *Walker) accept(fe types.FileEntry) {
	if !w.filter.SizeAllowed(fe.Size) {
		return
	}
	w.opts.Progress.IncreaseSize(fe.Size)
	w.resultCh <- item{file: &fe}
}

func (w *Walker) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	w.log.Debug("walk warning", zap.String("warning", msg))
	w.warnMu.Lock()
	w.warnings = append(w.warnings, msg)
	w.warnMu.Unlock()
}
