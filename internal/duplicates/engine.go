// Package duplicates finds groups of duplicate files.
//
// # Methods
//
// Name, Size and SizeName group the walker's output directly. Hash runs a
// two-phase pipeline:
//
//	walk, group by size ──► drop singletons
//	    │
//	    ├──► prehash first PrehashSize bytes (cache → parallel hash → cache)
//	    ├──► regroup by (size, prehash) ──► drop singletons
//	    │
//	    ├──► full hash survivors (files no longer than the prefix reuse it)
//	    └──► regroup by (size, hash) ──► drop singletons
//
// Same-size files with different content almost always differ in their first
// bytes, so most of them never get a full read.
//
// # Reference Directories
//
// When reference directories are configured every surfaced group has a kept
// member from a reference directory and at least one other member outside
// them. Groups that cannot satisfy both are dropped.
package duplicates

import (
	"errors"
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

// ErrNoMethod is returned when no checking method is selected.
var ErrNoMethod = errors.New("no checking method selected")

// Finder runs one duplicate scan.
//
// The finder is designed for single-use: create with New(), call Run() once.
type Finder struct {
	// Config (immutable, set by New)
	filter *filter.PathFilter
	opts   Options
	env    Env
	log    *zap.Logger

	// Runtime (initialized in Run)
	msgs *types.Messages
	info Info
}

// New creates a Finder.
func New(f *filter.PathFilter, opts Options, env Env) *Finder {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	log := env.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Finder{filter: f, opts: opts, env: env, log: log.Named("duplicates")}
}

// Validate reports critical configuration errors. Run calls it before any
// traversal.
func (f *Finder) Validate() error {
	if f.opts.Method == types.MethodNone {
		return ErrNoMethod
	}
	if f.filter == nil || len(f.filter.Roots()) == 0 {
		return types.ErrNoIncludedDirectories
	}
	if f.opts.Method == types.MethodHash && f.opts.PrehashSize <= 0 {
		return fmt.Errorf("prehash size must be positive, got %d", f.opts.PrehashSize)
	}
	return nil
}

// Run executes the scan. It returns types.ErrStopped if the stop flag was
// observed and a critical error if the configuration is unusable; in both
// cases no result is returned.
func (f *Finder) Run() (*Result, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	f.msgs = types.NewMessages()
	f.log.Debug("scan started", zap.Stringer("method", f.opts.Method), zap.Strings("roots", f.filter.Roots()))

	var (
		groups [][]Entry
		err    error
	)
	switch f.opts.Method {
	case types.MethodName:
		groups, err = runKeyed(f, f.nameKey)
	case types.MethodSize:
		groups, err = runKeyed(f, func(fe types.FileEntry) int64 { return fe.Size })
	case types.MethodSizeName:
		groups, err = runKeyed(f, func(fe types.FileEntry) sizeName { return sizeName{fe.Size, f.nameKey(fe)} })
	case types.MethodHash:
		groups, err = f.runHash()
	default:
		return nil, fmt.Errorf("unsupported checking method %s", f.opts.Method)
	}
	if err == nil && f.env.Stop.Stopped() {
		err = types.ErrStopped
	}
	if err != nil {
		return nil, err
	}

	res := f.finish(groups)
	res.Info.Elapsed = time.Since(start)
	f.log.Debug("scan finished",
		zap.Int("groups", res.Info.GroupsFound),
		zap.Int64("lost", res.Info.LostSpace),
		zap.Duration("elapsed", res.Info.Elapsed))
	return res, nil
}

type sizeName struct {
	size int64
	name string
}

func (f *Finder) nameKey(fe types.FileEntry) string {
	if f.opts.CaseSensitiveNames {
		return fe.Name()
	}
	return strings.ToLower(fe.Name())
}

// runKeyed is the single-pass pipeline of the metadata methods.
func runKeyed[K comparable](f *Finder, key func(types.FileEntry) K) ([][]Entry, error) {
	grouped, err := collect(f, key)
	if err != nil {
		return nil, err
	}
	out := make([][]Entry, 0, len(grouped))
	for _, g := range grouped {
		out = append(out, toEntries(g, nil))
	}
	return out, nil
}

// collect walks the roots and returns the groups of two or more files.
func collect[K comparable](f *Finder, key func(types.FileEntry) K) ([][]types.FileEntry, error) {
	h := f.startStage(progress.StageCollectingFiles, 0, 0)
	w := walker.New(f.filter, walker.Options{
		Workers:        f.opts.Workers,
		FollowSymlinks: f.opts.FollowSymlinks,
		Stop:           f.env.Stop,
		Progress:       h,
		Log:            f.log,
	})
	res, err := walker.Collect(w, key)
	h.Join()
	if err != nil {
		return nil, err
	}
	f.msgs.AddWarnings(res.Warnings)
	f.info.FilesFound = res.Files

	if f.opts.FollowSymlinks {
		dropAliases(res.Grouped)
	}

	var out [][]types.FileEntry
	for _, g := range res.Grouped {
		if f.opts.IgnoreHardLinks {
			g = foldHardLinks(g)
		}
		if len(g) >= 2 {
			out = append(out, g)
		}
	}
	return out, nil
}

// foldHardLinks keeps the first path by name of every inode in g.
func foldHardLinks(g []types.FileEntry) []types.FileEntry {
	seen := make(map[types.Inode]struct{}, len(g))
	out := make([]types.FileEntry, 0, len(g))
	for _, fe := range types.ByPath(g) {
		if _, dup := seen[fe.Inode()]; dup {
			continue
		}
		seen[fe.Inode()] = struct{}{}
		out = append(out, fe)
	}
	return out
}

// dropAliases removes followed symlinks whose target is already collected,
// and all but the first link by path to any other target. A link never
// competes with the data it points to.
func dropAliases[K comparable](grouped map[K][]types.FileEntry) {
	collected := make(map[types.Inode]struct{})
	var links []types.FileEntry
	for _, g := range grouped {
		for _, fe := range g {
			if fe.Symlink {
				links = append(links, fe)
			} else {
				collected[fe.Inode()] = struct{}{}
			}
		}
	}
	if len(links) == 0 {
		return
	}

	keep := make(map[string]struct{}, len(links))
	seen := make(map[types.Inode]struct{}, len(links))
	for _, fe := range types.ByPath(links) {
		if _, ok := collected[fe.Inode()]; ok {
			continue
		}
		if _, ok := seen[fe.Inode()]; ok {
			continue
		}
		seen[fe.Inode()] = struct{}{}
		keep[fe.Path] = struct{}{}
	}

	for k, g := range grouped {
		grouped[k] = slices.DeleteFunc(g, func(fe types.FileEntry) bool {
			if !fe.Symlink {
				return false
			}
			_, ok := keep[fe.Path]
			return !ok
		})
	}
}

// finish orders groups, applies reference mode and computes the counters.
func (f *Finder) finish(groups [][]Entry) *Result {
	res := &Result{Method: f.opts.Method, Messages: f.msgs, Info: f.info}
	countLost := f.opts.Method != types.MethodName

	for i := range groups {
		groups[i] = sortEntries(groups[i])
	}
	slices.SortFunc(groups, func(a, b []Entry) int { return strings.Compare(a[0].Path, b[0].Path) })

	if f.filter.Directories().HasReference() {
		res.RefGroups = f.splitReference(groups)
		for _, rg := range res.RefGroups {
			res.Info.DuplicatesFound += len(rg.Others)
			if countLost {
				for _, o := range rg.Others {
					res.Info.LostSpace += o.Size
				}
			}
		}
		res.Info.GroupsFound = len(res.RefGroups)
		return res
	}

	res.Groups = groups
	for _, g := range groups {
		res.Info.DuplicatesFound += len(g) - 1
		if countLost {
			res.Info.LostSpace += lostSpace(g)
		}
	}
	res.Info.GroupsFound = len(groups)
	return res
}

// splitReference turns sorted groups into (kept, others) pairs. Additional
// reference members are neither kept nor candidates.
func (f *Finder) splitReference(groups [][]Entry) []RefGroup {
	dirs := f.filter.Directories()
	out := make([]RefGroup, 0, len(groups))
	for _, g := range groups {
		var (
			kept   *Entry
			others []Entry
		)
		for i := range g {
			switch {
			case !dirs.IsReference(g[i].Path):
				others = append(others, g[i])
			case kept == nil:
				kept = &g[i]
			}
		}
		if kept == nil || len(others) == 0 {
			continue
		}
		out = append(out, RefGroup{Kept: *kept, Others: others})
	}
	return out
}

// lostSpace is the sum of sizes minus the largest one.
func lostSpace(g []Entry) int64 {
	var sum, largest int64
	for _, e := range g {
		sum += e.Size
		largest = max(largest, e.Size)
	}
	return sum - largest
}

func sortEntries(g []Entry) []Entry {
	return types.NewSorted(g, func(e Entry) string { return e.Path }).Items()
}

func toEntries(g []types.FileEntry, hashes map[string]string) []Entry {
	out := make([]Entry, 0, len(g))
	for _, fe := range g {
		out = append(out, Entry{FileEntry: fe, Hash: hashes[fe.Path]})
	}
	return out
}

func (f *Finder) startStage(stage progress.Stage, items, bytes int64) *progress.Handle {
	return progress.Start(f.env.Progress, progress.Descriptor{
		Tool:   progress.ToolDuplicates,
		Method: f.opts.Method,
		Stage:  stage,
	}, items, bytes, f.log)
}
