package duplicates

import (
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ivoronin/dupehound/internal/cache"
	"github.com/ivoronin/dupehound/internal/hasher"
	"github.com/ivoronin/dupehound/internal/progress"
	"github.com/ivoronin/dupehound/internal/types"
)

// cacheVersion is bumped when the digest payload changes meaning.
const cacheVersion = 1

// hashFile is swapped in tests to count reads.
var hashFile = hasher.File

// phase describes one hashing pass.
type phase struct {
	name           string
	limit          int64 // bytes per file, 0 for whole file
	useCache       bool
	minCacheSize   int64
	loadStage      progress.Stage
	hashStage      progress.Stage
	saveStage      progress.Stage
	cacheParams    []string
	countProcessed func(*Info, int)
}

func (f *Finder) prehashPhase() phase {
	return phase{
		name:         "prehash",
		limit:        f.opts.PrehashSize,
		useCache:     f.opts.UseCache && f.opts.UsePrehashCache,
		minCacheSize: f.opts.MinPrehashCacheFileSize,
		loadStage:    progress.StagePrehashCacheLoading,
		hashStage:    progress.StagePrehashing,
		saveStage:    progress.StagePrehashCacheSaving,
		cacheParams:  []string{"prehash", f.opts.HashType.String(), strconv.FormatInt(f.opts.PrehashSize, 10)},
		countProcessed: func(i *Info, n int) {
			i.PrehashedFiles += n
		},
	}
}

func (f *Finder) fullHashPhase() phase {
	return phase{
		name:         "hash",
		useCache:     f.opts.UseCache,
		minCacheSize: f.opts.MinCacheFileSize,
		loadStage:    progress.StageHashCacheLoading,
		hashStage:    progress.StageHashing,
		saveStage:    progress.StageHashCacheSaving,
		cacheParams:  []string{"hash", f.opts.HashType.String()},
		countProcessed: func(i *Info, n int) {
			i.HashedFiles += n
		},
	}
}

// runHash is the two-phase content pipeline.
func (f *Finder) runHash() ([][]Entry, error) {
	bySize, err := collect(f, func(fe types.FileEntry) int64 { return fe.Size })
	if err != nil {
		return nil, err
	}
	if f.filter.Directories().HasReference() {
		bySize = f.keepReferenceCandidates(bySize)
	}

	prehashes, err := f.hashPhase(f.prehashPhase(), flatten(bySize))
	if err != nil {
		return nil, err
	}
	survivors := regroup(bySize, prehashes)

	// Files no longer than the prefix were read whole already.
	var needFull []types.FileEntry
	for _, g := range survivors {
		for _, fe := range g {
			if fe.Size > f.opts.PrehashSize {
				needFull = append(needFull, fe)
			}
		}
	}
	full, err := f.hashPhase(f.fullHashPhase(), needFull)
	if err != nil {
		return nil, err
	}
	for _, g := range survivors {
		for _, fe := range g {
			if fe.Size <= f.opts.PrehashSize {
				full[fe.Path] = prehashes[fe.Path]
			}
		}
	}

	final := regroup(survivors, full)
	out := make([][]Entry, 0, len(final))
	for _, g := range final {
		out = append(out, toEntries(g, full))
	}
	return out, nil
}

// keepReferenceCandidates drops size groups that cannot form a reference
// group, before any file is read.
func (f *Finder) keepReferenceCandidates(groups [][]types.FileEntry) [][]types.FileEntry {
	dirs := f.filter.Directories()
	out := groups[:0]
	for _, g := range groups {
		var ref, other bool
		for _, fe := range g {
			if dirs.IsReference(fe.Path) {
				ref = true
			} else {
				other = true
			}
		}
		if ref && other {
			out = append(out, g)
		}
	}
	return out
}

// hashPhase digests entries through the phase's cache. Files whose hashing
// failed are missing from the returned map.
func (f *Finder) hashPhase(p phase, entries []types.FileEntry) (map[string]string, error) {
	if f.env.Stop.Stopped() {
		return nil, types.ErrStopped
	}

	store := cache.Open[string](cache.ID{
		Tool:    "duplicates",
		Params:  p.cacheParams,
		Version: cacheVersion,
	}, cache.Options{
		Dir:            f.env.CacheDir,
		Enabled:        p.useCache,
		SaveJSON:       f.opts.SaveJSONCache,
		DeleteOutdated: f.opts.DeleteOutdatedCache,
		Log:            f.log,
		Messages:       f.msgs,
	})

	var cacheable, uncached []types.FileEntry
	for _, fe := range entries {
		if store.Enabled() && fe.Size >= p.minCacheSize {
			cacheable = append(cacheable, fe)
		} else {
			uncached = append(uncached, fe)
		}
	}

	h := f.startStage(p.loadStage, 0, 0)
	valid, stale := store.Load(cacheable)
	h.Join()

	digests := make(map[string]string, len(entries))
	var totalBytes, cachedBytes int64
	for _, fe := range entries {
		totalBytes += p.readSize(fe)
	}
	for path, rec := range valid {
		digests[path] = rec.Payload
		cachedBytes += p.readSize(types.FileEntry{Size: rec.Size})
	}
	f.info.CacheHits += len(valid)

	toHash := append(stale, uncached...)
	h = f.startStage(p.hashStage, int64(len(entries)), totalBytes)
	h.IncreaseItems(int64(len(valid)))
	h.IncreaseSize(cachedBytes)
	computed := f.hashParallel(toHash, p.limit, h)
	h.Join()
	p.countProcessed(&f.info, len(computed))

	if f.env.Stop.Stopped() {
		return nil, types.ErrStopped
	}

	fresh := make([]cache.Entry[string], 0, len(cacheable))
	for _, fe := range cacheable {
		if d, ok := valid[fe.Path]; ok {
			fresh = append(fresh, d)
		} else if d, ok := computed[fe.Path]; ok {
			fresh = append(fresh, cache.NewEntry(fe, d))
		}
	}
	h = f.startStage(p.saveStage, 0, 0)
	store.Save(fresh)
	h.Join()

	for path, d := range computed {
		digests[path] = d
	}
	f.log.Debug("phase done", zap.String("phase", p.name),
		zap.Int("files", len(entries)), zap.Int("cached", len(valid)), zap.Int("hashed", len(computed)))
	return digests, nil
}

func (p phase) readSize(fe types.FileEntry) int64 {
	if p.limit > 0 {
		return min(fe.Size, p.limit)
	}
	return fe.Size
}

// hashParallel digests entries on a bounded pool. Each task checks the stop
// flag first and returns at once when it is set. Concurrent requests for the
// same inode and limit share one read.
func (f *Finder) hashParallel(entries []types.FileEntry, limit int64, h *progress.Handle) map[string]string {
	var (
		mu      sync.Mutex
		out     = make(map[string]string, len(entries))
		flights singleflight.Group
		g       errgroup.Group
	)
	g.SetLimit(f.opts.Workers)

	for _, fe := range entries {
		if f.env.Stop.Stopped() {
			break
		}
		g.Go(func() error {
			if f.env.Stop.Stopped() {
				return nil
			}
			key := fmt.Sprintf("%d:%d:%d", fe.Dev, fe.Ino, limit)
			v, err, _ := flights.Do(key, func() (any, error) {
				digest, n, err := hashFile(fe.Path, f.opts.HashType, limit)
				h.IncreaseSize(n)
				return digest, err
			})
			h.IncreaseItems(1)
			if err != nil {
				f.msgs.Warn("cannot hash %s: %v", fe.Path, err)
				return nil
			}
			mu.Lock()
			out[fe.Path] = v.(string)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

type digestKey struct {
	size   int64
	digest string
}

// regroup splits every group by digest and drops singletons. Files without a
// digest are dropped.
func regroup(groups [][]types.FileEntry, digests map[string]string) [][]types.FileEntry {
	var out [][]types.FileEntry
	for _, g := range groups {
		split := make(map[digestKey][]types.FileEntry)
		for _, fe := range g {
			d, ok := digests[fe.Path]
			if !ok {
				continue
			}
			k := digestKey{fe.Size, d}
			split[k] = append(split[k], fe)
		}
		for _, sub := range split {
			if len(sub) >= 2 {
				out = append(out, sub)
			}
		}
	}
	return out
}

func flatten(groups [][]types.FileEntry) []types.FileEntry {
	var out []types.FileEntry
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
