// Package brokenfiles finds archives that cannot be opened or fully
// decompressed.
//
// Checked types are zip, gzip and gzip-compressed tar. Results are cached by
// path with the failure reason as payload (empty for a healthy archive), so
// unchanged archives are not read again.
package brokenfiles

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ivoronin/dupehound/internal/cache"
	"github.com/ivoronin/dupehound/internal/filter"
	"github.com/ivoronin/dupehound/internal/progress"
	"github.com/ivoronin/dupehound/internal/types"
	"github.com/ivoronin/dupehound/internal/walker"
)

const cacheVersion = 1

// Entry is a broken archive.
type Entry struct {
	types.FileEntry
	Reason string
}

// Options configure a search.
type Options struct {
	Workers             int
	UseCache            bool
	SaveJSONCache       bool
	DeleteOutdatedCache bool
	CacheDir            string // empty disables caching
	Stop                *types.StopFlag
	Progress            chan<- progress.Data
	Log                 *zap.Logger
}

// Result lists the broken archives sorted by path.
type Result struct {
	Files     []Entry
	Checked   int // archives examined, cached ones included
	CacheHits int
	Elapsed   time.Duration
	Messages  *types.Messages
}

// Find walks f's roots and checks every supported archive.
func Find(f *filter.PathFilter, opts Options) (*Result, error) {
	if f == nil || len(f.Roots()) == 0 {
		return nil, types.ErrNoIncludedDirectories
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("brokenfiles")
	start := time.Now()
	res := &Result{Messages: types.NewMessages()}

	h := startStage(opts, progress.StageCollectingFiles, 0, 0, log)
	w := walker.New(f, walker.Options{Workers: opts.Workers, Accept: Supported, Stop: opts.Stop, Progress: h, Log: log})
	walked, err := walker.Collect(w, func(types.FileEntry) struct{} { return struct{}{} })
	h.Join()
	if err != nil {
		return nil, err
	}
	res.Messages.AddWarnings(walked.Warnings)
	archives := walked.Grouped[struct{}{}]

	store := cache.Open[string](cache.ID{Tool: "broken", Params: []string{"archives"}, Version: cacheVersion}, cache.Options{
		Dir:            opts.CacheDir,
		Enabled:        opts.UseCache,
		SaveJSON:       opts.SaveJSONCache,
		DeleteOutdated: opts.DeleteOutdatedCache,
		Log:            log,
		Messages:       res.Messages,
	})

	h = startStage(opts, progress.StageCacheLoading, 0, 0, log)
	valid, toCheck := store.Load(archives)
	h.Join()
	res.CacheHits = len(valid)

	var totalBytes, cachedBytes int64
	for _, fe := range archives {
		totalBytes += fe.Size
	}
	reasons := make(map[string]string, len(archives))
	for path, rec := range valid {
		reasons[path] = rec.Payload
		cachedBytes += rec.Size
	}

	h = startStage(opts, progress.StageChecking, int64(len(archives)), totalBytes, log)
	h.IncreaseItems(int64(len(valid)))
	h.IncreaseSize(cachedBytes)
	checked := checkParallel(toCheck, opts, h, res.Messages)
	h.Join()
	if opts.Stop.Stopped() {
		return nil, types.ErrStopped
	}

	fresh := make([]cache.Entry[string], 0, len(archives))
	for _, rec := range valid {
		fresh = append(fresh, rec)
	}
	for _, fe := range toCheck {
		if reason, ok := checked[fe.Path]; ok {
			reasons[fe.Path] = reason
			fresh = append(fresh, cache.NewEntry(fe, reason))
		}
	}
	h = startStage(opts, progress.StageCacheSaving, 0, 0, log)
	store.Save(fresh)
	h.Join()

	for _, fe := range types.ByPath(archives) {
		reason, ok := reasons[fe.Path]
		if !ok {
			continue
		}
		res.Checked++
		if reason != "" {
			res.Files = append(res.Files, Entry{FileEntry: fe, Reason: reason})
		}
	}
	res.Elapsed = time.Since(start)
	log.Debug("check finished", zap.Int("checked", res.Checked), zap.Int("broken", len(res.Files)))
	return res, nil
}

// checkParallel returns the failure reason of every archive it could read.
// Archives that cannot be opened at all are reported as warnings instead.
func checkParallel(entries []types.FileEntry, opts Options, h *progress.Handle, msgs *types.Messages) map[string]string {
	var (
		mu  sync.Mutex
		out = make(map[string]string, len(entries))
		g   errgroup.Group
	)
	g.SetLimit(opts.Workers)

	for _, fe := range entries {
		if opts.Stop.Stopped() {
			break
		}
		g.Go(func() error {
			if opts.Stop.Stopped() {
				return nil
			}
			defer h.IncreaseItems(1)
			defer h.IncreaseSize(fe.Size)

			if err := readable(fe.Path); err != nil {
				msgs.Warn("cannot open %s: %v", fe.Path, err)
				return nil
			}
			var reason string
			if err := checkerFor(fe.Path)(fe.Path); err != nil {
				reason = err.Error()
			}
			mu.Lock()
			out[fe.Path] = reason
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func readable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

func startStage(opts Options, stage progress.Stage, items, bytes int64, log *zap.Logger) *progress.Handle {
	return progress.Start(opts.Progress, progress.Descriptor{Tool: progress.ToolBrokenFiles, Stage: stage}, items, bytes, log)
}
