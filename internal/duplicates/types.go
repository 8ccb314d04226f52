package duplicates

import (
	"time"

	"go.uber.org/zap"

	"github.com/ivoronin/dupehound/internal/hasher"
	"github.com/ivoronin/dupehound/internal/progress"
	"github.com/ivoronin/dupehound/internal/types"
)

// Entry is a file enriched with its grouping digest (empty for non-hash methods).
type Entry struct {
	types.FileEntry
	Hash string
}

// RefGroup is a duplicate group in reference mode.
type RefGroup struct {
	Kept   Entry
	Others []Entry
}

// Options tune the engine.
type Options struct {
	Method              types.CheckingMethod
	HashType            hasher.Type
	CaseSensitiveNames  bool
	IgnoreHardLinks     bool // paths sharing an inode count as one file
	FollowSymlinks      bool
	UseCache            bool
	UsePrehashCache     bool
	SaveJSONCache       bool
	DeleteOutdatedCache bool
	Workers             int

	PrehashSize             int64 // bytes hashed in the first phase
	MinCacheFileSize        int64 // smaller files are not kept in the full hash cache
	MinPrehashCacheFileSize int64 // smaller files are not kept in the prehash cache
}

// Default thresholds.
const (
	DefaultPrehashSize      = 4 * 1024
	DefaultMinCacheFileSize = 256 * 1024
)

// DefaultOptions returns a hash scan with caching enabled.
func DefaultOptions() Options {
	return Options{
		Method:           types.MethodHash,
		HashType:         hasher.XXH64,
		UseCache:         true,
		UsePrehashCache:  true,
		Workers:          4,
		PrehashSize:      DefaultPrehashSize,
		MinCacheFileSize: DefaultMinCacheFileSize,
	}
}

// Env carries the process-wide collaborators of a scan.
type Env struct {
	CacheDir string // empty disables caching
	Stop     *types.StopFlag
	Progress chan<- progress.Data // may be nil
	Log      *zap.Logger
}

// Info aggregates the counters of a finished scan.
type Info struct {
	FilesFound      int   // files accepted by the walker
	GroupsFound     int   // surfaced groups
	DuplicatesFound int   // members beyond the kept one in every group
	LostSpace       int64 // bytes reclaimable by keeping one file per group
	Elapsed         time.Duration

	PrehashedFiles int // hashed in the first phase
	HashedFiles    int // hashed in the second phase
	CacheHits      int
}

// Result is the outcome of a completed scan.
// Exactly one of Groups and RefGroups is populated.
type Result struct {
	Method    types.CheckingMethod
	Groups    [][]Entry
	RefGroups []RefGroup
	Info      Info
	Messages  *types.Messages
}

// FileGroups converts the result into groups for the action executor.
func (r *Result) FileGroups() []types.Group {
	if r.RefGroups != nil {
		out := make([]types.Group, 0, len(r.RefGroups))
		for _, rg := range r.RefGroups {
			kept := rg.Kept.FileEntry
			out = append(out, types.Group{Kept: &kept, Members: fileEntries(rg.Others)})
		}
		return out
	}
	out := make([]types.Group, 0, len(r.Groups))
	for _, g := range r.Groups {
		out = append(out, types.Group{Members: fileEntries(g)})
	}
	return out
}

func fileEntries(entries []Entry) []types.FileEntry {
	out := make([]types.FileEntry, len(entries))
	for i, e := range entries {
		out[i] = e.FileEntry
	}
	return out
}
