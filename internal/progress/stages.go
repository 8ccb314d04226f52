package progress

import (
	"fmt"
	"slices"

	"github.com/ivoronin/dupehound/internal/types"
)

// ToolType identifies the scan a snapshot belongs to.
type ToolType int

const (
	ToolNone ToolType = iota
	ToolDuplicates
	ToolBigFiles
	ToolEmptyFiles
	ToolInvalidSymlinks
	ToolBrokenFiles
)

func (t ToolType) String() string {
	switch t {
	case ToolDuplicates:
		return "duplicates"
	case ToolBigFiles:
		return "big files"
	case ToolEmptyFiles:
		return "empty files"
	case ToolInvalidSymlinks:
		return "invalid symlinks"
	case ToolBrokenFiles:
		return "broken files"
	default:
		return "none"
	}
}

// Stage is one phase of a scan.
type Stage int

const (
	StageCollectingFiles Stage = iota
	StagePrehashCacheLoading
	StagePrehashing
	StagePrehashCacheSaving
	StageHashCacheLoading
	StageHashing
	StageHashCacheSaving
	StageCacheLoading
	StageChecking
	StageCacheSaving
)

var stageNames = map[Stage]string{
	StageCollectingFiles:     "Collecting files",
	StagePrehashCacheLoading: "Loading prehash cache",
	StagePrehashing:          "Prehashing",
	StagePrehashCacheSaving:  "Saving prehash cache",
	StageHashCacheLoading:    "Loading hash cache",
	StageHashing:             "Hashing",
	StageHashCacheSaving:     "Saving hash cache",
	StageCacheLoading:        "Loading cache",
	StageChecking:            "Checking",
	StageCacheSaving:         "Saving cache",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Collecting reports whether s is the unbounded traversal stage.
func (s Stage) Collecting() bool { return s == StageCollectingFiles }

var (
	collectOnly = []Stage{StageCollectingFiles}
	hashStages  = []Stage{
		StageCollectingFiles,
		StagePrehashCacheLoading,
		StagePrehashing,
		StagePrehashCacheSaving,
		StageHashCacheLoading,
		StageHashing,
		StageHashCacheSaving,
	}
	checkStages = []Stage{
		StageCollectingFiles,
		StageCacheLoading,
		StageChecking,
		StageCacheSaving,
	}
)

// Stages returns the ordered stage list of a tool and method.
func Stages(tool ToolType, method types.CheckingMethod) []Stage {
	switch tool {
	case ToolDuplicates:
		if method == types.MethodHash {
			return hashStages
		}
		return collectOnly
	case ToolBrokenFiles:
		return checkStages
	default:
		return collectOnly
	}
}

// MaxStageIdx is the index of the last stage of a tool and method.
func MaxStageIdx(tool ToolType, method types.CheckingMethod) int {
	return len(Stages(tool, method)) - 1
}

// StageIdx returns the index of stage within the tool's stage list, or -1.
func StageIdx(tool ToolType, method types.CheckingMethod, stage Stage) int {
	return slices.Index(Stages(tool, method), stage)
}

// Descriptor names the stage a reporter samples.
type Descriptor struct {
	Tool   ToolType
	Method types.CheckingMethod
	Stage  Stage
}
