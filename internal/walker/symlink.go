package walker

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/ivoronin/dupehound/internal/types"
)

// MaxSymlinkHops bounds symlink chains; longer chains are treated as loops.
const MaxSymlinkHops = 20

// LinkProblem classifies an unresolvable symlink.
type LinkProblem int

const (
	LinkOK LinkProblem = iota
	LinkNonExistentTarget
	LinkInfiniteRecursion
)

func (p LinkProblem) String() string {
	switch p {
	case LinkNonExistentTarget:
		return "target does not exist"
	case LinkInfiniteRecursion:
		return "too many levels of symbolic links"
	default:
		return "ok"
	}
}

// SymlinkEntry is an invalid symlink found by CollectSymlinks.
// Destination is the last path the chain resolved to.
type SymlinkEntry struct {
	types.FileEntry
	Destination string
	Problem     LinkProblem
}

// ResolveSymlink follows the chain starting at the symlink path for at most
// MaxSymlinkHops hops. err is set only for failures other than a missing target.
func ResolveSymlink(path string) (dest string, problem LinkProblem, err error) {
	cur := path
	for range MaxSymlinkHops {
		target, err := os.Readlink(cur)
		if err != nil {
			return cur, LinkOK, err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(cur), target)
		}

		info, err := os.Lstat(target)
		if errors.Is(err, os.ErrNotExist) {
			return target, LinkNonExistentTarget, nil
		}
		if err != nil {
			return target, LinkOK, err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return target, LinkOK, nil
		}
		cur = target
	}
	return cur, LinkInfiniteRecursion, nil
}
