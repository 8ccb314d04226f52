//go:build unix

// Package actions applies a deletion or retention policy to duplicate groups.
//
// # Selection
//
// Candidates are the group's Members sorted by path. The policy picks the
// targets among them; ties on time or size resolve to the first by path.
// Group.Kept (reference mode) is never a target.
//
// # Safety Mechanisms
//
//   - A target whose size or mtime changed since the scan is skipped
//   - A target whose data a surviving followed symlink points to is skipped
//   - Hard-link replacement locks the target and swaps it in with a rename
//   - Dry-run reports targets without touching the filesystem
//   - One failure never stops the remaining members or groups
package actions

import (
	"errors"
	"os"
	"path/filepath"
	"slices"

	"go.uber.org/zap"

	"github.com/ivoronin/dupehound/internal/types"
)

var (
	errModified = errors.New("file modified since scan")
	errAliased  = errors.New("data referenced by a kept symlink")
)

// Options tune the executor.
type Options struct {
	DryRun bool
	Log    *zap.Logger
}

// Executor applies one DeleteMethod.
type Executor struct {
	method DeleteMethod
	dryRun bool
	log    *zap.Logger
}

// New creates an Executor.
func New(method DeleteMethod, opts Options) *Executor {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{method: method, dryRun: opts.DryRun, log: log.Named("actions")}
}

// Apply processes every group independently.
func (e *Executor) Apply(groups []types.Group) Report {
	var rep Report
	if e.method == None {
		return rep
	}
	for _, g := range groups {
		candidates := types.ByPath(g.Members)
		if e.method == HardLink {
			e.link(g.Kept, candidates, &rep)
			continue
		}
		targets := selectTargets(e.method, candidates)
		aliased := linkedInodes(g.Kept, candidates, targets)
		for _, target := range targets {
			if _, ok := aliased[target.Inode()]; ok && !target.Symlink {
				e.fail(&rep, target.Path, errAliased)
				continue
			}
			e.delete(target, &rep)
		}
	}
	e.log.Debug("actions applied", zap.Stringer("method", e.method), zap.Bool("dry_run", e.dryRun),
		zap.Int("deleted", len(rep.Deleted)), zap.Int("linked", len(rep.Linked)), zap.Int("failed", len(rep.Failed)))
	return rep
}

// selectTargets returns the members the policy removes. candidates must be
// sorted by path.
func selectTargets(method DeleteMethod, candidates []types.FileEntry) []types.FileEntry {
	if len(candidates) == 0 {
		return nil
	}
	var pick int
	switch method {
	case Delete:
		return candidates
	case AllExceptNewest, OneNewest:
		pick = indexOf(candidates, func(a, b types.FileEntry) bool { return a.Modified > b.Modified })
	case AllExceptOldest, OneOldest:
		pick = indexOf(candidates, func(a, b types.FileEntry) bool { return a.Modified < b.Modified })
	case AllExceptBiggest, OneBiggest:
		pick = indexOf(candidates, func(a, b types.FileEntry) bool { return a.Size > b.Size })
	case AllExceptSmallest, OneSmallest:
		pick = indexOf(candidates, func(a, b types.FileEntry) bool { return a.Size < b.Size })
	default:
		return nil
	}

	switch method {
	case OneNewest, OneOldest, OneBiggest, OneSmallest:
		return []types.FileEntry{candidates[pick]}
	default:
		return slices.Delete(slices.Clone(candidates), pick, pick+1)
	}
}

// indexOf returns the first index whose entry beats every other under better.
func indexOf(entries []types.FileEntry, better func(a, b types.FileEntry) bool) int {
	best := 0
	for i := 1; i < len(entries); i++ {
		if better(entries[i], entries[best]) {
			best = i
		}
	}
	return best
}

// linkedInodes returns the inodes reached through followed symlinks that
// survive the policy.
func linkedInodes(kept *types.FileEntry, candidates, targets []types.FileEntry) map[types.Inode]struct{} {
	removed := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		removed[t.Path] = struct{}{}
	}
	out := make(map[types.Inode]struct{})
	if kept != nil && kept.Symlink {
		out[kept.Inode()] = struct{}{}
	}
	for _, c := range candidates {
		if _, ok := removed[c.Path]; !ok && c.Symlink {
			out[c.Inode()] = struct{}{}
		}
	}
	return out
}

// delete removes target. For a followed symlink only the link goes.
func (e *Executor) delete(target types.FileEntry, rep *Report) {
	stat := os.Lstat
	if target.Symlink {
		stat = os.Stat
	}
	info, err := stat(target.Path)
	if err == nil && !unchanged(target, info) {
		err = errModified
	}
	if err == nil && !e.dryRun {
		err = os.Remove(target.Path)
	}
	if err != nil {
		e.fail(rep, target.Path, err)
		return
	}
	rep.Deleted = append(rep.Deleted, target.Path)
	if !target.Symlink {
		rep.FreedBytes += target.Size
	}
}

// link replaces every candidate except the source with a hard link to it.
// The source is kept when present, else the first candidate by path.
func (e *Executor) link(kept *types.FileEntry, candidates []types.FileEntry, rep *Report) {
	targets := candidates
	var source types.FileEntry
	switch {
	case kept != nil:
		source = *kept
	case len(candidates) > 0:
		source, targets = candidates[0], candidates[1:]
	default:
		return
	}

	// os.Link does not follow a symlink source.
	var err error
	sourcePath := source.Path
	if source.Symlink {
		sourcePath, err = filepath.EvalSymlinks(source.Path)
	}
	var sourceInfo os.FileInfo
	if err == nil {
		sourceInfo, err = os.Stat(sourcePath)
	}
	if err == nil && !unchanged(source, sourceInfo) {
		err = errModified
	}
	if err != nil {
		for _, t := range targets {
			e.fail(rep, t.Path, err)
		}
		return
	}

	for _, target := range targets {
		if target.Inode() == source.Inode() {
			continue
		}
		if err := e.replaceWithLink(sourcePath, sourceInfo, target); err != nil {
			e.fail(rep, target.Path, err)
			continue
		}
		rep.Linked = append(rep.Linked, target.Path)
		if !target.Symlink {
			rep.FreedBytes += target.Size
		}
	}
}

func (e *Executor) replaceWithLink(source string, sourceInfo os.FileInfo, target types.FileEntry) error {
	f, err := lockFile(target.Path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !unchanged(target, info) {
		return errModified
	}
	if os.SameFile(info, sourceInfo) {
		return nil
	}
	if e.dryRun {
		return nil
	}
	return CreateHardlink(source, target.Path)
}

func (e *Executor) fail(rep *Report, path string, err error) {
	e.log.Debug("action failed", zap.String("path", path), zap.Error(err))
	rep.Failed = append(rep.Failed, Failure{Path: path, Reason: err.Error()})
}

// unchanged reports whether the live stat still matches the scan.
func unchanged(fe types.FileEntry, info os.FileInfo) bool {
	return info.Mode().IsRegular() && info.Size() == fe.Size && info.ModTime().Unix() == fe.Modified
}
