//go:build unix

package actions

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	tmpSuffix = ".dupehound.tmp"

	// orphanedTmpMaxAge is the minimum age for a temp link to be considered
	// left over from an interrupted run.
	orphanedTmpMaxAge = 1 * time.Minute
)

var errLocked = errors.New("file in use (locked by another process)")

// CreateHardlink replaces target with a hard link to source by linking to a
// temp name in the target's directory and renaming it over the target.
func CreateHardlink(source, target string) error {
	tmp := target + tmpSuffix

	err := os.Link(source, tmp)
	if errors.Is(err, syscall.EEXIST) {
		if cleanupErr := tryCleanupOrphanedTmp(tmp, orphanedTmpMaxAge); cleanupErr != nil {
			return fmt.Errorf("tmp file exists and cannot be cleaned: %w", cleanupErr)
		}
		err = os.Link(source, tmp)
	}
	if err != nil {
		return err
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// lockFile opens path and takes a non-blocking exclusive advisory lock.
// Closing the file releases the lock.
func lockFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errLocked
		}
		return nil, fmt.Errorf("flock: %w", err)
	}
	return f, nil
}

// tryCleanupOrphanedTmp removes a leftover temp link. Only links older than
// maxAge are touched, and a regular file is removed only while another link to
// its data exists.
func tryCleanupOrphanedTmp(path string, maxAge time.Duration) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("lstat: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	if info.ModTime().After(cutoff) {
		return fmt.Errorf("file too recent (mtime %v, cutoff %v)", info.ModTime(), cutoff)
	}

	mode := info.Mode()
	if mode&os.ModeSymlink != 0 {
		return os.Remove(path)
	}
	if !mode.IsRegular() {
		return fmt.Errorf("not a regular file or symlink (mode %v)", mode)
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("cannot get syscall.Stat_t")
	}
	// nlink == 1 means this is the only copy of the data.
	if stat.Nlink <= 1 {
		return fmt.Errorf("nlink=%d, may be only copy of data", stat.Nlink)
	}
	return os.Remove(path)
}
