package walker

import (
	"os"
	"syscall"

	"github.com/ivoronin/dupehound/internal/types"
)

// newFileEntry creates a FileEntry from os.FileInfo and path.
func newFileEntry(path string, info os.FileInfo) types.FileEntry {
	stat := info.Sys().(*syscall.Stat_t)
	return types.FileEntry{
		Path:     path,
		Size:     info.Size(),
		Modified: info.ModTime().Unix(),
		Dev:      uint64(stat.Dev), //nolint:unconvert // platform-dependent type
		Ino:      stat.Ino,
		Nlink:    uint32(stat.Nlink),
	}
}

// deviceOf returns the device number of info.
func deviceOf(info os.FileInfo) uint64 {
	return uint64(info.Sys().(*syscall.Stat_t).Dev) //nolint:unconvert // platform-dependent type
}
