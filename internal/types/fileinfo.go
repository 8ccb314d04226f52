// Package types provides shared types used across the dupehound codebase.
package types

import (
	"cmp"
	"path/filepath"
	"slices"
)

// FileEntry is the identity record produced by traversal.
// Modified is the modification time in unix seconds. A Symlink entry was
// reached through a followed link and carries its target's metadata.
type FileEntry struct {
	Path     string
	Size     int64
	Modified int64
	Dev      uint64
	Ino      uint64
	Nlink    uint32
	Symlink  bool
}

// Name returns the base name of the entry's path.
func (f FileEntry) Name() string { return filepath.Base(f.Path) }

// Inode identifies a file's data on a device.
type Inode struct {
	Dev uint64
	Ino uint64
}

// Inode returns the (dev, ino) pair of the entry.
func (f FileEntry) Inode() Inode { return Inode{Dev: f.Dev, Ino: f.Ino} }

// Sorted is an ordered collection that maintains sort order by a key function.
// T is the element type, K is the comparable key type.
// Once constructed, items are guaranteed to be sorted by key.
type Sorted[T any, K cmp.Ordered] struct {
	items   []T
	keyFunc func(T) K
}

// NewSorted creates a sorted collection from items using keyFunc for ordering.
// Items are copied and stably sorted at construction time.
func NewSorted[T any, K cmp.Ordered](items []T, keyFunc func(T) K) Sorted[T, K] {
	sorted := make([]T, len(items))
	copy(sorted, items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		return cmp.Compare(keyFunc(a), keyFunc(b))
	})
	return Sorted[T, K]{items: sorted, keyFunc: keyFunc}
}

// Items returns the sorted items.
func (s Sorted[T, K]) Items() []T { return s.items }

// First returns the first item (smallest key), or zero value if empty.
func (s Sorted[T, K]) First() T {
	if len(s.items) == 0 {
		var zero T
		return zero
	}
	return s.items[0]
}

// Len returns the number of items.
func (s Sorted[T, K]) Len() int { return len(s.items) }

// ByPath sorts entries by path.
func ByPath(entries []FileEntry) []FileEntry {
	return NewSorted(entries, func(f FileEntry) string { return f.Path }).Items()
}

// Semaphore implements a counting semaphore using a buffered channel.
// It limits concurrent access to a resource by blocking when the limit is reached.
type Semaphore chan struct{}

// NewSemaphore creates a semaphore that allows up to n concurrent acquisitions.
func NewSemaphore(n int) Semaphore { return make(chan struct{}, n) }

// Acquire blocks until a slot is available, then claims it.
func (s Semaphore) Acquire() { s <- struct{}{} }

// Release frees a slot, unblocking one waiting Acquire call.
func (s Semaphore) Release() { <-s }
