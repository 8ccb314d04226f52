// Package cache persists per-file computation results keyed by file identity.
//
// A cache file is a BoltDB database holding a format version and one record
// per path. Records are valid only while the file's size and modification time
// are unchanged. Each scan loads the whole file once and rewrites it once:
// the new database is built at <file>.new and renamed over the old one.
package cache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/ivoronin/dupehound/internal/types"
)

var (
	metaBucket    = []byte("meta")
	entriesBucket = []byte("entries")
	versionKey    = []byte("version")
)

const openTimeout = 1 * time.Second

// ID names a cache file. Params hold every tunable the payload depends on so
// incompatible configurations never share a file.
type ID struct {
	Tool    string
	Params  []string
	Version uint8
}

// FileName returns cache_<tool>_<params>_<version>.bin.
func (id ID) FileName() string {
	parts := append([]string{"cache", id.Tool}, id.Params...)
	parts = append(parts, fmt.Sprintf("%d", id.Version))
	return sanitize(strings.Join(parts, "_")) + ".bin"
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '-'
		}
		return r
	}, name)
}

// Options configure a Store.
type Options struct {
	Dir            string // empty disables the cache
	Enabled        bool
	SaveJSON       bool // also write a .json mirror
	DeleteOutdated bool // drop records of files that no longer exist
	Log            *zap.Logger
	Messages       *types.Messages
}

// Entry is one cached record.
type Entry[T any] struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Modified int64  `json:"modified_date"`
	Payload  T      `json:"payload"`
}

// NewEntry builds a record for fe.
func NewEntry[T any](fe types.FileEntry, payload T) Entry[T] {
	return Entry[T]{Path: fe.Path, Size: fe.Size, Modified: fe.Modified, Payload: payload}
}

// Matches reports whether the record still describes fe.
func (e Entry[T]) Matches(fe types.FileEntry) bool {
	return e.Size == fe.Size && e.Modified == fe.Modified
}

// Store is a cache of payloads of type T.
// Load and Save are called from one goroutine; the map returned by Load is a
// read-only snapshot that workers may share.
type Store[T any] struct {
	id     ID
	opts   Options
	path   string
	log    *zap.Logger
	msgs   *types.Messages
	loaded map[string]Entry[T]
	stale  map[string]struct{}
	read   bool
}

// Open returns a store for id. It does not touch the filesystem.
func Open[T any](id ID, opts Options) *Store[T] {
	s := &Store[T]{
		id:    id,
		opts:  opts,
		log:   opts.Log,
		msgs:  opts.Messages,
		stale: make(map[string]struct{}),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.msgs == nil {
		s.msgs = types.NewMessages()
	}
	if s.Enabled() {
		s.path = filepath.Join(opts.Dir, id.FileName())
	}
	s.log = s.log.With(zap.String("cache", id.FileName()))
	return s
}

// Enabled reports whether the store reads and writes a file.
func (s *Store[T]) Enabled() bool { return s.opts.Enabled && s.opts.Dir != "" }

// Path returns the cache file path, empty when disabled.
func (s *Store[T]) Path() string { return s.path }

// Load splits entries into those with a valid cached record and those that
// must be recomputed. A missing, corrupt or outdated cache file counts as empty.
func (s *Store[T]) Load(entries []types.FileEntry) (valid map[string]Entry[T], stale []types.FileEntry) {
	valid = make(map[string]Entry[T])
	if !s.Enabled() {
		return valid, entries
	}
	s.ensureRead()

	for _, fe := range entries {
		if rec, ok := s.loaded[fe.Path]; ok && rec.Matches(fe) {
			valid[fe.Path] = rec
			continue
		}
		if _, ok := s.loaded[fe.Path]; ok {
			s.stale[fe.Path] = struct{}{}
		}
		stale = append(stale, fe)
	}
	s.log.Debug("cache loaded", zap.Int("valid", len(valid)), zap.Int("stale", len(stale)))
	return valid, stale
}

// Save rewrites the cache with entries merged over the untouched records of
// the last Load. Failures are reported as warnings.
func (s *Store[T]) Save(entries []Entry[T]) {
	if !s.Enabled() {
		return
	}
	s.ensureRead()

	merged := make(map[string]Entry[T], len(s.loaded)+len(entries))
	for p, rec := range s.loaded {
		if _, isStale := s.stale[p]; !isStale {
			merged[p] = rec
		}
	}
	fresh := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		merged[e.Path] = e
		fresh[e.Path] = struct{}{}
	}
	if s.opts.DeleteOutdated {
		s.dropOutdated(merged, fresh)
	}

	if err := s.write(merged); err != nil {
		s.msgs.Warn("cannot save cache %s: %v", s.path, err)
		s.log.Warn("cache save failed", zap.Error(err))
		return
	}
	if s.opts.SaveJSON {
		if err := s.writeJSON(merged); err != nil {
			s.msgs.Warn("cannot save json cache mirror: %v", err)
		}
	}
	s.loaded = merged
	s.stale = make(map[string]struct{})
	s.log.Debug("cache saved", zap.Int("entries", len(merged)))
}

func (s *Store[T]) dropOutdated(merged map[string]Entry[T], fresh map[string]struct{}) {
	removed := 0
	for p := range merged {
		if _, ok := fresh[p]; ok {
			continue
		}
		if _, err := os.Lstat(p); errors.Is(err, os.ErrNotExist) {
			delete(merged, p)
			removed++
		}
	}
	if removed > 0 {
		s.msgs.Info("removed %d outdated entries from %s", removed, s.id.FileName())
	}
}

func (s *Store[T]) ensureRead() {
	if s.read {
		return
	}
	s.read = true

	loaded, err := s.readAll()
	switch {
	case err == nil:
		s.loaded = loaded
	case errors.Is(err, os.ErrNotExist):
		s.loaded = map[string]Entry[T]{}
	case errors.Is(err, errVersionMismatch):
		s.msgs.Info("cache %s was written by another version and will be rebuilt", s.id.FileName())
		s.loaded = map[string]Entry[T]{}
	default:
		s.msgs.Warn("cache %s is unreadable and will be rebuilt: %v", s.path, err)
		s.log.Warn("cache load failed", zap.Error(err))
		s.loaded = map[string]Entry[T]{}
	}
}

var errVersionMismatch = errors.New("cache version mismatch")

// readAll loads every record. bbolt asserts page consistency with panics and
// faults on truncated mmaps; both surface here as errors.
func (s *Store[T]) readAll() (_ map[string]Entry[T], err error) {
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("corrupt database: %v", r)
		}
	}()

	if _, err := os.Stat(s.path); err != nil {
		return nil, err
	}
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{ReadOnly: true, Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = db.Close() }()

	out := make(map[string]Entry[T])
	err = db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if meta == nil {
			return errors.New("missing meta bucket")
		}
		if v := meta.Get(versionKey); len(v) != 1 || v[0] != s.id.Version {
			return errVersionMismatch
		}
		b := tx.Bucket(entriesBucket)
		if b == nil {
			return errors.New("missing entries bucket")
		}
		return b.ForEach(func(k, v []byte) error {
			var e Entry[T]
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&e); err != nil {
				return fmt.Errorf("decode %q: %w", k, err)
			}
			out[string(k)] = e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// write builds the new database next to the old one and swaps it in.
func (s *Store[T]) write(entries map[string]Entry[T]) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	newPath := s.path + ".new"
	_ = os.Remove(newPath)

	db, err := bolt.Open(newPath, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return fmt.Errorf("create new cache (locked by another instance?): %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucket(metaBucket)
		if err != nil {
			return err
		}
		if err := meta.Put(versionKey, []byte{s.id.Version}); err != nil {
			return err
		}
		b, err := tx.CreateBucket(entriesBucket)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		for _, p := range slices.Sorted(maps.Keys(entries)) {
			buf.Reset()
			e := entries[p]
			if err := gob.NewEncoder(&buf).Encode(&e); err != nil {
				return fmt.Errorf("encode %q: %w", p, err)
			}
			if err := b.Put([]byte(p), slices.Clone(buf.Bytes())); err != nil {
				return err
			}
		}
		return nil
	})
	if closeErr := db.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(newPath)
		return err
	}
	// Only replace after the new database closed cleanly.
	return os.Rename(newPath, s.path)
}
