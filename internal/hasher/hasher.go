// Package hasher computes content digests of whole files or file prefixes.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// blockSize is the read buffer size for file I/O (128KB)
const blockSize = 128 * 1024

// Type selects a digest algorithm.
type Type int

const (
	XXH64 Type = iota
	SHA256
	CRC32
)

func (t Type) String() string {
	switch t {
	case XXH64:
		return "xxh64"
	case SHA256:
		return "sha256"
	case CRC32:
		return "crc32"
	default:
		return fmt.Sprintf("hash(%d)", int(t))
	}
}

// ParseType parses an algorithm name as printed by String.
func ParseType(s string) (Type, error) {
	for _, t := range []Type{XXH64, SHA256, CRC32} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown hash type %q (want xxh64, sha256 or crc32)", s)
}

// New returns a fresh digest of type t.
func (t Type) New() hash.Hash {
	switch t {
	case SHA256:
		return sha256.New()
	case CRC32:
		return crc32.NewIEEE()
	default:
		return xxhash.New()
	}
}

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, blockSize)
		return &b
	},
}

// File hashes the first limit bytes of path, or the whole file when limit <= 0.
// Returns the hex digest and the number of bytes read.
func File(path string, t Type, limit int64) (digest string, bytesRead int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()

	return Reader(f, t, limit)
}

// Reader hashes up to limit bytes of r (all of r when limit <= 0).
func Reader(r io.Reader, t Type, limit int64) (digest string, bytesRead int64, err error) {
	if limit > 0 {
		r = io.LimitReader(r, limit)
	}

	bp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bp)

	h := t.New()
	n, err := io.CopyBuffer(h, r, *bp)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
