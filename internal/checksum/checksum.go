// Package checksum computes content digests of single files.
package checksum

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"

	"github.com/cespare/xxhash/v2"
)

// MaxBufferSize caps the read buffer used while hashing a file.
const MaxBufferSize = 1_000_000

// ErrNotFound is returned when the file to hash does not exist.
var ErrNotFound = errors.New("file not found")

// Algorithm names a supported digest.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA256 Algorithm = "sha256"
	XXHash Algorithm = "xxhash"
)

// Valid reports whether a is a known algorithm.
func (a Algorithm) Valid() bool {
	switch a {
	case MD5, SHA256, XXHash:
		return true
	}
	return false
}

// Engine hashes files with a fixed algorithm.
type Engine struct {
	algorithm Algorithm
}

// NewEngine creates an engine for the given algorithm. An empty algorithm
// selects MD5, which is what existing cache files contain.
func NewEngine(algorithm Algorithm) (*Engine, error) {
	if algorithm == "" {
		algorithm = MD5
	}
	if !algorithm.Valid() {
		return nil, fmt.Errorf("unknown checksum algorithm: %s", algorithm)
	}
	return &Engine{algorithm: algorithm}, nil
}

// Algorithm returns the digest used by the engine.
func (e *Engine) Algorithm() Algorithm {
	return e.algorithm
}

func (e *Engine) newHash() hash.Hash {
	switch e.algorithm {
	case SHA256:
		return sha256.New()
	case XXHash:
		return xxhash.New()
	default:
		return md5.New()
	}
}

// Sum returns the lower-case hex digest of the file at path. The file is
// read to EOF through a buffer of min(size, MaxBufferSize) bytes.
func (e *Engine) Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	// The struct wrapper hides (*os.File).WriteTo so the copy goes through buf.
	buf := make([]byte, bufferSize(info.Size()))
	h := e.newHash()
	if _, err := io.CopyBuffer(h, struct{ io.Reader }{f}, buf); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// bufferSize clamps the buffer to the file size.
func bufferSize(size int64) int {
	if size > MaxBufferSize {
		return MaxBufferSize
	}
	if size < 1 {
		return 1
	}
	return int(size)
}
