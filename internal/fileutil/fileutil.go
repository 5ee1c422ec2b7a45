package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned when a stream exceeds the configured size limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// Saved describes a file written by SaveStream.
type Saved struct {
	Path   string
	Size   int64
	SHA256 string
}

// SaveStream writes r to dir/name, hashing as it copies. A positive limit caps
// the number of bytes accepted; the partial file is removed when the limit is
// exceeded or the copy fails.
func SaveStream(r io.Reader, dir, name string, limit int64) (Saved, error) {
	if name == "" || filepath.Base(name) != name {
		return Saved{}, fmt.Errorf("invalid file name %q", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Saved{}, fmt.Errorf("create directory: %w", err)
	}
	dst := filepath.Join(dir, name)
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return Saved{}, err
	}
	defer func() {
		_ = out.Close()
	}()

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, hasher), src)
	if err != nil {
		_ = os.Remove(dst)
		return Saved{}, err
	}
	if limit > 0 && written > limit {
		_ = os.Remove(dst)
		return Saved{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return Saved{}, err
	}
	return Saved{Path: dst, Size: written, SHA256: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// DigestFile returns the hex SHA256 and size of the file at path.
func DigestFile(path string) (string, int64, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer in.Close()

	hasher := sha256.New()
	n, err := io.Copy(hasher, in)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}
