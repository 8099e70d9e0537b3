package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Exists reports whether path names an existing file or directory.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ModTime returns the modification time of path.
func ModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// WriteFileAtomic writes the output of fill to a temporary file next to
// path and renames it into place, so readers never observe a partial file.
func WriteFileAtomic(path string, fill func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err = fill(f); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// CopyFile copies src to dst atomically, creating dst's directory.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	return WriteFileAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// RemoveIfExists deletes path, ignoring a missing file.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// StampNewer moves the modification time of path forward until it is
// strictly after every input's modification time. Filesystems with coarse
// timestamps can otherwise give an artifact the same time as an input it
// was just derived from. Missing inputs are ignored.
func StampNewer(path string, inputs ...string) error {
	var newest time.Time
	for _, in := range inputs {
		t, err := ModTime(in)
		if err != nil {
			continue
		}
		if t.After(newest) {
			newest = t
		}
	}
	if newest.IsZero() {
		return nil
	}

	for _, step := range []time.Duration{time.Millisecond, time.Second} {
		cur, err := ModTime(path)
		if err != nil {
			return err
		}
		if cur.After(newest) {
			return nil
		}
		stamp := newest.Add(step)
		if err := os.Chtimes(path, stamp, stamp); err != nil {
			return fmt.Errorf("stamping %s: %w", path, err)
		}
	}

	cur, err := ModTime(path)
	if err != nil {
		return err
	}
	if !cur.After(newest) {
		return fmt.Errorf("stamping %s: filesystem did not record a newer time", path)
	}
	return nil
}
