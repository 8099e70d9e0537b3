// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FindFilesByExtension searches the given root path for all files ending
// with the specified extension. Sub-directories are walked only when
// recursive is set. The result is sorted.
func FindFilesByExtension(rootPath string, extension string, recursive bool) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != rootPath && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// ResolveDocument turns a file or directory argument into one document
// path. A directory must contain either preferred or exactly one file with
// the given extension.
func ResolveDocument(path, preferred, extension string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return path, nil
	}
	candidate := filepath.Join(path, preferred)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	files, err := FindFilesByExtension(path, extension, false)
	if err != nil {
		return "", err
	}
	switch len(files) {
	case 0:
		return "", fmt.Errorf("no %s document found in %s", extension, path)
	case 1:
		return files[0], nil
	default:
		return "", fmt.Errorf("%d %s documents found in %s; name one or provide %s", len(files), extension, path, preferred)
	}
}
