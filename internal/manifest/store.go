package manifest

import (
	"context"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vk/hiermerge/internal/config"
	"github.com/vk/hiermerge/internal/ctxlog"
)

// DefaultStoreSize bounds the number of parsed manifests kept in memory.
const DefaultStoreSize = 1024

type storeEntry struct {
	size    int64
	modTime time.Time
	roots   config.Roots
	m       *Manifest
	deps    DepSet
}

// Store memoizes parsed manifests. A shared sub-module is referenced from
// many parents; each reference would otherwise re-read and re-parse the
// same file. Entries are revalidated against the file's size and
// modification time on every lookup. Store is safe for concurrent use.
type Store struct {
	cache *lru.Cache[string, storeEntry]
}

// NewStore creates a store holding at most size manifests.
func NewStore(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultStoreSize
	}
	cache, err := lru.New[string, storeEntry](size)
	if err != nil {
		return nil, err
	}
	return &Store{cache: cache}, nil
}

// Load returns the manifest at file and its DepSet under roots. The DepSet
// is a private copy the caller may mutate.
func (s *Store) Load(ctx context.Context, file string, roots config.Roots) (*Manifest, DepSet, error) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, nil, err
	}

	if e, ok := s.cache.Get(file); ok && e.size == info.Size() && e.modTime.Equal(info.ModTime()) && e.roots == roots {
		ctxlog.FromContext(ctx).Debug("Manifest served from memory.", "path", file)
		return e.m, e.deps.Clone(), nil
	}

	m, deps, err := Read(ctx, file, roots)
	if err != nil {
		s.cache.Remove(file)
		return nil, nil, err
	}
	s.cache.Add(file, storeEntry{
		size:    info.Size(),
		modTime: info.ModTime(),
		roots:   roots,
		m:       m,
		deps:    deps,
	})
	return m, deps.Clone(), nil
}

// Forget drops any memoized copy of file.
func (s *Store) Forget(file string) {
	s.cache.Remove(file)
}
