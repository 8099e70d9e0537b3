// Package manifest records, for every cached artifact, the external inputs
// it was derived from, and reads that record back as a DepSet for exact
// dependency comparison by the cache resolver.
//
// A manifest is written once, next to the artifact it describes, and never
// mutated: a rebuild writes a brand-new manifest.
package manifest

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vk/hiermerge/internal/config"
	"github.com/vk/hiermerge/internal/ctxlog"
	"github.com/vk/hiermerge/internal/fsutil"
	"github.com/vk/hiermerge/internal/modcache"
)

// SchemaVersion is bumped whenever the manifest format changes; manifests
// with another version read as unusable.
const SchemaVersion = 1

// Entry is one recorded input. Root names the root binding Path is relative
// to; an empty Root means Path is absolute.
type Entry struct {
	Root string `toml:"root,omitempty"`
	Path string `toml:"path"`
}

// Manifest is the sidecar record of a cached artifact.
type Manifest struct {
	Schema   int       `toml:"schema"`
	Module   string    `toml:"module"`
	Region   string    `toml:"region"`
	Template string    `toml:"template"`
	Initial  string    `toml:"initial"`
	Created  time.Time `toml:"created"`
	Inputs   []Entry   `toml:"input"`
}

// Sources lists the artifacts a group of directives depended on: the
// resolved artifact of every non-wires-only BUILD child and the artifact of
// every non-wires-only MERGE child. resolved supplies BUILD artifacts.
func Sources(directives []*config.Directive, resolved map[*config.Directive]string) []string {
	var out []string
	for _, d := range directives {
		if d.OnlyWires {
			continue
		}
		switch d.Kind {
		case config.KindBuild:
			if p := resolved[d]; p != "" {
				out = append(out, p)
			}
		case config.KindMerge:
			if d.ArtifactRef != "" {
				out = append(out, d.ArtifactRef)
			}
		}
	}
	return out
}

// Write records inputs for the artifact of key in targetDir, relative to
// header's roots where possible. Inputs that cannot be turned into an entry
// are logged and skipped. targetDir is created if absent.
func Write(ctx context.Context, targetDir string, key modcache.Key, header *config.Header, inputs []string) (*Manifest, error) {
	logger := ctxlog.FromContext(ctx)

	m := &Manifest{
		Schema:   SchemaVersion,
		Module:   key.Module,
		Region:   key.Region,
		Template: header.TemplateArtifact(),
		Initial:  header.InitialArtifact(),
		Created:  time.Now().UTC(),
	}

	roots := header.Roots().Named()
	seen := make(map[Entry]struct{}, len(inputs))
	for _, in := range inputs {
		e, err := toEntry(in, roots)
		if err != nil {
			logger.Warn("Skipping manifest entry.", "module", key.String(), "input", in, "error", err)
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		m.Inputs = append(m.Inputs, e)
	}

	path := filepath.Join(targetDir, modcache.ManifestName)
	err := fsutil.WriteFileAtomic(path, func(w io.Writer) error {
		return toml.NewEncoder(w).Encode(m)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	logger.Debug("Manifest written.", "path", path, "inputs", len(m.Inputs))
	return m, nil
}

// toEntry stores path relative to the deepest root containing it.
func toEntry(path string, roots map[string]string) (Entry, error) {
	if strings.TrimSpace(path) == "" {
		return Entry{}, fmt.Errorf("empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Entry{}, err
	}

	best := Entry{Path: filepath.ToSlash(abs)}
	bestLen := -1
	for name, root := range roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
			continue
		}
		// Deepest root wins; ties break on name for stable output.
		if len(root) > bestLen || (len(root) == bestLen && name < best.Root) {
			best = Entry{Root: name, Path: filepath.ToSlash(rel)}
			bestLen = len(root)
		}
	}
	return best, nil
}

// Resolve turns an entry back into an absolute path using roots.
func (e Entry) Resolve(roots map[string]string) (string, error) {
	if e.Path == "" {
		return "", fmt.Errorf("empty path")
	}
	p := filepath.FromSlash(e.Path)
	if e.Root == "" {
		if !filepath.IsAbs(p) {
			return "", fmt.Errorf("relative path %q without a root", e.Path)
		}
		return filepath.Clean(p), nil
	}
	root, ok := roots[e.Root]
	if !ok {
		return "", fmt.Errorf("unknown root %q", e.Root)
	}
	return filepath.Join(root, p), nil
}

// Read loads a manifest and derives its DepSet using roots. Entries that
// cannot be resolved are logged and skipped.
func Read(ctx context.Context, file string, roots config.Roots) (*Manifest, DepSet, error) {
	var m Manifest
	if _, err := toml.DecodeFile(file, &m); err != nil {
		return nil, nil, fmt.Errorf("%s: failed to parse manifest: %w", file, err)
	}
	if m.Schema != SchemaVersion {
		return nil, nil, fmt.Errorf("%s: manifest schema %d, want %d", file, m.Schema, SchemaVersion)
	}
	return &m, m.DepSet(ctx, roots), nil
}

// DepSet derives the dependency set of m under roots.
func (m *Manifest) DepSet(ctx context.Context, roots config.Roots) DepSet {
	logger := ctxlog.FromContext(ctx)
	named := roots.Named()
	layout := modcache.New(roots.Intermediate)

	deps := make(DepSet, len(m.Inputs))
	for _, e := range m.Inputs {
		abs, err := e.Resolve(named)
		if err != nil {
			logger.Warn("Skipping unreadable manifest entry.", "module", m.Module, "entry", e.Path, "error", err)
			continue
		}
		deps.Add(layout.KeyForArtifact(abs))
	}
	return deps
}
