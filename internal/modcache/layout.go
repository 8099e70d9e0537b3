// Package modcache describes the on-disk module cache: where the entry for
// a (module, placement region) pair lives under an intermediate root, how a
// raw region string becomes a path component, and how a stored artifact path
// maps back to its cache key.
//
// Layout:
//
//	<intermediate>/moduleCache/<module>/[<sanitizedRegion>/]<module>.dcp
//	<intermediate>/moduleCache/<module>/[<sanitizedRegion>/]metadata.toml
package modcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/hiermerge/internal/config"
)

const (
	// DirName is the cache directory under the intermediate root.
	DirName = "moduleCache"
	// ArtifactExt is the extension of cached design checkpoints.
	ArtifactExt = ".dcp"
	// ManifestName is the dependency manifest file of a cache entry.
	ManifestName = "metadata.toml"
)

// Key identifies a cache entry. Region holds the sanitized form.
type Key struct {
	Module string
	Region string
}

func (k Key) String() string {
	if k.Region == "" {
		return k.Module
	}
	return k.Module + "@" + k.Region
}

// KeyFor builds the key of a module placed in a raw region.
func KeyFor(module, rawRegion string) Key {
	return Key{Module: module, Region: Sanitize(rawRegion)}
}

// Layout resolves cache paths under one intermediate root.
type Layout struct {
	root string
}

// New returns the layout rooted at the given intermediate directory.
func New(intermediate string) Layout {
	return Layout{root: intermediate}
}

// Root returns the intermediate root.
func (l Layout) Root() string {
	return l.root
}

// Dir returns the module cache directory.
func (l Layout) Dir() string {
	return filepath.Join(l.root, DirName)
}

// Exists reports whether the module cache directory is present.
func (l Layout) Exists() bool {
	info, err := os.Stat(l.Dir())
	return err == nil && info.IsDir()
}

// Entry is the set of files making up one cache entry.
type Entry struct {
	Key      Key
	Dir      string
	Artifact string
	Manifest string
}

// Entry returns the cache entry for a module placed in a raw region.
func (l Layout) Entry(module, rawRegion string) Entry {
	key := KeyFor(module, rawRegion)
	dir := filepath.Join(l.Dir(), module)
	if key.Region != "" {
		dir = filepath.Join(dir, key.Region)
	}
	return Entry{
		Key:      key,
		Dir:      dir,
		Artifact: filepath.Join(dir, module+ArtifactExt),
		Manifest: filepath.Join(dir, ManifestName),
	}
}

// Present reports whether both the artifact and the manifest exist.
func (e Entry) Present() (artifact, manifest bool) {
	return fileExists(e.Artifact), fileExists(e.Manifest)
}

// KeyForArtifact infers the cache key a stored artifact path stands for.
// The module is the artifact's leaf name. When the path sits under this
// layout's cache directory exactly four segments deep
// (moduleCache/<module>/<region>/<file>) the region segment is taken from
// the path; otherwise the region is empty.
func (l Layout) KeyForArtifact(path string) Key {
	key := Key{Module: config.ArtifactModule(path)}
	if l.root == "" || !filepath.IsAbs(path) {
		return key
	}
	rel, err := filepath.Rel(l.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return key
	}
	segs := strings.Split(filepath.ToSlash(rel), "/")
	if len(segs) == 4 && segs[0] == DirName {
		key.Region = segs[2]
	}
	return key
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ErrBadEscape reports a sanitized region that Unsanitize cannot decode.
var ErrBadEscape = errors.New("malformed region escape")

const hexDigits = "0123456789ABCDEF"

// Sanitize turns a raw placement region into a single path component.
// Underscore is the escape character: '_' becomes "_u", ':' "_c", ' ' "_s"
// and any other byte outside [A-Za-z0-9-] becomes "_xHH". Every escape
// starts with '_' and no escape is a prefix of another, so the transform is
// injective over all inputs and Unsanitize inverts it.
func Sanitize(region string) string {
	if region == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(region) + 8)
	for i := 0; i < len(region); i++ {
		c := region[i]
		switch {
		case c == '_':
			b.WriteString("_u")
		case c == ':':
			b.WriteString("_c")
		case c == ' ':
			b.WriteString("_s")
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		default:
			b.WriteString("_x")
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0F])
		}
	}
	return b.String()
}

// Unsanitize reverses Sanitize.
func Unsanitize(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '_' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("%w: trailing '_' in %q", ErrBadEscape, s)
		}
		i++
		switch s[i] {
		case 'u':
			b.WriteByte('_')
		case 'c':
			b.WriteByte(':')
		case 's':
			b.WriteByte(' ')
		case 'x':
			if i+2 >= len(s) {
				return "", fmt.Errorf("%w: short hex escape in %q", ErrBadEscape, s)
			}
			hi := strings.IndexByte(hexDigits, s[i+1])
			lo := strings.IndexByte(hexDigits, s[i+2])
			if hi < 0 || lo < 0 {
				return "", fmt.Errorf("%w: bad hex escape in %q", ErrBadEscape, s)
			}
			b.WriteByte(byte(hi<<4 | lo))
			i += 2
		default:
			return "", fmt.Errorf("%w: unknown escape %q in %q", ErrBadEscape, s[i-1:i+1], s)
		}
	}
	return b.String(), nil
}
