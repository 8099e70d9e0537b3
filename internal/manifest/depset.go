package manifest

import (
	"sort"

	"github.com/vk/hiermerge/internal/modcache"
)

// DepSet is a multimap from module name to the set of (sanitized) placement
// regions under which the module was recorded as a dependency.
type DepSet map[string]map[string]struct{}

// NewDepSet returns a set holding the given keys.
func NewDepSet(keys ...modcache.Key) DepSet {
	s := make(DepSet, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add records k.
func (s DepSet) Add(k modcache.Key) {
	regions, ok := s[k.Module]
	if !ok {
		regions = make(map[string]struct{}, 1)
		s[k.Module] = regions
	}
	regions[k.Region] = struct{}{}
}

// Has reports whether k is recorded.
func (s DepSet) Has(k modcache.Key) bool {
	_, ok := s[k.Module][k.Region]
	return ok
}

// Remove deletes k, dropping the module once it has no regions left.
func (s DepSet) Remove(k modcache.Key) {
	regions, ok := s[k.Module]
	if !ok {
		return
	}
	delete(regions, k.Region)
	if len(regions) == 0 {
		delete(s, k.Module)
	}
}

// Len counts (module, region) pairs.
func (s DepSet) Len() int {
	n := 0
	for _, regions := range s {
		n += len(regions)
	}
	return n
}

// Clone returns an independent copy.
func (s DepSet) Clone() DepSet {
	c := make(DepSet, len(s))
	for m, regions := range s {
		rc := make(map[string]struct{}, len(regions))
		for r := range regions {
			rc[r] = struct{}{}
		}
		c[m] = rc
	}
	return c
}

// Equal reports exact consistency: every pair of s is in o and vice versa.
func (s DepSet) Equal(o DepSet) bool {
	if s.Len() != o.Len() {
		return false
	}
	for m, regions := range s {
		for r := range regions {
			if !o.Has(modcache.Key{Module: m, Region: r}) {
				return false
			}
		}
	}
	return true
}

// Keys lists the pairs sorted by module then region.
func (s DepSet) Keys() []modcache.Key {
	keys := make([]modcache.Key, 0, s.Len())
	for m, regions := range s {
		for r := range regions {
			keys = append(keys, modcache.Key{Module: m, Region: r})
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Module != keys[j].Module {
			return keys[i].Module < keys[j].Module
		}
		return keys[i].Region < keys[j].Region
	})
	return keys
}
