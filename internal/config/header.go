package config

// Roots binds the three root directories a header may define. An empty
// field means "not defined here".
type Roots struct {
	Intermediate string
	OutOfContext string
	Output       string
}

// Root names used for root-relative location markers and manifest entries.
const (
	RootIntermediate = "intermediate"
	RootOutOfContext = "ooc"
	RootOutput       = "output"
)

// Named returns the roots keyed by their marker names, skipping empty ones.
func (r Roots) Named() map[string]string {
	named := make(map[string]string, 3)
	if r.Intermediate != "" {
		named[RootIntermediate] = r.Intermediate
	}
	if r.OutOfContext != "" {
		named[RootOutOfContext] = r.OutOfContext
	}
	if r.Output != "" {
		named[RootOutput] = r.Output
	}
	return named
}

// HeaderSpec carries the attributes a document declares for one sibling
// group. Nil pointers and empty strings are "absent" and inherit from the
// parent header.
type HeaderSpec struct {
	ModuleName       string
	Roots            Roots
	Refresh          *bool
	HandPlacer       *bool
	BufferedInputs   *bool
	InitialArtifact  *string
	TemplateArtifact *string
	// DocPath is the document file the header was declared in.
	DocPath string
}

// Header is the HeaderContext shared by a sibling group of directives. It
// is immutable after construction and linked to the header of the
// enclosing group.
type Header struct {
	parent *Header
	spec   HeaderSpec
}

// NewHeader returns a header with the given local attributes, inheriting
// absent ones from parent. parent may be nil for a document root.
func NewHeader(parent *Header, spec HeaderSpec) *Header {
	return &Header{parent: parent, spec: spec}
}

// Parent returns the enclosing header, or nil at the root.
func (h *Header) Parent() *Header {
	return h.parent
}

// Spec returns a copy of the locally declared attributes.
func (h *Header) Spec() HeaderSpec {
	return h.spec
}

// lookup walks the chain towards the root and returns the first value get
// reports as present.
func lookup[T any](h *Header, get func(*HeaderSpec) (T, bool)) (T, bool) {
	for cur := h; cur != nil; cur = cur.parent {
		if v, ok := get(&cur.spec); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func lookupBool(h *Header, get func(*HeaderSpec) *bool) bool {
	v, _ := lookup(h, func(s *HeaderSpec) (bool, bool) {
		if p := get(s); p != nil {
			return *p, true
		}
		return false, false
	})
	return v
}

func lookupString(h *Header, get func(*HeaderSpec) string) string {
	v, _ := lookup(h, func(s *HeaderSpec) (string, bool) {
		v := get(s)
		return v, v != ""
	})
	return v
}

// ModuleName returns the module name declared by this header. Module names
// are never inherited: a nested group without one has no module. Inheriting
// the name would give a child the same cache key as its parent (for the same
// region), so the two would overwrite each other's cache entry.
func (h *Header) ModuleName() string {
	return h.spec.ModuleName
}

// DocPath returns the nearest document path in the chain.
func (h *Header) DocPath() string {
	return lookupString(h, func(s *HeaderSpec) string { return s.DocPath })
}

// Intermediate returns the effective intermediate root.
func (h *Header) Intermediate() string {
	return lookupString(h, func(s *HeaderSpec) string { return s.Roots.Intermediate })
}

// OutOfContext returns the effective out-of-context root.
func (h *Header) OutOfContext() string {
	return lookupString(h, func(s *HeaderSpec) string { return s.Roots.OutOfContext })
}

// Output returns the effective output root.
func (h *Header) Output() string {
	return lookupString(h, func(s *HeaderSpec) string { return s.Roots.Output })
}

// Roots returns all effective root bindings.
func (h *Header) Roots() Roots {
	return Roots{
		Intermediate: h.Intermediate(),
		OutOfContext: h.OutOfContext(),
		Output:       h.Output(),
	}
}

// Refresh reports whether this group or any ancestor requested a refresh.
func (h *Header) Refresh() bool {
	return lookupBool(h, func(s *HeaderSpec) *bool { return s.Refresh })
}

// HandPlacer reports the nearest hand-placer setting.
func (h *Header) HandPlacer() bool {
	return lookupBool(h, func(s *HeaderSpec) *bool { return s.HandPlacer })
}

// BufferedInputs reports the nearest buffered-inputs setting.
func (h *Header) BufferedInputs() bool {
	return lookupBool(h, func(s *HeaderSpec) *bool { return s.BufferedInputs })
}

// InitialArtifact returns the nearest initial artifact, or "".
func (h *Header) InitialArtifact() string {
	v, _ := lookup(h, func(s *HeaderSpec) (string, bool) {
		if s.InitialArtifact != nil {
			return *s.InitialArtifact, true
		}
		return "", false
	})
	return v
}

// TemplateArtifact returns the nearest top-level template artifact, or "".
func (h *Header) TemplateArtifact() string {
	v, _ := lookup(h, func(s *HeaderSpec) (string, bool) {
		if s.TemplateArtifact != nil {
			return *s.TemplateArtifact, true
		}
		return "", false
	})
	return v
}
