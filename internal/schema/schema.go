// Package schema holds the gohcl decoding targets for the blocks of a
// directive document. Attributes are pointers so that "absent" can be told
// apart from a zero value and inherited through the header chain.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// --- Header ---

// Roots represents the `roots` block inside a header.
type Roots struct {
	Intermediate *string `hcl:"intermediate,optional"`
	OutOfContext *string `hcl:"ooc,optional"`
	Output       *string `hcl:"output,optional"`
}

// HeaderRoots is the first decoding pass over a `header` block. Roots are
// evaluated against the enclosing header before anything else, because the
// remaining attributes may refer to them.
type HeaderRoots struct {
	Roots  *Roots   `hcl:"roots,block"`
	Remain hcl.Body `hcl:",remain"`
}

// Header represents the remaining attributes of a `header` block.
type Header struct {
	Module         *string `hcl:"module,optional"`
	Refresh        *bool   `hcl:"refresh,optional"`
	HandPlacer     *bool   `hcl:"hand_placer,optional"`
	BufferedInputs *bool   `hcl:"buffered_inputs,optional"`
	Initial        *string `hcl:"initial,optional"`
	Template       *string `hcl:"template,optional"`
}

// --- Directives ---

// Merge represents a `merge` block: place a pre-built artifact.
type Merge struct {
	Artifact   *string `hcl:"artifact,optional"`
	Region     *string `hcl:"region,optional"`
	Refresh    *bool   `hcl:"refresh,optional"`
	HandPlacer *bool   `hcl:"hand_placer,optional"`
	OnlyWires  *bool   `hcl:"only_wires,optional"`
}

// Build represents the attributes of a `build` block. Its nested header and
// directive blocks are read in source order from Remain.
type Build struct {
	Region     *string  `hcl:"region,optional"`
	Refresh    *bool    `hcl:"refresh,optional"`
	HandPlacer *bool    `hcl:"hand_placer,optional"`
	OnlyWires  *bool    `hcl:"only_wires,optional"`
	Source     *string  `hcl:"source,optional"`
	Remain     hcl.Body `hcl:",remain"`
}

// Write represents a `write` block: emit the accumulator to a location.
type Write struct {
	Output *string `hcl:"output,optional"`
	Force  *bool   `hcl:"force,optional"`
}
