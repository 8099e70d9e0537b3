package hcl

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/hiermerge/internal/config"
)

// evalContext exposes the root bindings in effect to expressions as
// `root.intermediate`, `root.ooc`, `root.output` and `root.doc`.
func evalContext(roots config.Roots, docDir string) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"root": cty.ObjectVal(map[string]cty.Value{
				config.RootIntermediate: cty.StringVal(roots.Intermediate),
				config.RootOutOfContext: cty.StringVal(roots.OutOfContext),
				config.RootOutput:       cty.StringVal(roots.Output),
				"doc":                   cty.StringVal(docDir),
			}),
		},
	}
}
