package engine

import (
	"io"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/hiermerge/internal/fsutil"
)

// writeNetlist renders cp as an HCL document:
//
//	design "top" {
//	  region      = "pb_0"
//	  implemented = true
//	  cell "a" { ... }
//	}
func writeNetlist(path string, cp *Checkpoint) error {
	f := hclwrite.NewEmptyFile()
	design := f.Body().AppendNewBlock("design", []string{cp.Module}).Body()
	design.SetAttributeValue("region", cty.StringVal(cp.Region))
	design.SetAttributeValue("implemented", cty.BoolVal(cp.Implemented))
	if cp.Template != "" {
		design.SetAttributeValue("template", cty.StringVal(cp.Template))
	}
	design.SetAttributeValue("leaves", cty.NumberIntVal(int64(leafCount(cp))))

	for _, c := range cp.Cells {
		design.AppendNewline()
		cell := design.AppendNewBlock("cell", []string{c.Instance}).Body()
		if c.WiresOnly {
			cell.SetAttributeValue("wires_only", cty.True)
			continue
		}
		cell.SetAttributeValue("source", cty.StringVal(c.Source))
		if c.Module != "" {
			cell.SetAttributeValue("module", cty.StringVal(c.Module))
		}
		if c.Region != "" {
			cell.SetAttributeValue("region", cty.StringVal(c.Region))
		}
		if c.HandPlacer {
			cell.SetAttributeValue("hand_placer", cty.True)
		}
		cell.SetAttributeValue("digest", cty.StringVal(c.Digest))
	}

	return fsutil.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := f.WriteTo(w)
		return err
	})
}
