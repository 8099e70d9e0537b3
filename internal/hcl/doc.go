// Package hcl provides the concrete HCL implementation of the config.Loader
// interface. It parses directive documents, evaluates `${root.*}` path
// markers, follows BUILD `source` includes and translates the result into
// the format-agnostic config model.
package hcl
