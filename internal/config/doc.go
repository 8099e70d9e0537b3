// Package config defines the format-agnostic model of a directive document:
// the Directive Tree, its sibling-group HeaderContext chain, and the Loader
// interface through which concrete document formats produce it.
//
// The `config.Tree` is the single source of truth for the `resolver` and
// `builder` packages. Trees are immutable once loaded; a nested BUILD
// directive owns its subtree, and every subtree's Header points at the
// header of the group that contains the BUILD directive, so attributes that
// are absent locally resolve lexically through the parent chain.
//
// Concrete implementations of the Loader interface, such as for HCL, are
// provided in separate packages.
package config
