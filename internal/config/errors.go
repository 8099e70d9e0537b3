package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// ConfigError reports a malformed directive document: an unknown node kind,
// a missing or unresolvable artifact reference, a duplicated instance name,
// and similar input errors. It is fatal and terminates the whole run.
type ConfigError struct {
	// Subject points at the offending construct, when known.
	Subject *hcl.Range
	Msg     string
	Err     error
}

// Errorf builds a ConfigError located at subject.
func Errorf(subject *hcl.Range, format string, args ...any) *ConfigError {
	return &ConfigError{Subject: subject, Msg: fmt.Sprintf(format, args...)}
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Subject != nil && e.Subject.Filename != "" {
		return fmt.Sprintf("%s:%d: %s", e.Subject.Filename, e.Subject.Start.Line, msg)
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *ConfigError) Unwrap() error {
	return e.Err
}
