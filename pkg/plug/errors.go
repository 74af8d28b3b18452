// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plug

import (
	"fmt"

	"github.com/samber/oops"
)

// Error codes for orchestrator failures.
const (
	CodeDuplicatePlugin   = "DUPLICATE_PLUGIN"
	CodeInvalidFactory    = "INVALID_FACTORY"
	CodeNotPlugged        = "NOT_PLUGGED"
	CodeFacadeInitFailed  = "FACADE_INIT_FAILED"
	CodeFacadeCloseFailed = "FACADE_CLOSE_FAILED"
	CodePluginPanic       = "PLUGIN_PANIC"
)

// ErrDuplicatePlugin creates an error for a name registered twice.
func ErrDuplicatePlugin(name string) error {
	return oops.Code(CodeDuplicatePlugin).
		With("plugin", name).
		Errorf("plugin %q is already registered", name)
}

// ErrNotPlugged creates the error returned by accessors outside an epoch.
func ErrNotPlugged() error {
	return oops.Code(CodeNotPlugged).Errorf("not plugged in")
}

// recoverPanic converts a panic raised by plugin code into an error.
func recoverPanic(name, phase string, err *error) {
	if r := recover(); r != nil {
		*err = oops.Code(CodePluginPanic).
			With("plugin", name).
			With("phase", phase).
			Errorf("plugin panicked: %v", fmt.Sprint(r))
	}
}
