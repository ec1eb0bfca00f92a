// Package utils contains small helpers shared across arsession packages.
package utils

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

// TypeName returns the type name of the value, or the pointed-to interface when handed a typed
// nil pointer to an interface.
func TypeName(v interface{}) string {
	if v == nil {
		return "<unknown (nil interface)>"
	}
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Interface {
		return t.Elem().String()
	}
	return t.String()
}

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError(expected, actual interface{}) error {
	return errors.Errorf("expected %s but got %T", TypeName(expected), actual)
}

// NewUnimplementedInterfaceError is used when there is a failed interface check.
func NewUnimplementedInterfaceError(expected, actual interface{}) error {
	return errors.Errorf("expected implementation of %s but got %T", TypeName(expected), actual)
}

// NewConfigValidationError returns an error specifying that there is an issue with the config at
// the given path.
func NewConfigValidationError(path string, err error) error {
	return errors.Wrapf(err, "error validating %q", path)
}

// NewConfigValidationFieldRequiredError returns an error specifying that a required field is
// missing from the config at the given path.
func NewConfigValidationFieldRequiredError(path, field string) error {
	return NewConfigValidationError(path, fmt.Errorf("%q is required", field))
}

// NewPanicError wraps a recovered panic value into an error.
func NewPanicError(what string, recovered interface{}) error {
	if err, ok := recovered.(error); ok {
		return errors.Wrapf(err, "panic in %s", what)
	}
	return errors.Errorf("panic in %s: %v", what, recovered)
}
