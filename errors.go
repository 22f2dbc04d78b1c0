/*
Copyright © 2022 the hdfnc authors.
This file is part of hdfnc.

hdfnc is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

hdfnc is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with hdfnc.  If not, see <http://www.gnu.org/licenses/>.
*/

package hdfnc

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spatialmodel/hdfnc/h5"
)

// Code classifies the errors returned by this package. Use Is to check
// an error against a code.
type Code string

// Error codes.
const (
	// ErrNotFound is returned when reading an absent or reserved attribute
	// or an unregistered dimension, variable or group.
	ErrNotFound Code = "NotFound"

	// ErrWriteProtected is returned when writing a reserved attribute or
	// modifying a read-only file.
	ErrWriteProtected Code = "WriteProtected"

	// ErrInvalidState is returned for operations that conflict with the
	// current structure, such as resizing a fixed dimension, creating a
	// duplicate name or deleting a dimension.
	ErrInvalidState Code = "InvalidState"

	// ErrTypeRejected is returned when an element type is not allowed in a
	// netCDF-4 file.
	ErrTypeRejected Code = "TypeRejected"
)

// codedError carries a Code and, optionally, the store error that caused it.
type codedError struct {
	Code    Code
	Message string
	cause   error
}

func (ce *codedError) Error() string {
	if ce.cause != nil {
		return ce.Message + ": " + ce.cause.Error()
	}
	return ce.Message
}

func (ce *codedError) Is(err error) bool {
	if e, ok := err.(*codedError); ok && ce.Code == e.Code {
		return true
	}
	return false
}

func (ce *codedError) Unwrap() error { return ce.cause }

func newError(code Code, format string, args ...interface{}) error {
	return errors.WithStack(&codedError{
		Code:    code,
		Message: "hdfnc: " + fmt.Sprintf(format, args...),
	})
}

// wrapError returns a coded error that also wraps cause, so that both Is
// and errors.Is against the store's sentinel errors succeed.
func wrapError(cause error, code Code, format string, args ...interface{}) error {
	return errors.WithStack(&codedError{
		Code:    code,
		Message: "hdfnc: " + fmt.Sprintf(format, args...),
		cause:   cause,
	})
}

// Is reports whether err, or any error it wraps, carries the given code.
func Is(err error, code Code) bool {
	return errors.Is(err, &codedError{Code: code})
}

// CodeOf returns the code of err, or an empty Code if err is not coded.
func CodeOf(err error) Code {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// storeError classifies an error returned by the store. Read-only and
// missing-object failures are given the matching code, all other errors
// are wrapped with context and propagate unchanged.
func storeError(err error, format string, args ...interface{}) error {
	switch {
	case errors.Is(err, h5.ErrReadOnly):
		return wrapError(err, ErrWriteProtected, format, args...)
	case errors.Is(err, h5.ErrNotExist):
		return wrapError(err, ErrNotFound, format, args...)
	case errors.Is(err, h5.ErrExist), errors.Is(err, h5.ErrClosed):
		return wrapError(err, ErrInvalidState, format, args...)
	}
	return errors.Wrapf(err, "hdfnc: "+format, args...)
}
