// Package status holds the result codes shared by the emulator's sources,
// buffer pool and register map.
//
// Codes are plain values that satisfy error, so callers branch on them with
// errors.Is even after they have been wrapped by an outer layer.
package status

import (
	"errors"
	"fmt"
)

// Code is a result code.  The zero value is success and is never returned as an error.
type Code int

const (
	// OK is success
	OK Code = iota

	// InvalidParameter is returned for out-of-range geometry, unknown chunk ids,
	// unsupported pixel types and unknown register addresses
	InvalidParameter

	// Busy is returned when the acquisition slot already holds a buffer
	Busy

	// NoDataAvailable is returned when nothing has been captured yet
	NoDataAvailable

	// NotSupported is returned for operations the emulated camera cannot do, e.g. moving the offsets
	NotSupported

	// Exhausted is returned when every buffer of a pool is outstanding
	Exhausted

	// AccessDenied is returned when a register or feature is written while read-only, or read while write-only
	AccessDenied

	// NotAvailable is returned when a feature's availability gate is currently false
	NotAvailable

	// Aborted is returned by a paced retrieve that was cancelled
	Aborted
)

// Codes maps codes to their names
var Codes = map[Code]string{
	OK:               "OK",
	InvalidParameter: "INVALID_PARAMETER",
	Busy:             "BUSY",
	NoDataAvailable:  "NO_AVAILABLE_DATA",
	NotSupported:     "NOT_SUPPORTED",
	Exhausted:        "EXHAUSTED",
	AccessDenied:     "ACCESS_DENIED",
	NotAvailable:     "NOT_AVAILABLE",
	Aborted:          "ABORTED",
}

func (c Code) Error() string {
	if s, ok := Codes[c]; ok {
		return fmt.Sprintf("%d - %s", int(c), s)
	}
	return fmt.Sprintf("%d - UNKNOWN_RESULT_CODE", int(c))
}

// Name returns the bare name of the code
func (c Code) Name() string {
	if s, ok := Codes[c]; ok {
		return s
	}
	return "UNKNOWN_RESULT_CODE"
}

// Error returns nil for OK and the code as an error otherwise
func Error(c Code) error {
	if c == OK {
		return nil
	}
	return c
}

// Of extracts the result code carried by err.  Errors that do not wrap a
// Code yield ok=false.
func Of(err error) (Code, bool) {
	if err == nil {
		return OK, true
	}
	var c Code
	if errors.As(err, &c) {
		return c, true
	}
	return OK, false
}

// Errorf wraps a code with a formatted message, keeping it visible to errors.Is
func Errorf(c Code, format string, a ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, a...), c)
}
