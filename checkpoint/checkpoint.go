// Package checkpoint decorates errors with the location they passed through.
// A checkpoint matches its own error with errors.Is and errors.As and unwraps
// to the cause it was created from, so both stay reachable for callers.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
)

// From records the caller location on err.
// It returns nil if err is nil. io.EOF and io.ErrUnexpectedEOF are returned
// unchanged because readers compare them with ==.
func From(err error) error {
	if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
		return err
	}
	return newCheckpoint(err, nil)
}

// Wrap records the caller location and attaches err as the meaning of the
// failure cause. Typically err is a package sentinel:
//
//	return checkpoint.Wrap(ioErr, ErrIO)
//
// errors.Is(result, ErrIO) and errors.Is(result, ioErr) both hold afterwards.
// Wrap returns nil if cause is nil, so it can be used on every return path.
func Wrap(cause, err error) error {
	if cause == nil {
		return nil
	}
	if cause == io.EOF {
		return io.EOF
	}
	return newCheckpoint(err, cause)
}

func newCheckpoint(err, cause error) *checkpoint {
	c := &checkpoint{err: err, cause: cause}
	// Skip newCheckpoint and the exported helper.
	if _, file, line, ok := runtime.Caller(2); ok {
		c.location = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return c
}

type checkpoint struct {
	err      error
	cause    error
	location string
}

func (c *checkpoint) Error() string {
	msg := "<nil>"
	if c.err != nil {
		msg = c.err.Error()
	}
	if c.location != "" {
		msg = c.location + ": " + msg
	}
	if c.cause != nil {
		msg += ": " + c.cause.Error()
	}
	return msg
}

func (c *checkpoint) Unwrap() error {
	if c.cause == nil {
		return c.err
	}
	return c.cause
}

func (c *checkpoint) Is(target error) bool {
	return c.err != nil && errors.Is(c.err, target)
}

func (c *checkpoint) As(target interface{}) bool {
	return c.err != nil && errors.As(c.err, target)
}
