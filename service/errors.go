package service

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks failures caused by what the caller asked for, as
// opposed to failures while reading an archive.
var ErrInvalidInput = errors.New("invalid input")

var (
	ErrInvalidExtension = fmt.Errorf("%w: unsupported file extension", ErrInvalidInput)
	ErrFileNotFound     = fmt.Errorf("%w: file not found", ErrInvalidInput)
	ErrNoRecords        = fmt.Errorf("%w: no emails found", ErrInvalidInput)
)

// ParseError reports an unexpected failure while opening or reading an
// archive.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
