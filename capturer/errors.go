package capturer

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionExhausted = errors.New("binlog connection attempts exhausted")
	ErrInterrupted         = errors.New("interrupted")
	ErrParse               = errors.New("row event parse failed")
	ErrAlreadyStarted      = errors.New("capturer already started")
	ErrNotStarted          = errors.New("capturer not started")
	ErrUnexpectedRecord    = errors.New("unexpected binlog record")
)

// ExhaustedError is returned once every connection attempt has failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrConnectionExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrConnectionExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// ParseError wraps a payload that could not be turned into an event.
type ParseError struct {
	Table string
	Pos   Position
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse rows of %s at %s: %v", e.Table, e.Pos, e.Err)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
