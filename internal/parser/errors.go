package parser

import (
	"errors"
	"fmt"
)

// ErrMissingPositions is matched by every MissingKeyError. A run cannot
// produce output without a positions.position list.
var ErrMissingPositions = errors.New("merged input has no positions.position list")

// InputParseError reports an input document that could not be decoded.
// The document is skipped; other inputs are unaffected.
type InputParseError struct {
	Name string
	Err  error
}

func (e *InputParseError) Error() string {
	return fmt.Sprintf("file: %s %v", e.Name, e.Err)
}

func (e *InputParseError) Unwrap() error {
	return e.Err
}

// MissingKeyError reports that a required key is absent from the merged input.
type MissingKeyError struct {
	Key string
	Err error
}

func (e *MissingKeyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("missing key %q: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("missing key %q", e.Key)
}

func (e *MissingKeyError) Is(target error) bool {
	return target == ErrMissingPositions
}

func (e *MissingKeyError) Unwrap() error {
	return e.Err
}
