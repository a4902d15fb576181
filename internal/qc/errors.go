package qc

import (
	"errors"
	"fmt"
)

// Input errors: bad values handed to the engine. Callers fix the input; retrying won't help.
var (
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidStartDate = errors.New("invalid start date")
	ErrInvalidDate      = errors.New("invalid date")
)

// ErrUnknownMachine is returned by lookups for a machine the directory doesn't know.
var ErrUnknownMachine = errors.New("unknown machine")

// InputError carries the offending field and value of a local-computation error.
//
// I/O failures use completion.SourceError instead so callers can tell the tiers apart.
type InputError struct {
	Field string
	Value string
	Err   error
}

func (e *InputError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// IsInputError reports whether err (or anything it wraps) is an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
