package conversation

import (
	"errors"
	"fmt"
)

// ValidationKind classifies why an answer was rejected.
type ValidationKind int

const (
	NotANumber ValidationKind = iota + 1
	Duplicate
	Missing
)

func (k ValidationKind) String() string {
	switch k {
	case NotANumber:
		return "not_a_number"
	case Duplicate:
		return "duplicate"
	case Missing:
		return "missing"
	}
	return "unknown"
}

var (
	ErrNotANumber = errors.New("not a number")
	ErrDuplicate  = errors.New("duplicate value")
	ErrMissing    = errors.New("missing value")
)

func (k ValidationKind) sentinel() error {
	switch k {
	case NotANumber:
		return ErrNotANumber
	case Duplicate:
		return ErrDuplicate
	case Missing:
		return ErrMissing
	}
	return nil
}

// ValidationError reports an answer that a step refused.
type ValidationError struct {
	Kind  ValidationKind
	Field string
	Input string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input %q: %s", e.Input, e.Kind.sentinel())
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Input, e.Kind.sentinel())
}

func (e *ValidationError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Invalid builds a ValidationError for input.
func Invalid(kind ValidationKind, input string) *ValidationError {
	return &ValidationError{Kind: kind, Input: input}
}
