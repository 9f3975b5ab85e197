package records

import (
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Kind classifies a storage failure.
type Kind int

const (
	KindInit Kind = iota + 1
	KindRead
	KindWrite
)

func (k Kind) String() string {
	switch k {
	case KindInit:
		return "init"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	}
	return "unknown"
}

// Sentinels for errors.Is against a *StorageError of the matching kind.
var (
	ErrInit  = errors.New("storage init failed")
	ErrRead  = errors.New("storage read failed")
	ErrWrite = errors.New("storage write failed")
)

func (k Kind) sentinel() error {
	switch k {
	case KindInit:
		return ErrInit
	case KindRead:
		return ErrRead
	case KindWrite:
		return ErrWrite
	}
	return nil
}

// StorageError is returned by every Store operation that fails.
type StorageError struct {
	Kind  Kind
	Op    string
	Table string
	// Constraint is set when the backend rejected a write on a constraint
	// (UNIQUE, NOT NULL, CHECK, ...).
	Constraint bool
	Err        error
}

func (e *StorageError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Kind, e.Op, e.Table, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// IsConstraint reports whether err is a write rejected by a table constraint.
func IsConstraint(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Constraint
}

func newError(kind Kind, op, table string, err error) *StorageError {
	se := &StorageError{Kind: kind, Op: op, Table: table, Err: err}
	var le *sqlite.Error
	if errors.As(err, &le) && le.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		se.Constraint = true
	}
	return se
}
