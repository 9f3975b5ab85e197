package records

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Op is a comparison operator usable in a Filter.
type Op string

const (
	Eq   Op = "="
	Ne   Op = "<>"
	Lt   Op = "<"
	Le   Op = "<="
	Gt   Op = ">"
	Ge   Op = ">="
	Like Op = "LIKE"
)

func (o Op) valid() bool {
	switch o {
	case Eq, Ne, Lt, Le, Gt, Ge, Like:
		return true
	}
	return false
}

// Cond compares one column with a bound value.
type Cond struct {
	Column string
	Op     Op
	Value  any
}

// Filter is a conjunction of conditions. Values are always passed to the
// backend as bound parameters, never spliced into the statement text.
type Filter []Cond

// Where starts a filter with a single condition.
func Where(column string, op Op, value any) Filter {
	return Filter{{Column: column, Op: op, Value: value}}
}

// And returns a copy of f extended with one more condition.
func (f Filter) And(column string, op Op, value any) Filter {
	out := make(Filter, len(f), len(f)+1)
	copy(out, f)
	return append(out, Cond{Column: column, Op: op, Value: value})
}

// compile renders the WHERE body and its arguments. An empty filter matches
// every row.
func (f Filter) compile() (string, []any, error) {
	if len(f) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(f))
	var args []any
	for _, c := range f {
		if err := checkIdent(c.Column); err != nil {
			return "", nil, err
		}
		if !c.Op.valid() {
			return "", nil, fmt.Errorf("unsupported operator %q", c.Op)
		}
		v := normalize(c.Value)
		if !isScalar(v) {
			return "", nil, fmt.Errorf("unsupported value type %T for column %s", c.Value, c.Column)
		}
		if v == nil {
			switch c.Op {
			case Eq:
				parts = append(parts, c.Column+" IS NULL")
				continue
			case Ne:
				parts = append(parts, c.Column+" IS NOT NULL")
				continue
			}
		}
		parts = append(parts, fmt.Sprintf("%s %s ?", c.Column, c.Op))
		args = append(args, v)
	}
	return strings.Join(parts, " AND "), args, nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var errBadIdent = errors.New("malformed identifier")

func checkIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: %q", errBadIdent, name)
	}
	return nil
}

func checkIdents(names []string) error {
	for _, n := range names {
		if err := checkIdent(n); err != nil {
			return err
		}
	}
	return nil
}
