package conversation

import (
	"context"
	"net/mail"
	"strconv"
	"strings"

	"health-bot/internal/records"
)

// Validator checks a raw answer and returns the value to store under the
// step's field. Rejections are *ValidationError; any other error is treated
// as a storage failure.
type Validator func(ctx context.Context, answer string) (any, error)

// Checker answers existence questions against the record store.
type Checker interface {
	Exists(ctx context.Context, table string, filter records.Filter) (bool, error)
}

// Integer accepts base-10 integers and stores them as int64.
func Integer() Validator {
	return func(_ context.Context, answer string) (any, error) {
		n, err := strconv.ParseInt(strings.TrimSpace(answer), 10, 64)
		if err != nil {
			return nil, Invalid(NotANumber, answer)
		}
		return n, nil
	}
}

// Text accepts any non-blank answer.
func Text() Validator {
	return func(_ context.Context, answer string) (any, error) {
		s := strings.TrimSpace(answer)
		if s == "" {
			return nil, Invalid(Missing, answer)
		}
		return s, nil
	}
}

// Email accepts a bare e-mail address.
func Email() Validator {
	return func(_ context.Context, answer string) (any, error) {
		s := strings.TrimSpace(answer)
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s {
			return nil, Invalid(Missing, answer)
		}
		return s, nil
	}
}

// OneOf accepts one of the listed answers, compared exactly after trimming.
func OneOf(choices ...string) Validator {
	return func(_ context.Context, answer string) (any, error) {
		s := strings.TrimSpace(answer)
		for _, c := range choices {
			if s == c {
				return s, nil
			}
		}
		return nil, Invalid(Missing, answer)
	}
}

// Unique accepts a non-blank answer not already stored in table.column.
func Unique(c Checker, table, column string) Validator {
	return func(ctx context.Context, answer string) (any, error) {
		s := strings.TrimSpace(answer)
		if s == "" {
			return nil, Invalid(Missing, answer)
		}
		taken, err := c.Exists(ctx, table, records.Where(column, records.Eq, s))
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, Invalid(Duplicate, answer)
		}
		return s, nil
	}
}

// Present accepts an answer that is already stored in table.column.
func Present(c Checker, table, column string) Validator {
	return func(ctx context.Context, answer string) (any, error) {
		s := strings.TrimSpace(answer)
		if s == "" {
			return nil, Invalid(Missing, answer)
		}
		found, err := c.Exists(ctx, table, records.Where(column, records.Eq, s))
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, Invalid(Missing, answer)
		}
		return s, nil
	}
}
