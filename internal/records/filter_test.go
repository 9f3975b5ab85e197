package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterCompile(t *testing.T) {
	tests := []struct {
		name  string
		f     Filter
		where string
		args  []any
	}{
		{name: "empty", f: nil, where: "1 = 1"},
		{name: "single", f: Where("username", Eq, "alice"), where: "username = ?", args: []any{"alice"}},
		{
			name:  "conjunction",
			f:     Where("age", Ge, 18).And("balance", Lt, 100.5),
			where: "age >= ? AND balance < ?",
			args:  []any{int64(18), 100.5},
		},
		{name: "null", f: Where("email", Eq, nil).And("img_ref", Ne, nil), where: "email IS NULL AND img_ref IS NOT NULL"},
		{name: "like", f: Where("title", Like, "Prod%"), where: "title LIKE ?", args: []any{"Prod%"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args, err := tt.f.compile()
			require.NoError(t, err)
			assert.Equal(t, tt.where, where)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestFilterCompile_Rejects(t *testing.T) {
	_, _, err := Where("1=1 OR x", Eq, 1).compile()
	assert.ErrorIs(t, err, errBadIdent)

	_, _, err = Filter{{Column: "a", Op: "IN", Value: 1}}.compile()
	assert.Error(t, err)

	_, _, err = Where("a", Eq, struct{}{}).compile()
	assert.Error(t, err)
}

func TestFilterAnd_DoesNotAlias(t *testing.T) {
	base := make(Filter, 1, 4)
	base[0] = Cond{Column: "a", Op: Eq, Value: 1}
	left := base.And("b", Eq, 2)
	right := base.And("c", Eq, 3)
	assert.Equal(t, "b", left[1].Column)
	assert.Equal(t, "c", right[1].Column)
}

func TestRecord(t *testing.T) {
	var r Record
	r.Set("age", 30)
	r.Set("name", []byte("bob"))
	r.Set("age", 31)

	assert.Equal(t, []string{"age", "name"}, r.Columns())
	assert.Equal(t, []any{int64(31), "bob"}, r.Values())
	n, ok := r.Int("age")
	assert.True(t, ok)
	assert.Equal(t, int64(31), n)
	f, ok := r.Float("age")
	assert.True(t, ok)
	assert.Equal(t, 31.0, f)
	s, ok := r.String("name")
	assert.True(t, ok)
	assert.Equal(t, "bob", s)
	_, ok = r.String("age")
	assert.False(t, ok)

	assert.Panics(t, func() { NewRecord("a") })
	assert.Panics(t, func() { NewRecord(1, 2) })
}
