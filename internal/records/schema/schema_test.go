package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTables_ListsEmbeddedScripts(t *testing.T) {
	assert.Equal(t, []string{"products", "purchases", "users"}, Tables())
}

func TestEmbedded_Script(t *testing.T) {
	src := Embedded()
	for _, table := range Tables() {
		s, err := src.Script(table)
		require.NoError(t, err, table)
		assert.Contains(t, s, "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestEmbedded_MissingScript(t *testing.T) {
	_, err := Embedded().Script("orders")
	require.ErrorIs(t, err, ErrNoScript)
}

func TestMap_Script(t *testing.T) {
	m := Map{"notes": "CREATE TABLE notes (id INTEGER PRIMARY KEY);", "blank": "  "}

	s, err := m.Script("notes")
	require.NoError(t, err)
	assert.Contains(t, s, "CREATE TABLE notes")

	_, err = m.Script("blank")
	assert.ErrorIs(t, err, ErrNoScript)
	_, err = m.Script("other")
	assert.ErrorIs(t, err, ErrNoScript)
}
