// Package schema maps logical table names to the SQL scripts that create them.
//
// Scripts are versionless: each one is executed verbatim the first time its
// table is referenced and found missing. Lookup is a pure function of the
// table name.
package schema

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed sql/*.sql
var files embed.FS

// ErrNoScript is returned when no script is registered for a table.
var ErrNoScript = errors.New("no schema script")

// Source resolves the initialization script of a table.
type Source interface {
	Script(table string) (string, error)
}

type embedded struct{}

// Embedded returns the scripts shipped with the binary.
func Embedded() Source { return embedded{} }

func (embedded) Script(table string) (string, error) {
	b, err := files.ReadFile(path.Join("sql", table+".sql"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w for table %q", ErrNoScript, table)
		}
		return "", fmt.Errorf("read script for %q: %w", table, err)
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", fmt.Errorf("%w for table %q: script is empty", ErrNoScript, table)
	}
	return string(b), nil
}

// Tables lists the tables with an embedded script, sorted by name.
func Tables() []string {
	entries, err := files.ReadDir("sql")
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".sql"); ok && !e.IsDir() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Map is an in-memory Source, mostly for tests.
type Map map[string]string

func (m Map) Script(table string) (string, error) {
	s, ok := m[table]
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w for table %q", ErrNoScript, table)
	}
	return s, nil
}
