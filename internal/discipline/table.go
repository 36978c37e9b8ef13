// Package discipline holds the discipline table shared by the classifier and
// the extraction prompt builder, and the two classification strategies.
package discipline

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tags that are not regular table entries.
const (
	General       = "General"
	Undetermined  = "Undetermined"
	Architectural = "Architectural"
)

//go:embed disciplines.yaml
var defaultTable []byte

// Discipline is one row of the table: its accepted filename prefixes, the path
// keywords that identify it, and the guidance handed to the extraction model.
type Discipline struct {
	Name         string   `yaml:"name"`
	Prefixes     []string `yaml:"prefixes"`
	PathKeywords []string `yaml:"path_keywords"`
	Guidance     string   `yaml:"guidance"`
}

// Table is the ordered discipline table. Earlier entries win ties.
type Table struct {
	Disciplines []Discipline `yaml:"disciplines"`
	byName      map[string]int
}

// ErrEmptyTable is returned when a table file declares no disciplines.
var ErrEmptyTable = errors.New("discipline table is empty")

// Default returns the built-in table.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("embedded discipline table: %v", err))
	}
	return t
}

// Load reads a table from path, or returns the built-in table when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading discipline table %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("discipline table %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a YAML discipline table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing discipline table: %w", err)
	}
	if len(t.Disciplines) == 0 {
		return nil, ErrEmptyTable
	}
	t.byName = make(map[string]int, len(t.Disciplines))
	for i, d := range t.Disciplines {
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("discipline at index %d has no name", i)
		}
		if _, dup := t.byName[d.Name]; dup {
			return nil, fmt.Errorf("discipline %q declared twice", d.Name)
		}
		t.byName[d.Name] = i
	}
	return &t, nil
}

// Lookup returns the discipline with the given name.
func (t *Table) Lookup(name string) (Discipline, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Discipline{}, false
	}
	return t.Disciplines[i], true
}

// Guidance returns the guidance text for a discipline, falling back to the
// General entry when the discipline has none.
func (t *Table) Guidance(name string) string {
	if d, ok := t.Lookup(name); ok && d.Guidance != "" {
		return d.Guidance
	}
	if d, ok := t.Lookup(General); ok {
		return d.Guidance
	}
	return ""
}
