// Package schema holds the read-only table/column catalog that grounds
// completion prompts.
//
// A Descriptor is built once at startup and shared by every request without
// locking; nothing in this package mutates a Descriptor after construction.
package schema

import (
	"fmt"
	"strings"

	"github.com/kyleking/current/internal/errors"
)

// Table is one table and its columns in declaration order.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// Descriptor maps table names to ordered column names.
type Descriptor struct {
	tables []Table
	index  map[string]int
}

// Empty returns a descriptor with no tables.
func Empty() *Descriptor {
	return &Descriptor{index: map[string]int{}}
}

// New validates tables and returns a descriptor that owns a private copy of them.
func New(tables []Table) (*Descriptor, error) {
	d := &Descriptor{
		tables: make([]Table, 0, len(tables)),
		index:  make(map[string]int, len(tables)),
	}

	for _, t := range tables {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, errors.New(errors.ErrTypeValidation, "table name must not be empty")
		}

		if _, dup := d.index[name]; dup {
			return nil, errors.Newf(errors.ErrTypeValidation, "duplicate table %q", name)
		}

		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			c = strings.TrimSpace(c)
			if c == "" {
				return nil, errors.Newf(errors.ErrTypeValidation, "table %q has an empty column name at position %d", name, i)
			}
			cols[i] = c
		}

		d.index[name] = len(d.tables)
		d.tables = append(d.tables, Table{Name: name, Columns: cols})
	}

	return d, nil
}

// Len returns the number of tables.
func (d *Descriptor) Len() int {
	if d == nil {
		return 0
	}

	return len(d.tables)
}

// Tables returns a copy of the tables in source order.
func (d *Descriptor) Tables() []Table {
	if d == nil {
		return nil
	}

	out := make([]Table, len(d.tables))
	for i, t := range d.tables {
		out[i] = Table{Name: t.Name, Columns: append([]string(nil), t.Columns...)}
	}

	return out
}

// Columns returns a copy of the columns for table, if present.
func (d *Descriptor) Columns(table string) ([]string, bool) {
	if d == nil {
		return nil, false
	}

	i, ok := d.index[table]
	if !ok {
		return nil, false
	}

	return append([]string(nil), d.tables[i].Columns...), true
}

// Format renders one "table: col1, col2" line per table, in source order.
func (d *Descriptor) Format() string {
	if d.Len() == 0 {
		return ""
	}

	var sb strings.Builder
	for i, t := range d.tables {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(t.Name)
		sb.WriteString(": ")
		sb.WriteString(strings.Join(t.Columns, ", "))
	}

	return sb.String()
}

// String implements fmt.Stringer.
func (d *Descriptor) String() string {
	return fmt.Sprintf("schema(%d tables)", d.Len())
}
