package sed

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ColumnID addresses a column either by zero-based index or by header name.
// The zero value is column 0.
type ColumnID struct {
	index  int
	name   string
	byName bool
}

// ByIndex addresses the column at zero-based position i.
func ByIndex(i int) ColumnID { return ColumnID{index: i} }

// ByName addresses the first column whose header equals name.
func ByName(name string) ColumnID { return ColumnID{name: name, byName: true} }

func (c ColumnID) String() string {
	if c.byName {
		return strconv.Quote(c.name)
	}
	return strconv.Itoa(c.index)
}

// Modifiers is a set of column modifiers before resolution: either a
// ByColumn mapping or a Positional list.
type Modifiers interface {
	resolve(header []string) (*Table, error)
}

// ByColumn maps column identifiers to modifiers. Values may be spec
// strings, Modifiers or plain functions (see Build); empty values are
// dropped.
type ByColumn map[ColumnID]any

// Positional lists modifiers by column position; entry i applies to column
// i. Empty entries are skipped.
type Positional []any

// Resolve builds the modifier table for header. header may be nil when the
// input has no header row, in which case ByName identifiers fail.
func Resolve(header []string, mods Modifiers) (*Table, error) {
	if mods == nil {
		return &Table{mods: map[int]Modifier{}}, nil
	}
	return mods.resolve(header)
}

func (p Positional) resolve(_ []string) (*Table, error) {
	t := &Table{mods: make(map[int]Modifier, len(p))}
	for i, v := range p {
		m, err := Build(v)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		if m != nil {
			t.set(i, m)
		}
	}
	return t, nil
}

func (bc ByColumn) resolve(header []string) (*Table, error) {
	// parse in a stable order so external commands start deterministically
	ids := make([]ColumnID, 0, len(bc))
	for id := range bc {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return lessColumnID(ids[i], ids[j]) })

	t := &Table{mods: make(map[int]Modifier, len(bc))}
	fail := func(err error) (*Table, error) {
		t.Close()
		return nil, err
	}

	for _, id := range ids {
		m, err := Build(bc[id])
		if err != nil {
			return fail(fmt.Errorf("column %s: %w", id, err))
		}
		if m == nil {
			continue
		}
		idx, err := id.resolve(header)
		if err == nil {
			if _, taken := t.mods[idx]; taken {
				err = &ColumnConflictError{Column: id.String(), Index: idx,
					Reason: "column already has a modifier"}
			}
		}
		if err != nil {
			Close(m)
			return fail(err)
		}
		t.set(idx, m)
	}
	return t, nil
}

// resolve returns the column index id refers to in header. Indices are
// returned as is; since they sort first, a name that lands on an index
// already in the table is reported as a conflict by the caller.
func (id ColumnID) resolve(header []string) (int, error) {
	if !id.byName {
		if id.index < 0 {
			return -1, &ColumnConflictError{Column: id.String(), Index: -1,
				Reason: "negative column index"}
		}
		return id.index, nil
	}
	if header == nil {
		return -1, &ColumnConflictError{Column: id.String(), Index: -1,
			Reason: "cannot resolve a column name without a header row"}
	}
	for i, h := range header {
		if h == id.name {
			return i, nil
		}
	}
	return -1, &ColumnConflictError{Column: id.String(), Index: -1,
		Reason: "no such column in header"}
}

// indices sort before names; names sort lexically
func lessColumnID(a, b ColumnID) bool {
	if a.byName != b.byName {
		return !a.byName
	}
	if a.byName {
		return a.name < b.name
	}
	return a.index < b.index
}

// Table is a resolved set of modifiers keyed by column index. Modifiers are
// applied in ascending column order.
type Table struct {
	mods    map[int]Modifier
	columns []int
}

func (t *Table) set(col int, m Modifier) {
	t.mods[col] = m
	t.columns = append(t.columns, col)
	sort.Ints(t.columns)
}

// Len returns the number of modified columns.
func (t *Table) Len() int { return len(t.columns) }

// Columns returns the modified column indices in ascending order.
func (t *Table) Columns() []int {
	return append([]int(nil), t.columns...)
}

// Modifier returns the modifier for column col, or nil.
func (t *Table) Modifier(col int) Modifier { return t.mods[col] }

// Apply rewrites the configured cells of row in place. line is used for
// error reporting only.
func (t *Table) Apply(row []string, line int) error {
	for _, col := range t.columns {
		if col >= len(row) {
			return &RowWidthError{Line: line, Column: col, Width: len(row)}
		}
		v, err := t.mods[col].Apply(row[col])
		if err != nil {
			return fmt.Errorf("line %d, column %d: %w", line, col, err)
		}
		row[col] = v
	}
	return nil
}

// Close releases every modifier in the table.
func (t *Table) Close() error {
	var errs []error
	for _, col := range t.columns {
		if err := Close(t.mods[col]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
