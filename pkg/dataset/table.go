// Package dataset holds the in-memory tabular model shared by the cleaning
// and feature stages, plus its CSV and Parquet codecs.
package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// naValue is how gota spells a missing string element.
const naValue = "NaN"

// Cell is a single table value. A zero Cell is null.
type Cell struct {
	Value string
	Valid bool
}

func Str(v string) Cell {
	return Cell{Value: v, Valid: true}
}

func Null() Cell {
	return Cell{}
}

func (c Cell) IsNull() bool {
	return !c.Valid
}

// Float parses the cell as a number. Null or non-numeric cells report false.
func (c Cell) Float() (float64, bool) {
	if !c.Valid {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func cellOf(e series.Element) Cell {
	if e.IsNA() {
		return Null()
	}
	return Str(e.String())
}

// stringSeries builds a gota string column; null cells become NA elements.
func stringSeries(name string, cells []Cell) series.Series {
	values := make([]string, len(cells))
	for i, c := range cells {
		values[i] = naValue
		if c.Valid {
			values[i] = c.Value
		}
	}
	return series.New(values, series.String, name)
}

// Table is a dataframe of string columns with unique names. Every operation
// replaces the underlying frame, so a Clone is never affected by later edits.
type Table struct {
	df dataframe.DataFrame
}

// NewTable builds a table from column-ordered cells. Every column must have
// the same length.
func NewTable(columns []string, values [][]Cell) (*Table, error) {
	if len(columns) != len(values) {
		return nil, fmt.Errorf("%d column names for %d columns", len(columns), len(values))
	}
	if err := checkUnique(columns); err != nil {
		return nil, err
	}
	cols := make([]series.Series, len(columns))
	for j, name := range columns {
		if len(values[j]) != len(values[0]) {
			return nil, fmt.Errorf("column %q has %d rows, want %d", name, len(values[j]), len(values[0]))
		}
		cols[j] = stringSeries(name, values[j])
	}
	return fromFrame(dataframe.New(cols...))
}

func fromFrame(df dataframe.DataFrame) (*Table, error) {
	if df.Err != nil {
		return nil, df.Err
	}
	if err := checkUnique(df.Names()); err != nil {
		return nil, err
	}
	return &Table{df: df}, nil
}

func checkUnique(columns []string) error {
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, dup := seen[c]; dup {
			return fmt.Errorf("duplicate column %q", c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

// Columns returns the column names in table order.
func (t *Table) Columns() []string {
	return t.df.Names()
}

// ColumnIndex returns the position of name, or -1 when absent.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.df.Names() {
		if c == name {
			return i
		}
	}
	return -1
}

func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

func (t *Table) Len() int {
	return t.df.Nrow()
}

// Column returns a copy of the named column's cells.
func (t *Table) Column(name string) ([]Cell, error) {
	if !t.HasColumn(name) {
		return nil, fmt.Errorf("column %q not found", name)
	}
	s := t.df.Col(name)
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]Cell, s.Len())
	for i := range out {
		out[i] = cellOf(s.Elem(i))
	}
	return out, nil
}

// NullCount reports how many cells of the named column are null.
func (t *Table) NullCount(name string) (int, error) {
	if !t.HasColumn(name) {
		return 0, fmt.Errorf("column %q not found", name)
	}
	n := 0
	for _, na := range t.df.Col(name).IsNaN() {
		if na {
			n++
		}
	}
	return n, nil
}

// Clone copies the table so callers can transform it without touching the source.
func (t *Table) Clone() *Table {
	return &Table{df: t.df.Copy()}
}

// AddColumn appends a column of precomputed cells.
func (t *Table) AddColumn(name string, cells []Cell) error {
	if t.HasColumn(name) {
		return fmt.Errorf("column %q already exists", name)
	}
	return t.mutate(name, cells)
}

// DeriveColumn appends a column computed cell by cell from source.
func (t *Table) DeriveColumn(source, name string, fn func(Cell) Cell) error {
	cells, err := t.Column(source)
	if err != nil {
		return err
	}
	for i, c := range cells {
		cells[i] = fn(c)
	}
	return t.AddColumn(name, cells)
}

// MapColumn rewrites every cell of the named column.
func (t *Table) MapColumn(name string, fn func(Cell) Cell) error {
	cells, err := t.Column(name)
	if err != nil {
		return err
	}
	for i, c := range cells {
		cells[i] = fn(c)
	}
	return t.mutate(name, cells)
}

func (t *Table) mutate(name string, cells []Cell) error {
	if len(cells) != t.Len() {
		return fmt.Errorf("column %q has %d rows, table has %d", name, len(cells), t.Len())
	}
	df := t.df.Mutate(stringSeries(name, cells))
	if df.Err != nil {
		return fmt.Errorf("set column %q: %w", name, df.Err)
	}
	t.df = df
	return nil
}

// DropColumns removes the named columns, ignoring names that are absent.
// It returns the names actually removed, in table order.
func (t *Table) DropColumns(names ...string) ([]string, error) {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	var removed []string
	for _, c := range t.df.Names() {
		if _, ok := drop[c]; ok {
			removed = append(removed, c)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}
	df := t.df.Drop(removed)
	if df.Err != nil {
		return nil, fmt.Errorf("drop columns: %w", df.Err)
	}
	t.df = df
	return removed, nil
}

// DropNullRows removes every row that is null in any of the named columns and
// reports how many were removed. Absent columns are ignored.
func (t *Table) DropNullRows(columns ...string) (int, error) {
	keep := make([]bool, t.Len())
	for i := range keep {
		keep[i] = true
	}
	for _, name := range columns {
		if !t.HasColumn(name) {
			continue
		}
		for i, na := range t.df.Col(name).IsNaN() {
			if na {
				keep[i] = false
			}
		}
	}
	removed := 0
	for _, k := range keep {
		if !k {
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	df := t.df.Subset(keep)
	if df.Err != nil {
		return 0, fmt.Errorf("filter rows: %w", df.Err)
	}
	t.df = df
	return removed, nil
}
