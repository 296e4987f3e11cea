package dataset

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

// Matrix is a dense, column-named float64 matrix. NaN marks a missing value.
type Matrix struct {
	Columns []string
	Rows    [][]float64
}

func (m *Matrix) ColumnIndex(name string) int {
	for i, c := range m.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// WithTarget returns a copy of m with target appended as the last column.
func (m *Matrix) WithTarget(name string, target []float64) (*Matrix, error) {
	if len(target) != len(m.Rows) {
		return nil, fmt.Errorf("target has %d values, matrix has %d rows", len(target), len(m.Rows))
	}
	out := &Matrix{Columns: append(append([]string(nil), m.Columns...), name)}
	out.Rows = make([][]float64, len(m.Rows))
	for i, row := range m.Rows {
		out.Rows[i] = append(append(make([]float64, 0, len(row)+1), row...), target[i])
	}
	return out, nil
}

// SplitTarget removes the named column and returns it separately.
func (m *Matrix) SplitTarget(name string) (*Matrix, []float64, error) {
	idx := m.ColumnIndex(name)
	if idx < 0 {
		return nil, nil, fmt.Errorf("target column %q not found", name)
	}
	out := &Matrix{Columns: make([]string, 0, len(m.Columns)-1)}
	out.Columns = append(out.Columns, m.Columns[:idx]...)
	out.Columns = append(out.Columns, m.Columns[idx+1:]...)
	target := make([]float64, len(m.Rows))
	out.Rows = make([][]float64, len(m.Rows))
	for i, row := range m.Rows {
		target[i] = row[idx]
		next := make([]float64, 0, len(row)-1)
		next = append(next, row[:idx]...)
		out.Rows[i] = append(next, row[idx+1:]...)
	}
	return out, target, nil
}

func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteMatrixCSV writes a numeric matrix; NaN cells are written empty.
func WriteMatrixCSV(path string, m *Matrix) error {
	values := make([][]Cell, len(m.Columns))
	for j := range m.Columns {
		cells := make([]Cell, len(m.Rows))
		for i, row := range m.Rows {
			if !math.IsNaN(row[j]) {
				cells[i] = Str(FormatFloat(row[j]))
			}
		}
		values[j] = cells
	}
	t, err := NewTable(m.Columns, values)
	if err != nil {
		return err
	}
	return WriteCSV(path, t)
}

// ReadMatrixCSV loads an all-numeric CSV. Empty cells become NaN.
func ReadMatrixCSV(path string) (*Matrix, error) {
	t, err := ReadCSV(path)
	if err != nil {
		return nil, err
	}
	m := &Matrix{Columns: t.Columns(), Rows: make([][]float64, t.Len())}
	for i := range m.Rows {
		m.Rows[i] = make([]float64, len(m.Columns))
	}
	for j, name := range m.Columns {
		cells, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		for i, c := range cells {
			if c.IsNull() {
				m.Rows[i][j] = math.NaN()
				continue
			}
			v, ok := c.Float()
			if !ok {
				return nil, fmt.Errorf("%s: row %d column %q: non-numeric value %q", path, i+1, name, c.Value)
			}
			m.Rows[i][j] = v
		}
	}
	return m, nil
}

const parquetRowGroupRows = 100_000

// WriteMatrixParquet writes m as a flat Parquet file with one optional DOUBLE
// column per matrix column. Parquet orders group fields by name, so the
// physical column order is lexicographic; readers should select by name.
func WriteMatrixParquet(path string, m *Matrix) error {
	return writeFile(path, func(w io.Writer) error { return EncodeMatrixParquet(w, m) })
}

func EncodeMatrixParquet(w io.Writer, m *Matrix) error {
	group := make(parquet.Group, len(m.Columns))
	for _, c := range m.Columns {
		group[c] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
	}
	schema := parquet.NewSchema("features", group)

	// physical column index -> matrix column index
	order := make([]int, 0, len(m.Columns))
	for _, path := range schema.Columns() {
		order = append(order, m.ColumnIndex(path[0]))
	}

	writer := parquet.NewWriter(w, schema, parquet.Compression(&parquet.Snappy))
	buf := make([]parquet.Row, 0, 1024)
	for i, row := range m.Rows {
		values := make(parquet.Row, len(order))
		for col, src := range order {
			v := row[src]
			if math.IsNaN(v) {
				values[col] = parquet.NullValue().Level(0, 0, col)
				continue
			}
			values[col] = parquet.DoubleValue(v).Level(0, 1, col)
		}
		buf = append(buf, values)
		if len(buf) == cap(buf) {
			if _, err := writer.WriteRows(buf); err != nil {
				return fmt.Errorf("write rows: %w", err)
			}
			buf = buf[:0]
		}
		if (i+1)%parquetRowGroupRows == 0 {
			if _, err := writer.WriteRows(buf); err != nil {
				return fmt.Errorf("write rows: %w", err)
			}
			buf = buf[:0]
			if err := writer.Flush(); err != nil {
				return fmt.Errorf("flush row group: %w", err)
			}
		}
	}
	if len(buf) > 0 {
		if _, err := writer.WriteRows(buf); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
	}
	return writer.Close()
}
