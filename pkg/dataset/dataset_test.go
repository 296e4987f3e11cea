package dataset

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func column(t *testing.T, tbl *Table, name string) []Cell {
	t.Helper()
	cells, err := tbl.Column(name)
	require.NoError(t, err)
	return cells
}

func TestDecodeCSVTreatsEmptyAsNull(t *testing.T) {
	input := "\ufeffrace,gender,weight\nCaucasian,Female,?\n,Male,[75-100)\n"
	tbl, err := DecodeCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"race", "gender", "weight"}, tbl.Columns())
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, []Cell{Str("?"), Str("[75-100)")}, column(t, tbl, "weight"))
	assert.Equal(t, []Cell{Str("Caucasian"), Null()}, column(t, tbl, "race"))

	n, err := tbl.NullCount("race")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDecodeCSVKeepsIdentifiersAsText(t *testing.T) {
	tbl, err := DecodeCSV(strings.NewReader("diag_1,admission_source_id\n250.10,7\nV57,01\n"))
	require.NoError(t, err)
	assert.Equal(t, []Cell{Str("250.10"), Str("V57")}, column(t, tbl, "diag_1"))
	assert.Equal(t, []Cell{Str("7"), Str("01")}, column(t, tbl, "admission_source_id"))
}

func TestDecodeCSVRejectsEmptyInput(t *testing.T) {
	_, err := DecodeCSV(strings.NewReader(""))
	require.Error(t, err)
}

func TestNewTableRejectsDuplicateColumns(t *testing.T) {
	_, err := NewTable([]string{"a", "a"}, [][]Cell{{Str("1")}, {Str("2")}})
	require.Error(t, err)

	_, err = NewTable([]string{"a", "b"}, [][]Cell{{Str("1")}, {}})
	require.Error(t, err)
}

func TestTableDropAndFilter(t *testing.T) {
	tbl, err := NewTable([]string{"a", "b", "c"}, [][]Cell{
		{Str("1"), Str("2")},
		{Str("x"), Null()},
		{Null(), Str("z")},
	})
	require.NoError(t, err)

	removed, err := tbl.DropColumns("b", "missing")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, removed)
	assert.Equal(t, []string{"a", "c"}, tbl.Columns())
	assert.Equal(t, 1, tbl.ColumnIndex("c"))
	assert.Equal(t, -1, tbl.ColumnIndex("b"))

	dropped, err := tbl.DropNullRows("c", "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, []Cell{Str("2")}, column(t, tbl, "a"))

	dropped, err = tbl.DropNullRows("a")
	require.NoError(t, err)
	assert.Zero(t, dropped)
}

func TestCloneIsIndependent(t *testing.T) {
	tbl, err := NewTable([]string{"a"}, [][]Cell{{Str("1")}})
	require.NoError(t, err)

	clone := tbl.Clone()
	require.NoError(t, clone.MapColumn("a", func(Cell) Cell { return Str("changed") }))
	require.NoError(t, clone.DeriveColumn("a", "b", func(c Cell) Cell { return Str(c.Value + "!") }))
	require.Error(t, clone.AddColumn("b", []Cell{Null()}))
	require.Error(t, clone.AddColumn("c", []Cell{Null(), Null()}))

	assert.Equal(t, []Cell{Str("changed!")}, column(t, clone, "b"))
	assert.Equal(t, []Cell{Str("1")}, column(t, tbl, "a"))
	assert.Equal(t, []string{"a"}, tbl.Columns())
}

func TestCSVRoundTripKeepsNulls(t *testing.T) {
	tbl, err := NewTable([]string{"a", "b"}, [][]Cell{{Str("x,y"), Str("q")}, {Null(), Str("r")}})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	require.NoError(t, WriteCSV(path, tbl))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n\"x,y\",\nq,r\n", string(raw))

	got, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Columns(), got.Columns())
	assert.Equal(t, column(t, tbl, "a"), column(t, got, "a"))
	assert.Equal(t, column(t, tbl, "b"), column(t, got, "b"))
}

func TestReadCSVSurfacesIOError(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMatrixCSVRoundTrip(t *testing.T) {
	m := &Matrix{
		Columns: []string{"age_numeric", "gender_Male"},
		Rows:    [][]float64{{65, 1}, {math.NaN(), 0}},
	}
	path := filepath.Join(t.TempDir(), "features.csv")
	require.NoError(t, WriteMatrixCSV(path, m))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "age_numeric,gender_Male\n65,1\n,0\n", string(raw))

	got, err := ReadMatrixCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 65.0, got.Rows[0][0])
	assert.True(t, math.IsNaN(got.Rows[1][0]))
}

func TestSplitTarget(t *testing.T) {
	m := &Matrix{Columns: []string{"x", "y", "z"}, Rows: [][]float64{{1, 0, 3}, {4, 1, 6}}}
	features, target, err := m.SplitTarget("y")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "z"}, features.Columns)
	assert.Equal(t, [][]float64{{1, 3}, {4, 6}}, features.Rows)
	assert.Equal(t, []float64{0, 1}, target)

	joined, err := features.WithTarget("y", target)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "z", "y"}, joined.Columns)
	assert.Equal(t, []float64{4, 6, 1}, joined.Rows[1])
}

func TestEncodeMatrixParquet(t *testing.T) {
	m := &Matrix{
		Columns: []string{"comorbidity_count", "age_numeric"},
		Rows:    [][]float64{{2, 55}, {0, math.NaN()}, {3, 85}},
	}
	var buf bytes.Buffer
	require.NoError(t, EncodeMatrixParquet(&buf, m))

	f, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.NumRows())
	assert.Equal(t, [][]string{{"age_numeric"}, {"comorbidity_count"}}, f.Schema().Columns())
}
