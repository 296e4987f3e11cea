// Package features turns the cleaned encounter table into a numeric feature
// matrix and a separate binary target.
//
// The matrix schema is derived from the categories present in the input:
// a category that appears in one run and not another adds or removes an
// indicator column. Consumers that score new data must align it to the
// column list pinned from the training run (see serving/predictor).
package features

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/readmission/pkg/cleaning"
	"github.com/synaptica-ai/readmission/pkg/common/logger"
	"github.com/synaptica-ai/readmission/pkg/dataset"
	"github.com/synaptica-ai/readmission/pkg/terminology"
)

const (
	ColumnComorbidity = "comorbidity_count"
	ColumnAgeNumeric  = "age_numeric"

	indicatorSeparator = "_"
)

type Options struct {
	Catalog terminology.Catalog

	DiagnosisCategoryColumns []string
	// NonComorbidCategory is excluded from the comorbidity count.
	NonComorbidCategory string
	AgeColumn           string
	TargetColumn        string
}

func DefaultOptions() Options {
	cat := terminology.DefaultCatalog()
	diag := make([]string, len(cleaning.DiagnosisColumns))
	for i, d := range cleaning.DiagnosisColumns {
		diag[i] = cleaning.CategoryColumn(d)
	}
	return Options{
		Catalog:                  cat,
		DiagnosisCategoryColumns: diag,
		NonComorbidCategory:      cat.ICD9Fallback,
		AgeColumn:                cleaning.ColumnAge,
		TargetColumn:             cleaning.ColumnTarget,
	}
}

type Encoder struct {
	opts Options
}

func NewEncoder(opts Options) (*Encoder, error) {
	if opts.TargetColumn == "" {
		return nil, fmt.Errorf("target column required")
	}
	if opts.AgeColumn != "" && len(opts.Catalog.AgeMidpoints) == 0 {
		return nil, fmt.Errorf("age column %q configured without age midpoints", opts.AgeColumn)
	}
	return &Encoder{opts: opts}, nil
}

// ColumnEncoding records how one categorical column was expanded. Reference
// is the dropped category; Categories lists the indicator columns' categories
// in output order.
type ColumnEncoding struct {
	Source     string   `json:"source"`
	Reference  string   `json:"reference"`
	Categories []string `json:"categories"`
	Columns    []string `json:"columns"`
}

// Category reconstructs the source value from the indicator values. An
// all-zero vector is the reference category; ok is false for a vector that
// no single category produced.
func (e ColumnEncoding) Category(indicators []float64) (string, bool) {
	found := -1
	for i, v := range indicators {
		if v == 0 {
			continue
		}
		if v != 1 || found >= 0 {
			return "", false
		}
		found = i
	}
	if found < 0 {
		return e.Reference, true
	}
	return e.Categories[found], true
}

type Result struct {
	Features  *dataset.Matrix
	Target    []float64
	Encodings []ColumnEncoding
	// Passthrough lists the numeric source columns copied unchanged.
	Passthrough []string
}

// Encode builds the feature matrix. The cleaned table is not modified.
func (e *Encoder) Encode(cleaned *dataset.Table) (*Result, error) {
	names := cleaned.Columns()
	cols := make([][]dataset.Cell, len(names))
	for j, name := range names {
		cells, err := cleaned.Column(name)
		if err != nil {
			return nil, err
		}
		cols[j] = cells
	}

	targetIdx := cleaned.ColumnIndex(e.opts.TargetColumn)
	if targetIdx < 0 {
		return nil, fmt.Errorf("target column %q not found", e.opts.TargetColumn)
	}

	n := cleaned.Len()
	target := make([]float64, n)
	for i, cell := range cols[targetIdx] {
		v, ok := cell.Float()
		if !ok || (v != 0 && v != 1) {
			return nil, fmt.Errorf("row %d: target %q is not binary", i, cell.Value)
		}
		target[i] = v
	}

	comorbidity := e.comorbidity(cleaned, cols)
	age, ageIdx := e.ageMidpoints(cleaned, cols)

	var (
		numeric     []int
		categorical []int
	)
	for j := range names {
		if j == targetIdx || j == ageIdx {
			continue
		}
		if isNumeric(cols[j]) {
			numeric = append(numeric, j)
			continue
		}
		categorical = append(categorical, j)
	}

	result := &Result{Target: target, Features: &dataset.Matrix{}}
	for _, j := range numeric {
		result.Passthrough = append(result.Passthrough, names[j])
	}
	columns := append([]string(nil), result.Passthrough...)
	columns = append(columns, ColumnComorbidity)
	if age != nil {
		columns = append(columns, ColumnAgeNumeric)
	}

	lookups := make([]map[string]int, len(categorical))
	for k, j := range categorical {
		enc := encodeColumn(names[j], cols[j])
		lookup := make(map[string]int, len(enc.Categories))
		for c, category := range enc.Categories {
			lookup[category] = len(columns) + c
		}
		lookups[k] = lookup
		columns = append(columns, enc.Columns...)
		result.Encodings = append(result.Encodings, enc)
	}
	result.Features.Columns = columns

	result.Features.Rows = make([][]float64, n)
	for i := 0; i < n; i++ {
		values := make([]float64, len(columns))
		pos := 0
		for _, j := range numeric {
			v, ok := cols[j][i].Float()
			if !ok {
				v = math.NaN()
			}
			values[pos] = v
			pos++
		}
		values[pos] = float64(comorbidity[i])
		pos++
		if age != nil {
			values[pos] = age[i]
		}
		for k, j := range categorical {
			cell := cols[j][i]
			if cell.IsNull() {
				continue
			}
			if col, ok := lookups[k][cell.Value]; ok {
				values[col] = 1
			}
		}
		result.Features.Rows[i] = values
	}

	logger.Log.WithFields(logrus.Fields{
		"rows":             n,
		"feature_columns":  len(columns),
		"passthrough":      len(numeric),
		"categorical":      len(categorical),
		"indicator_groups": len(result.Encodings),
	}).Info("encoding complete")

	return result, nil
}

// comorbidity counts the distinct non-default diagnosis categories per row.
func (e *Encoder) comorbidity(t *dataset.Table, cols [][]dataset.Cell) []int {
	var diag [][]dataset.Cell
	for _, name := range e.opts.DiagnosisCategoryColumns {
		if j := t.ColumnIndex(name); j >= 0 {
			diag = append(diag, cols[j])
		}
	}
	out := make([]int, t.Len())
	seen := make(map[string]struct{}, len(diag))
	for i := range out {
		clear(seen)
		for _, col := range diag {
			cell := col[i]
			if cell.IsNull() || cell.Value == e.opts.NonComorbidCategory {
				continue
			}
			seen[cell.Value] = struct{}{}
		}
		out[i] = len(seen)
	}
	return out
}

// ageMidpoints maps the age bucket column to numbers. It returns nil and -1
// when the table has no age column.
func (e *Encoder) ageMidpoints(t *dataset.Table, cols [][]dataset.Cell) ([]float64, int) {
	if e.opts.AgeColumn == "" {
		return nil, -1
	}
	j := t.ColumnIndex(e.opts.AgeColumn)
	if j < 0 {
		return nil, -1
	}
	out := make([]float64, t.Len())
	for i, cell := range cols[j] {
		out[i], _ = e.opts.Catalog.AgeMidpoint(cell.Value, cell.Valid)
	}
	return out, j
}

// isNumeric reports whether every non-null cell parses as a number.
func isNumeric(cells []dataset.Cell) bool {
	for _, cell := range cells {
		if cell.IsNull() {
			continue
		}
		if _, ok := cell.Float(); !ok {
			return false
		}
	}
	return true
}

// encodeColumn sorts the observed categories and drops the first as reference.
func encodeColumn(name string, cells []dataset.Cell) ColumnEncoding {
	seen := make(map[string]struct{})
	for _, cell := range cells {
		if cell.Valid {
			seen[cell.Value] = struct{}{}
		}
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	enc := ColumnEncoding{Source: name}
	if len(categories) == 0 {
		return enc
	}
	enc.Reference = categories[0]
	enc.Categories = categories[1:]
	enc.Columns = make([]string, len(enc.Categories))
	for i, c := range enc.Categories {
		enc.Columns[i] = name + indicatorSeparator + c
	}
	return enc
}
