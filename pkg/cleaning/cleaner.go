// Package cleaning turns the raw encounter table into the cleaned table:
// sentinel normalisation, column and row drops, administrative and
// diagnosis regrouping, and the binary readmission target.
package cleaning

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/readmission/pkg/common/logger"
	"github.com/synaptica-ai/readmission/pkg/dataset"
	"github.com/synaptica-ai/readmission/pkg/terminology"
)

const (
	ColumnRace                 = "race"
	ColumnGender               = "gender"
	ColumnAge                  = "age"
	ColumnDischargeDisposition = "discharge_disposition_id"
	ColumnAdmissionSource      = "admission_source_id"
	ColumnReadmitted           = "readmitted"

	ColumnDischargeGroup = "discharge_disposition_group"
	ColumnAdmissionGroup = "admission_source_group"
	ColumnTarget         = "readmitted_binary"

	// ReadmittedWithin30 is the only label that yields a positive target.
	ReadmittedWithin30 = "<30"
)

// DiagnosisColumns are the raw diagnosis slots, in order.
var DiagnosisColumns = []string{"diag_1", "diag_2", "diag_3"}

// CategoryColumn names the derived category column for a diagnosis slot.
func CategoryColumn(diag string) string {
	return diag + "_cat"
}

type Options struct {
	Catalog terminology.Catalog

	// MissingSentinel marks an absent value in the raw file.
	MissingSentinel string
	// RequiredColumns must be present or Clean fails with a SchemaError.
	RequiredColumns []string
	// HighMissingColumns are always dropped when present.
	HighMissingColumns []string
	// MissingnessCutoff, when above zero, also drops any non-required column
	// whose missing percentage exceeds it.
	MissingnessCutoff float64
	// CriticalColumns drop the row when null.
	CriticalColumns []string
	// SourceColumns are removed after the derived columns are built.
	SourceColumns []string
}

func DefaultOptions() Options {
	return Options{
		Catalog:         terminology.DefaultCatalog(),
		MissingSentinel: "?",
		RequiredColumns: []string{
			ColumnRace, ColumnGender, "diag_1",
			ColumnDischargeDisposition, ColumnAdmissionSource, ColumnReadmitted,
		},
		HighMissingColumns: []string{"weight", "payer_code", "medical_specialty"},
		CriticalColumns:    []string{ColumnRace, ColumnGender, "diag_1"},
		SourceColumns: []string{
			"encounter_id", "patient_nbr", "admission_type_id",
			ColumnDischargeDisposition, ColumnAdmissionSource,
			"diag_1", "diag_2", "diag_3", ColumnReadmitted,
		},
	}
}

type Cleaner struct {
	opts Options
}

func NewCleaner(opts Options) (*Cleaner, error) {
	if err := opts.Catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	if opts.MissingnessCutoff < 0 || opts.MissingnessCutoff > 100 {
		return nil, fmt.Errorf("missingness cutoff %.2f outside [0, 100]", opts.MissingnessCutoff)
	}
	return &Cleaner{opts: opts}, nil
}

// ColumnMissingness is the share of null cells in a column, in percent.
type ColumnMissingness struct {
	Column  string  `json:"column"`
	Percent float64 `json:"percent"`
}

// Report is diagnostic output from a Clean call. It never affects the result.
type Report struct {
	InputRows      int                 `json:"input_rows"`
	OutputRows     int                 `json:"output_rows"`
	DroppedRows    int                 `json:"dropped_rows"`
	DroppedColumns []string            `json:"dropped_columns"`
	Missingness    []ColumnMissingness `json:"missingness"`
}

// Clean returns a new cleaned table; raw is not modified.
func (c *Cleaner) Clean(raw *dataset.Table) (*dataset.Table, Report, error) {
	if missing := c.missingRequired(raw); len(missing) > 0 {
		return nil, Report{}, &SchemaError{Missing: missing}
	}

	t := raw.Clone()
	report := Report{InputRows: t.Len()}

	if err := c.normalizeSentinel(t); err != nil {
		return nil, Report{}, err
	}
	missingness, err := Missingness(t)
	if err != nil {
		return nil, Report{}, err
	}
	report.Missingness = missingness
	logMissingness(report.Missingness)

	if report.DroppedColumns, err = t.DropColumns(c.columnsToDrop(report.Missingness)...); err != nil {
		return nil, Report{}, err
	}
	if report.DroppedRows, err = t.DropNullRows(c.opts.CriticalColumns...); err != nil {
		return nil, Report{}, err
	}

	if err := c.deriveColumns(t); err != nil {
		return nil, Report{}, err
	}
	if _, err := t.DropColumns(c.opts.SourceColumns...); err != nil {
		return nil, Report{}, err
	}

	report.OutputRows = t.Len()
	logger.Log.WithFields(logrus.Fields{
		"input_rows":      report.InputRows,
		"output_rows":     report.OutputRows,
		"dropped_rows":    report.DroppedRows,
		"dropped_columns": report.DroppedColumns,
		"columns":         len(t.Columns()),
	}).Info("cleaning complete")

	return t, report, nil
}

func (c *Cleaner) missingRequired(t *dataset.Table) []string {
	var missing []string
	for _, name := range c.opts.RequiredColumns {
		if !t.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

func (c *Cleaner) normalizeSentinel(t *dataset.Table) error {
	for _, name := range t.Columns() {
		err := t.MapColumn(name, func(cell dataset.Cell) dataset.Cell {
			if cell.Valid && cell.Value == c.opts.MissingSentinel {
				return dataset.Null()
			}
			return cell
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Cleaner) columnsToDrop(missingness []ColumnMissingness) []string {
	drop := append([]string(nil), c.opts.HighMissingColumns...)
	if c.opts.MissingnessCutoff <= 0 {
		return drop
	}
	required := make(map[string]struct{}, len(c.opts.RequiredColumns))
	for _, name := range c.opts.RequiredColumns {
		required[name] = struct{}{}
	}
	for _, m := range missingness {
		if _, ok := required[m.Column]; ok {
			continue
		}
		if m.Percent > c.opts.MissingnessCutoff {
			drop = append(drop, m.Column)
		}
	}
	return drop
}

func (c *Cleaner) deriveColumns(t *dataset.Table) error {
	cat := c.opts.Catalog

	err := t.DeriveColumn(ColumnDischargeDisposition, ColumnDischargeGroup, func(cell dataset.Cell) dataset.Cell {
		return dataset.Str(cat.DischargeDisposition(cell.Value, cell.Valid))
	})
	if err != nil {
		return err
	}

	err = t.DeriveColumn(ColumnAdmissionSource, ColumnAdmissionGroup, func(cell dataset.Cell) dataset.Cell {
		return dataset.Str(cat.AdmissionSource(cell.Value, cell.Valid))
	})
	if err != nil {
		return err
	}

	for _, diag := range DiagnosisColumns {
		if !t.HasColumn(diag) {
			fallback := make([]dataset.Cell, t.Len())
			for i := range fallback {
				fallback[i] = dataset.Str(cat.ICD9Fallback)
			}
			if err := t.AddColumn(CategoryColumn(diag), fallback); err != nil {
				return err
			}
			continue
		}
		err := t.DeriveColumn(diag, CategoryColumn(diag), func(cell dataset.Cell) dataset.Cell {
			return dataset.Str(cat.ICD9Category(cell.Value, cell.Valid))
		})
		if err != nil {
			return err
		}
	}

	return t.DeriveColumn(ColumnReadmitted, ColumnTarget, func(cell dataset.Cell) dataset.Cell {
		if Readmitted(cell) {
			return dataset.Str("1")
		}
		return dataset.Str("0")
	})
}

// Readmitted reports whether a raw label counts as a 30-day readmission.
func Readmitted(label dataset.Cell) bool {
	return label.Valid && label.Value == ReadmittedWithin30
}

// Missingness computes the percentage of null cells per column, keeping only
// columns with at least one null, in table order.
func Missingness(t *dataset.Table) ([]ColumnMissingness, error) {
	if t.Len() == 0 {
		return nil, nil
	}
	var out []ColumnMissingness
	for _, name := range t.Columns() {
		n, err := t.NullCount(name)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		out = append(out, ColumnMissingness{
			Column:  name,
			Percent: float64(n) * 100 / float64(t.Len()),
		})
	}
	return out, nil
}

func logMissingness(missingness []ColumnMissingness) {
	for _, m := range missingness {
		logger.Log.WithFields(logrus.Fields{
			"column":      m.Column,
			"missing_pct": fmt.Sprintf("%.2f", m.Percent),
		}).Info("column missingness")
	}
}
