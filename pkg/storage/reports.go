package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/readmission/pkg/analytics/dsl"
	"github.com/synaptica-ai/readmission/pkg/common/models"
	"github.com/synaptica-ai/readmission/pkg/common/validation"
	"gorm.io/gorm"
)

var ErrUnknownReport = errors.New("unknown report")

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

type report struct {
	description string
	build       func(q *gorm.DB) *gorm.DB
}

func countBy(column string) func(q *gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Select(column + ", COUNT(*) AS count").Group(column).Order("count DESC, " + column)
	}
}

func averageBy(group, value, alias string) func(q *gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Select(fmt.Sprintf("%s, AVG(%s) AS %s", group, value, alias)).Group(group).Order(group)
	}
}

var reports = map[string]report{
	"race_counts": {
		description: "Encounters per race",
		build:       countBy("race"),
	},
	"avg_time_by_gender": {
		description: "Average length of stay per gender",
		build:       averageBy("gender", "time_in_hospital", "avg_time"),
	},
	"readmission_rate_by_age": {
		description: "Share of 30-day readmissions per age bucket",
		build:       averageBy("age", "readmitted_binary", "readmission_rate"),
	},
	"readmission_rate_by_gender": {
		description: "Patients, readmissions and readmission percentage per gender",
		build: func(q *gorm.DB) *gorm.DB {
			return q.Select("gender, COUNT(*) AS total_patients, SUM(readmitted_binary) AS readmitted_count, " +
				"ROUND(CAST(SUM(readmitted_binary) AS NUMERIC) / COUNT(*) * 100, 2) AS readmission_rate").
				Group("gender").Order("readmission_rate DESC, gender")
		},
	},
	"top_primary_diagnoses": {
		description: "Five known primary diagnosis categories with the most readmissions",
		build: func(q *gorm.DB) *gorm.DB {
			return q.Select("diag_1_cat AS primary_diagnosis, COUNT(*) AS total_cases, SUM(readmitted_binary) AS readmissions").
				Where("diag_1_cat <> ?", "others").
				Group("diag_1_cat").Order("readmissions DESC, diag_1_cat").Limit(5)
		},
	},
	"avg_labs_by_readmission": {
		description: "Average lab procedures per readmission outcome",
		build:       averageBy("readmitted_binary", "num_lab_procedures", "avg_lab_procedures"),
	},
	"insulin_counts": {
		description: "Encounters per insulin status",
		build:       countBy("insulin"),
	},
	"high_emergency_count": {
		description: "Encounters with more than five emergency visits",
		build: func(q *gorm.DB) *gorm.DB {
			return q.Select("COUNT(*) AS high_emergency_count").Where("number_emergency > ?", 5)
		},
	},
	"a1c_counts": {
		description: "Encounters per A1C result",
		build:       countBy("a1c_result"),
	},
	"avg_procedures_by_admission_source": {
		description: "Average procedures per admission source group",
		build:       averageBy("admission_source_group", "num_procedures", "avg_procedures"),
	},
	"max_glu_serum_counts": {
		description: "Encounters per max glucose serum result",
		build:       countBy("max_glu_serum"),
	},
}

func ReportNames() []string {
	names := make([]string, 0, len(reports))
	for name := range reports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ReportDescription(name string) (string, bool) {
	r, ok := reports[name]
	return r.description, ok
}

// Report runs a named report, scoped to runID when it is non-empty.
func (s *PatientStore) Report(ctx context.Context, name, runID string) (models.ReportResult, error) {
	r, ok := reports[name]
	if !ok {
		return models.ReportResult{}, fmt.Errorf("%w: %s", ErrUnknownReport, name)
	}
	q, err := s.scoped(ctx, runID)
	if err != nil {
		return models.ReportResult{}, err
	}
	start := time.Now()
	var rows []map[string]interface{}
	if err := r.build(q).Find(&rows).Error; err != nil {
		return models.ReportResult{}, fmt.Errorf("report %s: %w", name, err)
	}
	return models.ReportResult{Name: name, Rows: rows, Elapsed: time.Since(start)}, nil
}

// Query runs a parsed DSL query against the patients table.
func (s *PatientStore) Query(ctx context.Context, query dsl.Query, runID string) (models.ReportResult, error) {
	plan, err := planQuery(query)
	if err != nil {
		return models.ReportResult{}, err
	}
	q, err := s.scoped(ctx, runID)
	if err != nil {
		return models.ReportResult{}, err
	}
	q = q.Select(plan.columns)
	for _, c := range plan.conditions {
		q = q.Where(c.sql, c.args...)
	}
	start := time.Now()
	var rows []map[string]interface{}
	if err := q.Order("run_id, row_number").Limit(plan.limit).Find(&rows).Error; err != nil {
		return models.ReportResult{}, fmt.Errorf("patient query: %w", err)
	}
	return models.ReportResult{Name: "query", Rows: rows, Elapsed: time.Since(start)}, nil
}

func (s *PatientStore) scoped(ctx context.Context, runID string) (*gorm.DB, error) {
	q := s.db.WithContext(ctx).Model(&PatientModel{})
	if runID == "" {
		return q, nil
	}
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, validation.New(fmt.Errorf("invalid run id %q", runID))
	}
	return q.Where("run_id = ?", id), nil
}

type condition struct {
	sql  string
	args []interface{}
}

type queryPlan struct {
	columns    []string
	conditions []condition
	limit      int
}

var queryable = func() map[string]patientColumn {
	out := map[string]patientColumn{
		"run_id":     {column: "run_id", kind: kindText},
		"row_number": {column: "row_number", kind: kindInt},
	}
	for header, col := range patientColumns {
		out[strings.ToLower(header)] = col
		out[col.column] = col
	}
	return out
}()

// planQuery maps DSL fields onto the patients table. Unknown fields and
// non-integer operands on count columns are validation errors.
func planQuery(query dsl.Query) (queryPlan, error) {
	var plan queryPlan
	for _, field := range query.SelectFields {
		col, ok := queryable[field]
		if !ok {
			return queryPlan{}, validation.New(fmt.Errorf("unknown field %q", field))
		}
		plan.columns = append(plan.columns, col.column)
	}
	for _, clause := range query.Filters {
		col, ok := queryable[clause.Field]
		if !ok {
			return queryPlan{}, validation.New(fmt.Errorf("unknown filter field %q", clause.Field))
		}
		if clause.Operator == "in" {
			args := make([]interface{}, len(clause.Values))
			for i, v := range clause.Values {
				arg, err := col.operand(clause.Field, v)
				if err != nil {
					return queryPlan{}, err
				}
				args[i] = arg
			}
			plan.conditions = append(plan.conditions, condition{sql: col.column + " IN ?", args: []interface{}{args}})
			continue
		}
		arg, err := col.operand(clause.Field, clause.Value())
		if err != nil {
			return queryPlan{}, err
		}
		plan.conditions = append(plan.conditions, condition{
			sql:  fmt.Sprintf("%s %s ?", col.column, clause.Operator),
			args: []interface{}{arg},
		})
	}
	plan.limit = query.Limit
	if plan.limit <= 0 {
		plan.limit = defaultQueryLimit
	}
	if plan.limit > maxQueryLimit {
		plan.limit = maxQueryLimit
	}
	return plan, nil
}

// operand converts a filter value to the column's Go type.
func (c patientColumn) operand(field, v string) (interface{}, error) {
	if c.kind != kindInt {
		return v, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, validation.New(fmt.Errorf("filter on %s needs an integer, got %q", field, v))
	}
	return n, nil
}
