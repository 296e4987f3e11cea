package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/readmission/pkg/common/logger"
	"github.com/synaptica-ai/readmission/pkg/dataset"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PatientModel is one cleaned encounter. Columns without a typed field land
// in Attributes.
type PatientModel struct {
	RunID                     uuid.UUID         `gorm:"type:uuid;primaryKey;column:run_id"`
	RowNumber                 int               `gorm:"primaryKey;column:row_number"`
	Race                      string            `gorm:"column:race;index"`
	Gender                    string            `gorm:"column:gender"`
	Age                       string            `gorm:"column:age"`
	TimeInHospital            *int              `gorm:"column:time_in_hospital"`
	NumLabProcedures          *int              `gorm:"column:num_lab_procedures"`
	NumProcedures             *int              `gorm:"column:num_procedures"`
	NumMedications            *int              `gorm:"column:num_medications"`
	NumberOutpatient          *int              `gorm:"column:number_outpatient"`
	NumberEmergency           *int              `gorm:"column:number_emergency"`
	NumberInpatient           *int              `gorm:"column:number_inpatient"`
	NumberDiagnoses           *int              `gorm:"column:number_diagnoses"`
	MaxGluSerum               string            `gorm:"column:max_glu_serum"`
	A1CResult                 string            `gorm:"column:a1c_result"`
	Insulin                   string            `gorm:"column:insulin"`
	Change                    string            `gorm:"column:change"`
	DiabetesMed               string            `gorm:"column:diabetes_med"`
	DischargeDispositionGroup string            `gorm:"column:discharge_disposition_group"`
	AdmissionSourceGroup      string            `gorm:"column:admission_source_group"`
	Diag1Cat                  string            `gorm:"column:diag_1_cat;index"`
	Diag2Cat                  string            `gorm:"column:diag_2_cat"`
	Diag3Cat                  string            `gorm:"column:diag_3_cat"`
	ReadmittedBinary          int               `gorm:"column:readmitted_binary"`
	Attributes                datatypes.JSONMap `gorm:"column:attributes"`
	CreatedAt                 time.Time         `gorm:"column:created_at"`
}

func (PatientModel) TableName() string {
	return "patients"
}

type columnKind int

const (
	kindText columnKind = iota
	kindInt
)

type patientColumn struct {
	column string
	kind   columnKind
	text   func(p *PatientModel) *string
	number func(p *PatientModel) **int
}

func textColumn(column string, field func(p *PatientModel) *string) patientColumn {
	return patientColumn{column: column, kind: kindText, text: field}
}

func intColumn(column string, field func(p *PatientModel) **int) patientColumn {
	return patientColumn{column: column, kind: kindInt, number: field}
}

// patientColumns maps cleaned-table headers to typed columns.
var patientColumns = map[string]patientColumn{
	"race":                        textColumn("race", func(p *PatientModel) *string { return &p.Race }),
	"gender":                      textColumn("gender", func(p *PatientModel) *string { return &p.Gender }),
	"age":                         textColumn("age", func(p *PatientModel) *string { return &p.Age }),
	"time_in_hospital":            intColumn("time_in_hospital", func(p *PatientModel) **int { return &p.TimeInHospital }),
	"num_lab_procedures":          intColumn("num_lab_procedures", func(p *PatientModel) **int { return &p.NumLabProcedures }),
	"num_procedures":              intColumn("num_procedures", func(p *PatientModel) **int { return &p.NumProcedures }),
	"num_medications":             intColumn("num_medications", func(p *PatientModel) **int { return &p.NumMedications }),
	"number_outpatient":           intColumn("number_outpatient", func(p *PatientModel) **int { return &p.NumberOutpatient }),
	"number_emergency":            intColumn("number_emergency", func(p *PatientModel) **int { return &p.NumberEmergency }),
	"number_inpatient":            intColumn("number_inpatient", func(p *PatientModel) **int { return &p.NumberInpatient }),
	"number_diagnoses":            intColumn("number_diagnoses", func(p *PatientModel) **int { return &p.NumberDiagnoses }),
	"max_glu_serum":               textColumn("max_glu_serum", func(p *PatientModel) *string { return &p.MaxGluSerum }),
	"A1Cresult":                   textColumn("a1c_result", func(p *PatientModel) *string { return &p.A1CResult }),
	"insulin":                     textColumn("insulin", func(p *PatientModel) *string { return &p.Insulin }),
	"change":                      textColumn("change", func(p *PatientModel) *string { return &p.Change }),
	"diabetesMed":                 textColumn("diabetes_med", func(p *PatientModel) *string { return &p.DiabetesMed }),
	"discharge_disposition_group": textColumn("discharge_disposition_group", func(p *PatientModel) *string { return &p.DischargeDispositionGroup }),
	"admission_source_group":      textColumn("admission_source_group", func(p *PatientModel) *string { return &p.AdmissionSourceGroup }),
	"diag_1_cat":                  textColumn("diag_1_cat", func(p *PatientModel) *string { return &p.Diag1Cat }),
	"diag_2_cat":                  textColumn("diag_2_cat", func(p *PatientModel) *string { return &p.Diag2Cat }),
	"diag_3_cat":                  textColumn("diag_3_cat", func(p *PatientModel) *string { return &p.Diag3Cat }),
	"readmitted_binary":           intColumn("readmitted_binary", nil),
}

type PatientStore struct {
	db        *gorm.DB
	batchSize int
}

func NewPatientStore(db *gorm.DB, batchSize int) *PatientStore {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &PatientStore{db: db, batchSize: batchSize}
}

func (s *PatientStore) AutoMigrate() error {
	return s.db.AutoMigrate(&PatientModel{})
}

// Load inserts the cleaned table under runID and returns the row count.
func (s *PatientStore) Load(ctx context.Context, runID string, cleaned *dataset.Table) (int, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return 0, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	patients, err := patientsFromTable(id, cleaned)
	if err != nil {
		return 0, err
	}
	if len(patients) == 0 {
		return 0, nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(patients, s.batchSize).Error; err != nil {
		return 0, fmt.Errorf("insert patients: %w", err)
	}
	logger.Log.WithFields(map[string]interface{}{
		"run_id": runID,
		"rows":   len(patients),
	}).Info("patients stored")
	return len(patients), nil
}

func patientsFromTable(runID uuid.UUID, t *dataset.Table) ([]PatientModel, error) {
	now := time.Now().UTC()
	out := make([]PatientModel, t.Len())
	for i := range out {
		out[i] = PatientModel{RunID: runID, RowNumber: i + 1, CreatedAt: now, Attributes: datatypes.JSONMap{}}
	}
	for _, name := range t.Columns() {
		cells, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		col, known := patientColumns[name]
		for i, cell := range cells {
			p := &out[i]
			if !known {
				if cell.Valid {
					p.Attributes[name] = cell.Value
				}
				continue
			}
			if !cell.Valid {
				continue
			}
			if col.kind == kindText {
				*col.text(p) = cell.Value
				continue
			}
			v, err := strconv.Atoi(cell.Value)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i+1, name, err)
			}
			if col.number == nil {
				p.ReadmittedBinary = v
				continue
			}
			*col.number(p) = &v
		}
	}
	return out, nil
}
