package storage

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/readmission/pkg/analytics/dsl"
	"github.com/synaptica-ai/readmission/pkg/common/models"
	"github.com/synaptica-ai/readmission/pkg/common/validation"
	"github.com/synaptica-ai/readmission/pkg/dataset"
	"github.com/xuri/excelize/v2"
)

func TestPatientsFromTable(t *testing.T) {
	cleaned, err := dataset.DecodeCSV(strings.NewReader(
		"race,gender,age,time_in_hospital,A1Cresult,metformin,diag_1_cat,readmitted_binary\n" +
			"Caucasian,Female,[70-80),3,>7,Steady,circulatory,1\n" +
			"Asian,Male,[50-60),,None,,others,0\n"))
	require.NoError(t, err)

	runID := uuid.New()
	patients, err := patientsFromTable(runID, cleaned)
	require.NoError(t, err)
	require.Len(t, patients, 2)

	first := patients[0]
	assert.Equal(t, runID, first.RunID)
	assert.Equal(t, 1, first.RowNumber)
	assert.Equal(t, "Caucasian", first.Race)
	assert.Equal(t, "[70-80)", first.Age)
	require.NotNil(t, first.TimeInHospital)
	assert.Equal(t, 3, *first.TimeInHospital)
	assert.Equal(t, ">7", first.A1CResult)
	assert.Equal(t, "circulatory", first.Diag1Cat)
	assert.Equal(t, 1, first.ReadmittedBinary)
	assert.Equal(t, "Steady", first.Attributes["metformin"])

	second := patients[1]
	assert.Nil(t, second.TimeInHospital)
	assert.NotContains(t, second.Attributes, "metformin")
	assert.Equal(t, 0, second.ReadmittedBinary)
}

func TestPatientsFromTableRejectsNonIntegerCounts(t *testing.T) {
	cleaned, err := dataset.DecodeCSV(strings.NewReader("race,num_medications,readmitted_binary\nAsian,many,0\n"))
	require.NoError(t, err)
	_, err = patientsFromTable(uuid.New(), cleaned)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "num_medications")
}

func TestPlanQuery(t *testing.T) {
	query, err := dsl.Parse("SELECT race, A1Cresult WHERE gender = 'Female' AND number_emergency > 5 AND insulin IN ('Up','Down') LIMIT 5000")
	require.NoError(t, err)

	plan, err := planQuery(query)
	require.NoError(t, err)
	assert.Equal(t, []string{"race", "a1c_result"}, plan.columns)
	require.Len(t, plan.conditions, 3)
	assert.Equal(t, condition{sql: "gender = ?", args: []interface{}{"Female"}}, plan.conditions[0])
	assert.Equal(t, condition{sql: "number_emergency > ?", args: []interface{}{int64(5)}}, plan.conditions[1])
	assert.Equal(t, "insulin IN ?", plan.conditions[2].sql)
	assert.Equal(t, []interface{}{[]interface{}{"Up", "Down"}}, plan.conditions[2].args)
	assert.Equal(t, maxQueryLimit, plan.limit)
}

func TestPlanQueryKeepsQuotedConjunction(t *testing.T) {
	query, err := dsl.Parse("SELECT race WHERE race = 'a and b' AND number_inpatient >= 2")
	require.NoError(t, err)

	plan, err := planQuery(query)
	require.NoError(t, err)
	require.Len(t, plan.conditions, 2)
	assert.Equal(t, condition{sql: "race = ?", args: []interface{}{"a and b"}}, plan.conditions[0])
	assert.Equal(t, condition{sql: "number_inpatient >= ?", args: []interface{}{int64(2)}}, plan.conditions[1])
}

func TestPlanQueryRejectsUnknownFields(t *testing.T) {
	for _, input := range []string{
		"SELECT password",
		"SELECT race WHERE ssn = '1'",
		"SELECT race WHERE time_in_hospital > 'long'",
	} {
		query, err := dsl.Parse(input)
		require.NoError(t, err, input)
		_, err = planQuery(query)
		require.Error(t, err, input)
		assert.True(t, validation.IsValidationError(err), input)
	}
}

func TestPlanQueryDefaultLimit(t *testing.T) {
	query, err := dsl.Parse("select race")
	require.NoError(t, err)
	plan, err := planQuery(query)
	require.NoError(t, err)
	assert.Equal(t, defaultQueryLimit, plan.limit)
}

func TestReportCatalog(t *testing.T) {
	names := ReportNames()
	assert.Len(t, names, 11)
	assert.Contains(t, names, "top_primary_diagnoses")
	assert.Contains(t, names, "high_emergency_count")
	_, ok := ReportDescription("nope")
	assert.False(t, ok)
}

func TestListReportsHandler(t *testing.T) {
	router := mux.NewRouter()
	NewHTTPHandler(NewPatientStore(nil, 0), 0).Register(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/patients/reports", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "readmission_rate_by_age")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/patients/query", strings.NewReader(`{"query":"DROP TABLE patients"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchemaKey(t *testing.T) {
	assert.Equal(t, "features:schema:latest", schemaKey(LatestRun))
	assert.Equal(t, "features:schema:abc", schemaKey("abc"))
}

func TestWriteReportXLSX(t *testing.T) {
	result := models.ReportResult{
		Name: "avg_procedures_by_admission_source",
		Rows: []map[string]interface{}{
			{"admission_source_group": "emergency", "avg_procedures": 1.5},
			{"admission_source_group": "referral", "avg_procedures": nil},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteReportXLSX(&buf, result))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	sheets := f.GetSheetList()
	require.Equal(t, []string{"avg_procedures_by_admission_sou"}, sheets)

	rows, err := f.GetRows(sheets[0])
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"admission_source_group", "avg_procedures"}, rows[0])
	assert.Equal(t, []string{"emergency", "1.5"}, rows[1])
	assert.Equal(t, "referral", rows[2][0])
}
