package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/readmission/pkg/common/models"
)

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := Struct(models.PipelineRunRequest{CleanedPath: "out/cleaned.csv"})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, FieldError{Field: "input_path", Rule: "required"}, ve.Fields[0])
	assert.Contains(t, err.Error(), "input_path failed required")
}

func TestStructRejectsOutputOverwritingInput(t *testing.T) {
	err := Struct(models.PipelineRunRequest{InputPath: "data/raw.csv", CleanedPath: "data/raw.csv"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cleaned_path failed nefield=InputPath")
}

func TestStructAcceptsValidRequests(t *testing.T) {
	require.NoError(t, Struct(models.PipelineRunRequest{
		InputPath:    "data/raw.csv",
		CleanedPath:  "out/cleaned.csv",
		FeaturesPath: "out/features.csv",
	}))
	require.NoError(t, Struct(models.PredictionRequest{
		ModelName: "readmission_logistic",
		Features:  map[string]float64{"age_numeric": 75},
	}))
}

func TestPredictionModelNameCannotTraverse(t *testing.T) {
	err := Struct(models.PredictionRequest{
		ModelName: "../secrets",
		Features:  map[string]float64{"age_numeric": 75},
	})
	require.Error(t, err)
}

func TestNewWrapsReason(t *testing.T) {
	reason := errors.New("query must start with select")
	err := New(reason)
	assert.True(t, IsValidationError(err))
	assert.ErrorIs(t, err, reason)
	assert.Equal(t, reason.Error(), err.Error())
}
