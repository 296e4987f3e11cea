package training

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/readmission/pkg/common/datadir"
	"github.com/synaptica-ai/readmission/pkg/common/models"
	"github.com/synaptica-ai/readmission/pkg/common/validation"
	"github.com/synaptica-ai/readmission/pkg/dataset"
	"github.com/synaptica-ai/readmission/pkg/ml/linear"
)

var testDefaults = Defaults{Epochs: 500, LearningRate: 0.5, Balanced: true, TestFraction: 0.2, Seed: 42}

func writeFeatures(t *testing.T, dir string) string {
	t.Helper()
	m := &dataset.Matrix{Columns: []string{"time_in_hospital", "insulin_Steady", "readmitted_binary"}}
	for i := 0; i < 20; i++ {
		label := 0.0
		if i >= 10 {
			label = 1
		}
		m.Rows = append(m.Rows, []float64{float64(i), float64(i % 2), label})
	}
	path := filepath.Join(dir, "features.csv")
	require.NoError(t, dataset.WriteMatrixCSV(path, m))
	return path
}

func newTestService(t *testing.T, schemas SchemaSource) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	svc, err := NewService(NewMemoryStore(), schemas, filepath.Join(dir, "artifacts"), dir, testDefaults, 1)
	require.NoError(t, err)
	return svc, dir
}

func TestTrainWritesArtifacts(t *testing.T) {
	svc, dir := newTestService(t, nil)
	path := writeFeatures(t, dir)

	job, err := svc.Train(context.Background(), CreateJobInput{ModelType: "readmission", FeaturesPath: path})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
	assert.EqualValues(t, 4, job.Metrics["test_samples"])
	assert.EqualValues(t, 2, job.Metrics["features"])

	content, err := os.ReadFile(filepath.Join(dir, "artifacts", "readmission_latest.json"))
	require.NoError(t, err)
	var artifact ModelArtifact
	require.NoError(t, json.Unmarshal(content, &artifact))
	assert.Equal(t, job.ID, artifact.JobID)
	assert.Equal(t, []string{"time_in_hospital", "insulin_Steady"}, artifact.Model.FeatureNames)
	assert.Equal(t, []string{"insulin_Steady"}, artifact.Model.Indicators)
	assert.Equal(t, Algorithm, artifact.Model.Algorithm)
	assert.Equal(t, 0.5, artifact.Model.Threshold)
	require.Len(t, artifact.Model.Scaler.Mean, 2)
	assert.Greater(t, artifact.Model.Weights.Coefficients[0], 0.0)
	assert.Equal(t, "time_in_hospital", artifact.TopFeatures[0].Feature)

	high := linear.Predict(artifact.Model.Weights, artifact.Model.Scaler.Transform([]float64{19, 0}))
	low := linear.Predict(artifact.Model.Weights, artifact.Model.Scaler.Transform([]float64{0, 0}))
	assert.Greater(t, high, low)

	assert.FileExists(t, job.ArtifactPath)
	report, err := os.ReadFile(filepath.Join(dir, "artifacts", job.ID.String()+"_report.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "precision")
}

func TestTrainIsDeterministic(t *testing.T) {
	svc, dir := newTestService(t, nil)
	path := writeFeatures(t, dir)
	ctx := context.Background()

	first, err := svc.Train(ctx, CreateJobInput{ModelType: "a", FeaturesPath: path})
	require.NoError(t, err)
	second, err := svc.Train(ctx, CreateJobInput{ModelType: "b", FeaturesPath: path})
	require.NoError(t, err)

	load := func(name string) ModelArtifact {
		content, err := os.ReadFile(filepath.Join(dir, "artifacts", name+"_latest.json"))
		require.NoError(t, err)
		var a ModelArtifact
		require.NoError(t, json.Unmarshal(content, &a))
		return a
	}
	a, b := load("a"), load("b")
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, a.Model.Weights, b.Model.Weights)
	assert.Equal(t, a.Report, b.Report)
}

func TestTrainSingleClassFails(t *testing.T) {
	svc, dir := newTestService(t, nil)
	m := &dataset.Matrix{Columns: []string{"x", "readmitted_binary"}, Rows: [][]float64{{1, 0}, {2, 0}, {3, 0}, {4, 1}}}
	path := filepath.Join(dir, "features.csv")
	require.NoError(t, dataset.WriteMatrixCSV(path, m))

	job, err := svc.Train(context.Background(), CreateJobInput{ModelType: "readmission", FeaturesPath: path})
	assert.ErrorIs(t, err, linear.ErrSingleClass)
	assert.Equal(t, StatusFailed, job.Status)
	assert.NotEmpty(t, job.ErrorMessage)
	assert.NoFileExists(t, filepath.Join(dir, "artifacts", "readmission_latest.json"))
}

func TestTrainRejectsInvalidInput(t *testing.T) {
	svc, dir := newTestService(t, nil)
	path := writeFeatures(t, dir)
	ctx := context.Background()

	for _, input := range []CreateJobInput{
		{ModelType: "", FeaturesPath: path},
		{ModelType: "../escape", FeaturesPath: path},
		{ModelType: "m", FeaturesPath: ""},
		{ModelType: "m", FeaturesPath: path, RunID: "not-a-uuid"},
		{ModelType: "m", FeaturesPath: path, Config: map[string]interface{}{"test_fraction": 1.5}},
		{ModelType: "m", FeaturesPath: path, Config: map[string]interface{}{"momentum": 0.9}},
		{ModelType: "m", FeaturesPath: path, Config: map[string]interface{}{"balanced": "yes"}},
	} {
		_, err := svc.Train(ctx, input)
		assert.True(t, validation.IsValidationError(err), "%+v: %v", input, err)
	}
	jobs, err := svc.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestTrainConfigOverrides(t *testing.T) {
	svc, _ := newTestService(t, nil)
	opts, err := svc.options(map[string]interface{}{"epochs": 10.0, "seed": 7.0, "balanced": false, "threshold": 0.3})
	require.NoError(t, err)
	assert.Equal(t, 10, opts.Epochs)
	assert.Equal(t, int64(7), opts.Seed)
	assert.False(t, opts.Balanced)
	assert.Equal(t, 0.3, opts.Threshold)
	assert.Equal(t, 0.5, opts.LearningRate)
}

type fakeSchemas map[string][]string

func (f fakeSchemas) PinnedColumns(_ context.Context, runID string) ([]string, error) {
	cols, ok := f[runID]
	if !ok {
		return nil, os.ErrNotExist
	}
	return cols, nil
}

func TestTrainChecksPinnedSchema(t *testing.T) {
	good, bad := uuid.NewString(), uuid.NewString()
	svc, dir := newTestService(t, fakeSchemas{
		good: {"time_in_hospital", "insulin_Steady"},
		bad:  {"insulin_Steady", "time_in_hospital"},
	})
	path := writeFeatures(t, dir)
	ctx := context.Background()

	job, err := svc.Train(ctx, CreateJobInput{ModelType: "m", FeaturesPath: path, RunID: good})
	require.NoError(t, err)
	assert.Equal(t, good, job.RunID)

	job, err = svc.Train(ctx, CreateJobInput{ModelType: "m", FeaturesPath: path, RunID: bad})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Equal(t, StatusFailed, job.Status)
}

func TestPipelineEventHandler(t *testing.T) {
	svc, dir := newTestService(t, nil)
	path := writeFeatures(t, dir)
	handle := svc.PipelineEventHandler("readmission")
	ctx := context.Background()

	require.NoError(t, handle(ctx, models.Event{Type: models.EventPipelineFailed, Data: map[string]interface{}{"features_path": path}}))
	require.NoError(t, handle(ctx, models.Event{Type: models.EventPipelineCompleted, Data: map[string]interface{}{"run_id": uuid.NewString()}}))
	require.NoError(t, handle(ctx, models.Event{Type: models.EventPipelineCompleted, Data: map[string]interface{}{"features_path": path, "run_id": "bogus"}}))
	jobs, err := svc.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	require.NoError(t, handle(ctx, models.Event{Type: models.EventPipelineCompleted, Data: map[string]interface{}{"features_path": path, "run_id": uuid.NewString()}}))
	assert.Eventually(t, func() bool {
		jobs, err := svc.List(ctx, 0)
		return err == nil && len(jobs) == 1 && jobs[0].Status == StatusCompleted
	}, 10*time.Second, 20*time.Millisecond)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, err := store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, store.UpdateStatus(ctx, uuid.New(), StatusRunning, nil, "", ""), ErrJobNotFound)

	older := &JobModel{ID: uuid.New(), CreatedAt: time.Now().Add(-time.Minute)}
	newer := &JobModel{ID: uuid.New(), CreatedAt: time.Now()}
	require.NoError(t, store.Create(ctx, older))
	require.NoError(t, store.Create(ctx, newer))

	jobs, err := store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, newer.ID, jobs[0].ID)
}

func TestTrainResolvesFeaturesUnderDataDir(t *testing.T) {
	svc, dir := newTestService(t, nil)
	writeFeatures(t, dir)

	job, err := svc.Train(context.Background(), CreateJobInput{ModelType: "m", FeaturesPath: "features.csv"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "features.csv"), job.FeaturesPath)
	assert.Equal(t, StatusCompleted, job.Status)
}

func TestTrainRejectsFeaturesOutsideDataDir(t *testing.T) {
	svc, _ := newTestService(t, nil)
	outside := writeFeatures(t, t.TempDir())

	for _, path := range []string{outside, "../features.csv", "/etc/hostname"} {
		_, err := svc.Train(context.Background(), CreateJobInput{ModelType: "m", FeaturesPath: path})
		require.Error(t, err, path)
		assert.True(t, validation.IsValidationError(err), path)
		assert.ErrorIs(t, err, datadir.ErrOutsideRoot, path)
	}

	jobs, err := svc.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
