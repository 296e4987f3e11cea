// Package training fits readmission models on encoded feature files and
// writes the artifacts the predictor serves.
package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/readmission/pkg/cleaning"
	"github.com/synaptica-ai/readmission/pkg/common/datadir"
	"github.com/synaptica-ai/readmission/pkg/common/logger"
	"github.com/synaptica-ai/readmission/pkg/common/models"
	"github.com/synaptica-ai/readmission/pkg/common/validation"
	"github.com/synaptica-ai/readmission/pkg/dataset"
	"github.com/synaptica-ai/readmission/pkg/ml/linear"
	"github.com/synaptica-ai/readmission/pkg/observability/metrics"
	"gorm.io/datatypes"
)

var ErrSchemaMismatch = errors.New("feature columns do not match pinned schema")

const topFeatureCount = 15

// Defaults apply when a job's config does not override them.
type Defaults struct {
	Epochs       int
	LearningRate float64
	L2           float64
	Balanced     bool
	TestFraction float64
	Seed         int64
	Threshold    float64
}

// SchemaSource returns the feature columns pinned for a pipeline run.
type SchemaSource interface {
	PinnedColumns(ctx context.Context, runID string) ([]string, error)
}

type Service struct {
	store       JobStore
	schemas     SchemaSource
	artifactDir string
	dataDir     string
	defaults    Defaults
	workerSem   chan struct{}
}

// NewService builds the training service. Feature paths in job requests are
// resolved against dataDir; an empty dataDir accepts any path.
func NewService(store JobStore, schemas SchemaSource, artifactDir, dataDir string, defaults Defaults, maxWorkers int) (*Service, error) {
	s := &Service{
		store:       store,
		schemas:     schemas,
		artifactDir: artifactDir,
		dataDir:     dataDir,
		defaults:    defaults,
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	s.workerSem = make(chan struct{}, maxWorkers)
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return nil, err
	}
	return s, nil
}

// Create queues a job and trains it in the background.
func (s *Service) Create(ctx context.Context, input CreateJobInput) (models.TrainingJob, error) {
	job, err := s.newJob(ctx, &input)
	if err != nil {
		return models.TrainingJob{}, err
	}
	go s.run(context.Background(), job.ID, input)
	return toDomain(job), nil
}

// Train runs a job to completion and returns its final state. A failed job
// is returned together with its error.
func (s *Service) Train(ctx context.Context, input CreateJobInput) (models.TrainingJob, error) {
	job, err := s.newJob(ctx, &input)
	if err != nil {
		return models.TrainingJob{}, err
	}
	runErr := s.run(ctx, job.ID, input)
	final, err := s.Get(ctx, job.ID)
	if err != nil {
		return models.TrainingJob{}, err
	}
	return final, runErr
}

// newJob validates input, resolves its feature path in place and stores the
// queued job.
func (s *Service) newJob(ctx context.Context, input *CreateJobInput) (*JobModel, error) {
	if err := validation.Struct(*input); err != nil {
		return nil, err
	}
	path, err := datadir.Resolve(s.dataDir, input.FeaturesPath)
	if err != nil {
		return nil, validation.New(err)
	}
	input.FeaturesPath = path
	if _, err := s.options(input.Config); err != nil {
		return nil, validation.New(err)
	}
	now := time.Now().UTC()
	job := &JobModel{
		ID:           uuid.New(),
		ModelType:    input.ModelType,
		FeaturesPath: input.FeaturesPath,
		RunID:        input.RunID,
		Config:       datatypes.JSONMap(input.Config),
		Status:       StatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.TrainingJob, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return models.TrainingJob{}, err
	}
	return toDomain(job), nil
}

func (s *Service) List(ctx context.Context, limit int) ([]models.TrainingJob, error) {
	jobs, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	results := make([]models.TrainingJob, 0, len(jobs))
	for i := range jobs {
		results = append(results, toDomain(&jobs[i]))
	}
	return results, nil
}

func (s *Service) GetArtifact(ctx context.Context, id uuid.UUID) (Artifact, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return Artifact{}, err
	}
	metrics := map[string]interface{}{}
	if job.Metrics != nil {
		metrics = map[string]interface{}(job.Metrics)
	}
	return Artifact{JobID: job.ID, Path: job.ArtifactPath, Metrics: metrics}, nil
}

func (s *Service) run(ctx context.Context, jobID uuid.UUID, input CreateJobInput) error {
	s.workerSem <- struct{}{}
	defer func() { <-s.workerSem }()

	start := time.Now().UTC()
	if err := s.store.UpdateStatus(ctx, jobID, StatusRunning, nil, "", ""); err != nil {
		logger.Log.WithError(err).Error("failed to mark job running")
	}
	if err := s.store.SetTimestamps(ctx, jobID, &start, nil); err != nil {
		logger.Log.WithError(err).Error("failed to set start timestamp")
	}

	artifact, err := s.fit(ctx, jobID, input)
	if err != nil {
		s.failJob(ctx, jobID, err)
		return err
	}

	artifactPath, err := s.writeArtifact(input.ModelType, artifact)
	if err != nil {
		err = fmt.Errorf("artifact write failed: %w", err)
		s.failJob(ctx, jobID, err)
		return err
	}

	summary := map[string]interface{}{
		"accuracy":         artifact.Report.Accuracy,
		"test_loss":        artifact.Report.Loss,
		"train_loss":       artifact.Train.Loss,
		"precision":        artifact.Report.Classes[1].Precision,
		"recall":           artifact.Report.Classes[1].Recall,
		"f1":               artifact.Report.Classes[1].F1,
		"test_samples":     artifact.Report.Support,
		"features":         len(artifact.Model.FeatureNames),
		"duration_seconds": time.Since(start).Seconds(),
	}
	if err := s.store.UpdateStatus(ctx, jobID, StatusCompleted, summary, artifactPath, ""); err != nil {
		logger.Log.WithError(err).Error("failed to mark job complete")
	}
	completed := time.Now().UTC()
	if err := s.store.SetTimestamps(ctx, jobID, nil, &completed); err != nil {
		logger.Log.WithError(err).Error("failed to set completion timestamp")
	}
	metrics.ObserveTrainingJob(StatusCompleted)
	logger.Log.WithFields(map[string]interface{}{
		"job_id":   jobID.String(),
		"model":    input.ModelType,
		"accuracy": artifact.Report.Accuracy,
		"recall":   artifact.Report.Classes[1].Recall,
	}).Info("training job completed")
	return nil
}

func (s *Service) fit(ctx context.Context, jobID uuid.UUID, input CreateJobInput) (*ModelArtifact, error) {
	opts, err := s.options(input.Config)
	if err != nil {
		return nil, err
	}
	matrix, err := dataset.ReadMatrixCSV(input.FeaturesPath)
	if err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}
	features, target, err := matrix.SplitTarget(cleaning.ColumnTarget)
	if err != nil {
		return nil, err
	}
	if err := s.checkSchema(ctx, input.RunID, features.Columns); err != nil {
		return nil, err
	}
	for i, y := range target {
		if y != 0 && y != 1 {
			return nil, fmt.Errorf("row %d: target %v is not 0 or 1", i+1, y)
		}
	}

	trainIdx, testIdx, err := linear.StratifiedSplit(target, opts.TestFraction, opts.Seed)
	if err != nil {
		return nil, err
	}
	xTrain, yTrain := linear.Rows(features.Rows, target, trainIdx)
	xTest, yTest := linear.Rows(features.Rows, target, testIdx)

	scaler := linear.FitScaler(xTrain)
	weights, trainMetrics := linear.TrainLogistic(scaler.TransformAll(xTrain), yTrain, linear.Options{
		Epochs:       opts.Epochs,
		LearningRate: opts.LearningRate,
		Balanced:     opts.Balanced,
		L2:           opts.L2,
	})
	report, err := linear.Evaluate(yTest, linear.PredictAll(weights, scaler.TransformAll(xTest)), opts.Threshold)
	if err != nil {
		return nil, err
	}

	artifact := &ModelArtifact{
		JobID:       jobID,
		RunID:       input.RunID,
		Report:      report,
		TopFeatures: linear.TopCoefficients(features.Columns, weights, topFeatureCount),
		Train:       trainMetrics,
		CreatedAt:   time.Now().UTC(),
	}
	artifact.Model.Type = input.ModelType
	artifact.Model.Algorithm = Algorithm
	artifact.Model.FeatureNames = features.Columns
	artifact.Model.Indicators = indicatorColumns(features)
	artifact.Model.Weights = weights
	artifact.Model.Scaler = scaler
	artifact.Model.Threshold = opts.Threshold
	return artifact, nil
}

func (s *Service) checkSchema(ctx context.Context, runID string, columns []string) error {
	if s.schemas == nil || runID == "" {
		return nil
	}
	pinned, err := s.schemas.PinnedColumns(ctx, runID)
	if err != nil {
		return fmt.Errorf("load pinned schema: %w", err)
	}
	if len(pinned) != len(columns) {
		return fmt.Errorf("%w: %d pinned, %d in file", ErrSchemaMismatch, len(pinned), len(columns))
	}
	for i := range pinned {
		if pinned[i] != columns[i] {
			return fmt.Errorf("%w: column %d is %q, pinned %q", ErrSchemaMismatch, i, columns[i], pinned[i])
		}
	}
	return nil
}

// indicatorColumns lists columns that only ever hold 0 or 1. The predictor
// treats an absent indicator as an inactive category.
func indicatorColumns(m *dataset.Matrix) []string {
	var out []string
	for j, name := range m.Columns {
		binary := true
		for _, row := range m.Rows {
			if v := row[j]; v != 0 && v != 1 {
				binary = false
				break
			}
		}
		if binary {
			out = append(out, name)
		}
	}
	return out
}

func (s *Service) options(config map[string]interface{}) (Defaults, error) {
	opts := s.defaults
	if opts.TestFraction == 0 {
		opts.TestFraction = 0.2
	}
	if opts.Threshold == 0 {
		opts.Threshold = 0.5
	}
	for key, raw := range config {
		var err error
		switch key {
		case "epochs":
			var f float64
			if f, err = number(key, raw); err == nil {
				opts.Epochs = int(f)
			}
		case "learning_rate":
			opts.LearningRate, err = number(key, raw)
		case "l2":
			opts.L2, err = number(key, raw)
		case "test_fraction":
			opts.TestFraction, err = number(key, raw)
		case "threshold":
			opts.Threshold, err = number(key, raw)
		case "seed":
			var f float64
			if f, err = number(key, raw); err == nil {
				opts.Seed = int64(f)
			}
		case "balanced":
			b, ok := raw.(bool)
			if !ok {
				err = fmt.Errorf("config %s must be a boolean", key)
			}
			opts.Balanced = b
		default:
			err = fmt.Errorf("unknown config key %q", key)
		}
		if err != nil {
			return Defaults{}, err
		}
	}
	if opts.TestFraction <= 0 || opts.TestFraction >= 1 {
		return Defaults{}, fmt.Errorf("test_fraction %v outside (0, 1)", opts.TestFraction)
	}
	if opts.Threshold <= 0 || opts.Threshold >= 1 {
		return Defaults{}, fmt.Errorf("threshold %v outside (0, 1)", opts.Threshold)
	}
	return opts, nil
}

func number(key string, raw interface{}) (float64, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		var err error
		if f, err = v.Float64(); err != nil {
			return 0, fmt.Errorf("config %s: %w", key, err)
		}
	default:
		return 0, fmt.Errorf("config %s must be a number", key)
	}
	if math.IsNaN(f) || f < 0 {
		return 0, fmt.Errorf("config %s must be a non-negative number", key)
	}
	return f, nil
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, err error) {
	logger.Log.WithError(err).WithField("job_id", jobID.String()).Error("training job failed")
	_ = s.store.UpdateStatus(ctx, jobID, StatusFailed, nil, "", err.Error())
	completed := time.Now().UTC()
	_ = s.store.SetTimestamps(ctx, jobID, nil, &completed)
	metrics.ObserveTrainingJob(StatusFailed)
}

// writeArtifact writes <job>.json and its text report, then replaces
// <model>_latest.json so the predictor picks the new model up.
func (s *Service) writeArtifact(modelType string, artifact *ModelArtifact) (string, error) {
	payload, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.artifactDir, fmt.Sprintf("%s.json", artifact.JobID.String()))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", err
	}
	reportPath := filepath.Join(s.artifactDir, fmt.Sprintf("%s_report.txt", artifact.JobID.String()))
	report := fmt.Sprintf("=== %s (%s) ===\n%s", modelType, Algorithm, artifact.Report.String())
	if err := os.WriteFile(reportPath, []byte(report), 0o644); err != nil {
		return "", err
	}

	latest := filepath.Join(s.artifactDir, fmt.Sprintf("%s_latest.json", modelType))
	tmp := latest + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, latest); err != nil {
		return "", err
	}
	return path, nil
}

func toDomain(job *JobModel) models.TrainingJob {
	result := models.TrainingJob{
		ID:           job.ID,
		ModelType:    job.ModelType,
		FeaturesPath: job.FeaturesPath,
		RunID:        job.RunID,
		Status:       job.Status,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		ArtifactPath: job.ArtifactPath,
		ErrorMessage: job.ErrorMessage,
	}
	if job.Config != nil {
		result.Config = map[string]interface{}(job.Config)
	}
	if job.Metrics != nil {
		result.Metrics = map[string]interface{}(job.Metrics)
	}
	return result
}
