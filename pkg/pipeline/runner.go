// Package pipeline runs the cleaning and encoding stages over one input file
// and hands the results to the configured collaborators.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/readmission/pkg/cleaning"
	"github.com/synaptica-ai/readmission/pkg/common/datadir"
	"github.com/synaptica-ai/readmission/pkg/common/logger"
	"github.com/synaptica-ai/readmission/pkg/common/models"
	"github.com/synaptica-ai/readmission/pkg/common/validation"
	"github.com/synaptica-ai/readmission/pkg/dataset"
	"github.com/synaptica-ai/readmission/pkg/features"
	"github.com/synaptica-ai/readmission/pkg/observability/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type RunSummary struct {
	ID             string                       `json:"id"`
	Status         string                       `json:"status"`
	Request        models.PipelineRunRequest    `json:"request"`
	InputRows      int                          `json:"input_rows"`
	CleanedRows    int                          `json:"cleaned_rows"`
	DroppedRows    int                          `json:"dropped_rows"`
	DroppedColumns []string                     `json:"dropped_columns,omitempty"`
	FeatureColumns []string                     `json:"feature_columns,omitempty"`
	Missingness    []cleaning.ColumnMissingness `json:"missingness,omitempty"`
	PatientsStored int                          `json:"patients_stored"`
	SchemaPinned   bool                         `json:"schema_pinned"`
	Error          string                       `json:"error,omitempty"`
	StartedAt      time.Time                    `json:"started_at"`
	CompletedAt    *time.Time                   `json:"completed_at,omitempty"`
	Duration       time.Duration                `json:"duration"`
}

func (r RunSummary) clone() RunSummary {
	out := r
	out.DroppedColumns = append([]string(nil), r.DroppedColumns...)
	out.FeatureColumns = append([]string(nil), r.FeatureColumns...)
	out.Missingness = append([]cleaning.ColumnMissingness(nil), r.Missingness...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// PatientSink stores the cleaned rows of a run.
type PatientSink interface {
	Load(ctx context.Context, runID string, cleaned *dataset.Table) (int, error)
}

// SchemaPinner records the feature column list a run produced.
type SchemaPinner interface {
	PinColumns(ctx context.Context, runID string, columns []string) error
}

// Dependencies are optional except Store; a nil collaborator is skipped.
type Dependencies struct {
	Store    RunStore
	Events   EventPublisher
	Patients PatientSink
	Schemas  SchemaPinner
}

type Runner struct {
	cleaner *cleaning.Cleaner
	encoder *features.Encoder
	deps    Dependencies
	source  string
	dataDir string
	sem     chan struct{}
}

// NewRunner builds a runner whose request paths resolve under dataDir. An
// empty dataDir accepts any path and is meant for the local CLI.
func NewRunner(cleaner *cleaning.Cleaner, encoder *features.Encoder, deps Dependencies, source, dataDir string, maxConcurrent int) *Runner {
	if deps.Store == nil {
		deps.Store = NewMemoryStore()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Runner{
		cleaner: cleaner,
		encoder: encoder,
		deps:    deps,
		source:  source,
		dataDir: dataDir,
		sem:     make(chan struct{}, maxConcurrent),
	}
}

// Run executes one run synchronously and returns its final summary. The
// summary is returned alongside the error for failed runs.
func (r *Runner) Run(ctx context.Context, req models.PipelineRunRequest) (*RunSummary, error) {
	run, err := r.start(ctx, req, StatusRunning)
	if err != nil {
		return nil, err
	}
	r.sem <- struct{}{}
	defer func() { <-r.sem }()
	return r.finish(ctx, run)
}

// Submit records a queued run and executes it in the background.
func (r *Runner) Submit(ctx context.Context, req models.PipelineRunRequest) (*RunSummary, error) {
	run, err := r.start(ctx, req, StatusQueued)
	if err != nil {
		return nil, err
	}
	queued := run.clone()
	go func() {
		r.sem <- struct{}{}
		defer func() { <-r.sem }()
		bg := context.Background()
		run.Status = StatusRunning
		if err := r.deps.Store.Save(bg, run); err != nil {
			logger.Log.WithError(err).WithField("run_id", run.ID).Error("failed to mark run running")
		}
		_, _ = r.finish(bg, run)
	}()
	return &queued, nil
}

func (r *Runner) Get(ctx context.Context, id string) (*RunSummary, error) {
	return r.deps.Store.Get(ctx, id)
}

func (r *Runner) List(ctx context.Context, limit int) ([]RunSummary, error) {
	return r.deps.Store.List(ctx, limit)
}

func (r *Runner) start(ctx context.Context, req models.PipelineRunRequest, status string) (*RunSummary, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	req, err := r.resolve(req)
	if err != nil {
		return nil, err
	}
	run := &RunSummary{
		ID:        uuid.New().String(),
		Status:    status,
		Request:   req,
		StartedAt: time.Now().UTC(),
	}
	if err := r.deps.Store.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	return run, nil
}

// resolve confines every request path to the data directory.
func (r *Runner) resolve(req models.PipelineRunRequest) (models.PipelineRunRequest, error) {
	for _, p := range []*string{&req.InputPath, &req.CleanedPath, &req.FeaturesPath, &req.ParquetPath} {
		resolved, err := datadir.Resolve(r.dataDir, *p)
		if err != nil {
			return req, validation.New(err)
		}
		*p = resolved
	}
	for _, out := range []string{req.CleanedPath, req.FeaturesPath, req.ParquetPath} {
		if out != "" && out == req.InputPath {
			return req, validation.New(fmt.Errorf("output %s would overwrite the input", out))
		}
	}
	return req, nil
}

func (r *Runner) finish(ctx context.Context, run *RunSummary) (*RunSummary, error) {
	log := logger.Log.WithFields(logrus.Fields{"run_id": run.ID, "input": run.Request.InputPath})
	log.Info("pipeline run started")

	execErr := r.execute(ctx, run, log)

	completed := time.Now().UTC()
	run.CompletedAt = &completed
	run.Duration = completed.Sub(run.StartedAt)
	if execErr != nil {
		run.Status = StatusFailed
		run.Error = execErr.Error()
		metrics.ObserveRunFailure()
		log.WithError(execErr).Error("pipeline run failed")
		r.publish(ctx, models.EventPipelineFailed, run)
	} else {
		run.Status = StatusCompleted
		metrics.ObserveRun(run.InputRows, run.CleanedRows, run.DroppedRows, len(run.FeatureColumns), run.Duration)
		log.WithFields(logrus.Fields{
			"cleaned_rows":    run.CleanedRows,
			"feature_columns": len(run.FeatureColumns),
			"duration_ms":     run.Duration.Milliseconds(),
		}).Info("pipeline run completed")
		r.publish(ctx, models.EventPipelineCompleted, run)
	}

	if err := r.deps.Store.Save(ctx, run); err != nil {
		log.WithError(err).Error("failed to persist run summary")
		if execErr == nil {
			execErr = fmt.Errorf("save run: %w", err)
		}
	}
	out := run.clone()
	return &out, execErr
}

func (r *Runner) execute(ctx context.Context, run *RunSummary, log *logrus.Entry) error {
	req := run.Request

	raw, err := dataset.ReadCSV(req.InputPath)
	if err != nil {
		return err
	}
	run.InputRows = raw.Len()
	log.WithField("rows", run.InputRows).Info("input loaded")

	cleaned, report, err := r.cleaner.Clean(raw)
	if err != nil {
		return err
	}
	run.CleanedRows = report.OutputRows
	run.DroppedRows = report.DroppedRows
	run.DroppedColumns = report.DroppedColumns
	run.Missingness = report.Missingness

	encoded, err := r.encoder.Encode(cleaned)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	run.FeatureColumns = encoded.Features.Columns

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeOutputs(req, cleaned, encoded); err != nil {
		return err
	}

	if r.deps.Patients != nil {
		stored, err := r.deps.Patients.Load(ctx, run.ID, cleaned)
		if err != nil {
			return fmt.Errorf("store patients: %w", err)
		}
		run.PatientsStored = stored
	}
	if r.deps.Schemas != nil {
		if err := r.deps.Schemas.PinColumns(ctx, run.ID, run.FeatureColumns); err != nil {
			return fmt.Errorf("pin feature schema: %w", err)
		}
		run.SchemaPinned = true
	}
	return nil
}

// writeOutputs writes the requested files concurrently. The feature CSV
// carries the target as its last column.
func writeOutputs(req models.PipelineRunRequest, cleaned *dataset.Table, encoded *features.Result) error {
	var g errgroup.Group
	if req.CleanedPath != "" {
		g.Go(func() error { return dataset.WriteCSV(req.CleanedPath, cleaned) })
	}
	if req.FeaturesPath != "" || req.ParquetPath != "" {
		withTarget, err := encoded.Features.WithTarget(cleaning.ColumnTarget, encoded.Target)
		if err != nil {
			return err
		}
		if req.FeaturesPath != "" {
			g.Go(func() error { return dataset.WriteMatrixCSV(req.FeaturesPath, withTarget) })
		}
		if req.ParquetPath != "" {
			g.Go(func() error { return dataset.WriteMatrixParquet(req.ParquetPath, withTarget) })
		}
	}
	return g.Wait()
}

func (r *Runner) publish(ctx context.Context, eventType string, run *RunSummary) {
	if r.deps.Events == nil {
		return
	}
	data := map[string]interface{}{
		"run_id":          run.ID,
		"status":          run.Status,
		"input_path":      run.Request.InputPath,
		"features_path":   run.Request.FeaturesPath,
		"cleaned_rows":    run.CleanedRows,
		"feature_columns": len(run.FeatureColumns),
	}
	if run.Error != "" {
		data["error"] = run.Error
	}
	if err := r.deps.Events.PublishEvent(ctx, eventType, r.source, data); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.WithError(err).WithField("run_id", run.ID).Warn("pipeline event not published")
	}
}
