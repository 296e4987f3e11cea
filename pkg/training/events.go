package training

import (
	"context"

	"github.com/synaptica-ai/readmission/pkg/common/logger"
	"github.com/synaptica-ai/readmission/pkg/common/models"
	"github.com/synaptica-ai/readmission/pkg/common/validation"
)

// PipelineEventHandler queues a training job for every completed pipeline
// run that wrote a feature file. Events that cannot produce a valid job are
// skipped so the consumer does not redeliver them.
func (s *Service) PipelineEventHandler(modelType string) func(ctx context.Context, event models.Event) error {
	return func(ctx context.Context, event models.Event) error {
		if event.Type != models.EventPipelineCompleted {
			return nil
		}
		path, _ := event.Data["features_path"].(string)
		runID, _ := event.Data["run_id"].(string)
		entry := logger.Log.WithFields(map[string]interface{}{
			"event_id": event.ID,
			"run_id":   runID,
		})
		if path == "" {
			entry.Info("pipeline run wrote no feature file; skipping training")
			return nil
		}

		job, err := s.Create(ctx, CreateJobInput{ModelType: modelType, FeaturesPath: path, RunID: runID})
		if validation.IsValidationError(err) {
			entry.WithError(err).Warn("pipeline event cannot start a training job")
			return nil
		}
		if err != nil {
			return err
		}
		entry.WithField("job_id", job.ID.String()).Info("training job queued from pipeline event")
		return nil
	}
}
