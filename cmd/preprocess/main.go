// Command preprocess cleans a raw encounter export and encodes it into a
// numeric feature file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/synaptica-ai/readmission/pkg/common/config"
	"github.com/synaptica-ai/readmission/pkg/common/logger"
	"github.com/synaptica-ai/readmission/pkg/common/models"
	"github.com/synaptica-ai/readmission/pkg/pipeline"
)

func main() {
	if os.Getenv("LOG_FORMAT") == "" {
		os.Setenv("LOG_FORMAT", "text")
	}
	logger.InitWithOutput(os.Stderr)
	cfg := config.Load()

	var req models.PipelineRunRequest
	flag.StringVar(&req.InputPath, "in", "data/diabetic_data.csv", "raw encounter CSV")
	flag.StringVar(&req.CleanedPath, "cleaned", "data/processed_data.csv", "cleaned CSV output (empty to skip)")
	flag.StringVar(&req.FeaturesPath, "features", "data/final_features.csv", "feature CSV output (empty to skip)")
	flag.StringVar(&req.ParquetPath, "parquet", "", "feature Parquet output (empty to skip)")
	rules := flag.String("rules", cfg.RulesFile, "category rules YAML (built-in tables when empty)")
	cutoff := flag.Float64("cutoff", cfg.MissingnessCutoff, "also drop columns missing above this percentage (0 disables)")
	flag.Parse()

	cleaner, encoder, err := pipeline.NewStages(*rules, *cutoff)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid pipeline configuration")
	}
	runner := pipeline.NewRunner(cleaner, encoder, pipeline.Dependencies{}, "preprocess", "", 1)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run, err := runner.Run(ctx, req)
	if err != nil {
		logger.Log.WithError(err).Error("preprocessing failed")
		os.Exit(1)
	}

	logger.Log.WithFields(map[string]interface{}{
		"run_id":          run.ID,
		"input_rows":      run.InputRows,
		"cleaned_rows":    run.CleanedRows,
		"dropped_rows":    run.DroppedRows,
		"dropped_columns": run.DroppedColumns,
		"feature_columns": len(run.FeatureColumns),
		"duration":        run.Duration.String(),
	}).Info("preprocessing complete")
}
