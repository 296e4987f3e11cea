package models

import (
	"time"

	"github.com/google/uuid"
)

// Event bus types
const (
	EventPipelineCompleted = "pipeline.completed"
	EventPipelineFailed    = "pipeline.failed"
)

type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // pipeline.completed, pipeline.failed
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Pipeline
type PipelineRunRequest struct {
	InputPath    string `json:"input_path" validate:"required"`
	CleanedPath  string `json:"cleaned_path,omitempty" validate:"omitempty,nefield=InputPath"`
	FeaturesPath string `json:"features_path,omitempty" validate:"omitempty,nefield=InputPath,nefield=CleanedPath"`
	ParquetPath  string `json:"parquet_path,omitempty" validate:"omitempty,nefield=InputPath"`
}

// Patient store queries
type PatientQueryRequest struct {
	Query string `json:"query" validate:"required,max=2048"`
}

type ReportResult struct {
	Name    string                   `json:"name"`
	Rows    []map[string]interface{} `json:"rows"`
	Elapsed time.Duration            `json:"elapsed"`
}

// Model training
type TrainingJob struct {
	ID           uuid.UUID              `json:"id"`
	ModelType    string                 `json:"model_type"`
	FeaturesPath string                 `json:"features_path"`
	RunID        string                 `json:"run_id,omitempty"`
	Config       map[string]interface{} `json:"config"`
	Status       string                 `json:"status"`
	CreatedAt    time.Time              `json:"created_at"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	Metrics      map[string]interface{} `json:"metrics,omitempty"`
	ArtifactPath string                 `json:"artifact_path,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// Model serving
type PredictionRequest struct {
	PatientID string             `json:"patient_id"`
	Features  map[string]float64 `json:"features" validate:"required,min=1"`
	ModelName string             `json:"model_name" validate:"required,max=64,excludesall=./"`
}

type PredictionResponse struct {
	PatientID    string        `json:"patient_id"`
	Probability  float64       `json:"probability"`
	Readmitted   bool          `json:"readmitted"`
	ModelVersion string        `json:"model_version"`
	Latency      time.Duration `json:"latency"`
}
