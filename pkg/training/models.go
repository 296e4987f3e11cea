package training

import (
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/readmission/pkg/ml/linear"
	"gorm.io/datatypes"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const Algorithm = "logistic_regression"

type JobModel struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey;column:id"`
	ModelType    string            `gorm:"column:model_type;index"`
	FeaturesPath string            `gorm:"column:features_path"`
	RunID        string            `gorm:"column:run_id;index"`
	Config       datatypes.JSONMap `gorm:"column:config"`
	Status       string            `gorm:"column:status"`
	Metrics      datatypes.JSONMap `gorm:"column:metrics"`
	ArtifactPath string            `gorm:"column:artifact_path"`
	ErrorMessage string            `gorm:"column:error_message"`
	CreatedAt    time.Time         `gorm:"column:created_at"`
	UpdatedAt    time.Time         `gorm:"column:updated_at"`
	StartedAt    *time.Time        `gorm:"column:started_at"`
	CompletedAt  *time.Time        `gorm:"column:completed_at"`
}

func (JobModel) TableName() string {
	return "training_jobs"
}

// CreateJobInput names the model and the feature CSV to train it on. Config
// may override epochs, learning_rate, balanced, l2, test_fraction, seed and
// threshold.
type CreateJobInput struct {
	ModelType    string                 `json:"model_type" validate:"required,max=64,excludesall=./"`
	FeaturesPath string                 `json:"features_path" validate:"required"`
	RunID        string                 `json:"run_id,omitempty" validate:"omitempty,uuid"`
	Config       map[string]interface{} `json:"config,omitempty"`
}

type Artifact struct {
	JobID   uuid.UUID              `json:"job_id"`
	Path    string                 `json:"path"`
	Metrics map[string]interface{} `json:"metrics"`
}

// ModelArtifact is the file written for every completed job and read back by
// the predictor.
type ModelArtifact struct {
	JobID uuid.UUID `json:"job_id"`
	RunID string    `json:"run_id,omitempty"`
	Model struct {
		Type         string         `json:"type"`
		Algorithm    string         `json:"algorithm"`
		FeatureNames []string       `json:"feature_names"`
		Indicators   []string       `json:"indicators"`
		Weights      linear.Weights `json:"weights"`
		Scaler       linear.Scaler  `json:"scaler"`
		Threshold    float64        `json:"threshold"`
	} `json:"model"`
	Report      linear.Report        `json:"report"`
	TopFeatures []linear.Coefficient `json:"top_features"`
	Train       linear.Metrics       `json:"train"`
	CreatedAt   time.Time            `json:"created_at"`
}
