package serving

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/readmission/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PredictionLog is the persistence model for serving analytics.
type PredictionLog struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	PatientID    string            `gorm:"column:patient_id;index" json:"patient_id"`
	ModelName    string            `gorm:"column:model_name;index" json:"model_name"`
	ModelVersion string            `gorm:"column:model_version" json:"model_version"`
	Features     datatypes.JSONMap `gorm:"column:features" json:"features"`
	Probability  float64           `gorm:"column:probability" json:"probability"`
	Readmitted   bool              `gorm:"column:readmitted" json:"readmitted"`
	LatencyMs    float64           `gorm:"column:latency_ms" json:"latency_ms"`
	CreatedAt    time.Time         `gorm:"column:created_at;index" json:"created_at"`
}

// TableName overrides gorm naming.
func (PredictionLog) TableName() string {
	return "prediction_logs"
}

type LogStore interface {
	RecordPrediction(ctx context.Context, req models.PredictionRequest, resp models.PredictionResponse) error
	Recent(ctx context.Context, limit int) ([]PredictionLog, error)
}

// Repository handles prediction logs queries.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&PredictionLog{})
}

func (r *Repository) RecordPrediction(ctx context.Context, req models.PredictionRequest, resp models.PredictionResponse) error {
	log := newPredictionLog(req, resp)
	return r.db.WithContext(ctx).Create(&log).Error
}

// Recent returns the most recent prediction logs up to limit.
func (r *Repository) Recent(ctx context.Context, limit int) ([]PredictionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []PredictionLog
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

func newPredictionLog(req models.PredictionRequest, resp models.PredictionResponse) PredictionLog {
	features := make(datatypes.JSONMap, len(req.Features))
	for k, v := range req.Features {
		features[k] = v
	}
	return PredictionLog{
		ID:           uuid.New(),
		PatientID:    req.PatientID,
		ModelName:    req.ModelName,
		ModelVersion: resp.ModelVersion,
		Features:     features,
		Probability:  resp.Probability,
		Readmitted:   resp.Readmitted,
		LatencyMs:    float64(resp.Latency.Microseconds()) / 1000.0,
		CreatedAt:    time.Now().UTC(),
	}
}
