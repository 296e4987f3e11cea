package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/readmission/pkg/cleaning"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrRunNotFound = errors.New("pipeline run not found")

// RunStore persists run summaries. Save is an upsert keyed by run id.
type RunStore interface {
	Save(ctx context.Context, run *RunSummary) error
	Get(ctx context.Context, id string) (*RunSummary, error)
	List(ctx context.Context, limit int) ([]RunSummary, error)
}

type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]RunSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]RunSummary)}
}

func (s *MemoryStore) Save(_ context.Context, run *RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	out := run.clone()
	return &out, nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	out := make([]RunSummary, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run.clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type RunModel struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey;column:id"`
	Status         string         `gorm:"column:status;index"`
	InputPath      string         `gorm:"column:input_path"`
	CleanedPath    string         `gorm:"column:cleaned_path"`
	FeaturesPath   string         `gorm:"column:features_path"`
	ParquetPath    string         `gorm:"column:parquet_path"`
	InputRows      int            `gorm:"column:input_rows"`
	CleanedRows    int            `gorm:"column:cleaned_rows"`
	DroppedRows    int            `gorm:"column:dropped_rows"`
	DroppedColumns datatypes.JSON `gorm:"column:dropped_columns"`
	FeatureColumns datatypes.JSON `gorm:"column:feature_columns"`
	Missingness    datatypes.JSON `gorm:"column:missingness"`
	PatientsStored int            `gorm:"column:patients_stored"`
	SchemaPinned   bool           `gorm:"column:schema_pinned"`
	ErrorMessage   string         `gorm:"column:error_message"`
	StartedAt      time.Time      `gorm:"column:started_at"`
	CompletedAt    *time.Time     `gorm:"column:completed_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
}

func (RunModel) TableName() string {
	return "pipeline_runs"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&RunModel{})
}

func (r *Repository) Save(ctx context.Context, run *RunSummary) error {
	model, err := toModel(run)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(model).Error
}

func (r *Repository) Get(ctx context.Context, id string) (*RunSummary, error) {
	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrRunNotFound
	}
	var model RunModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", runID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return fromModel(&model)
}

func (r *Repository) List(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []RunModel
	if err := r.db.WithContext(ctx).Order("started_at desc").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]RunSummary, 0, len(models))
	for i := range models {
		run, err := fromModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, nil
}

func toModel(run *RunSummary) (*RunModel, error) {
	id, err := uuid.Parse(run.ID)
	if err != nil {
		return nil, err
	}
	dropped, err := json.Marshal(run.DroppedColumns)
	if err != nil {
		return nil, err
	}
	columns, err := json.Marshal(run.FeatureColumns)
	if err != nil {
		return nil, err
	}
	missing, err := json.Marshal(run.Missingness)
	if err != nil {
		return nil, err
	}
	return &RunModel{
		ID:             id,
		Status:         run.Status,
		InputPath:      run.Request.InputPath,
		CleanedPath:    run.Request.CleanedPath,
		FeaturesPath:   run.Request.FeaturesPath,
		ParquetPath:    run.Request.ParquetPath,
		InputRows:      run.InputRows,
		CleanedRows:    run.CleanedRows,
		DroppedRows:    run.DroppedRows,
		DroppedColumns: datatypes.JSON(dropped),
		FeatureColumns: datatypes.JSON(columns),
		Missingness:    datatypes.JSON(missing),
		PatientsStored: run.PatientsStored,
		SchemaPinned:   run.SchemaPinned,
		ErrorMessage:   run.Error,
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
		UpdatedAt:      time.Now().UTC(),
	}, nil
}

func fromModel(model *RunModel) (*RunSummary, error) {
	run := &RunSummary{
		ID:             model.ID.String(),
		Status:         model.Status,
		InputRows:      model.InputRows,
		CleanedRows:    model.CleanedRows,
		DroppedRows:    model.DroppedRows,
		PatientsStored: model.PatientsStored,
		SchemaPinned:   model.SchemaPinned,
		Error:          model.ErrorMessage,
		StartedAt:      model.StartedAt,
		CompletedAt:    model.CompletedAt,
	}
	run.Request.InputPath = model.InputPath
	run.Request.CleanedPath = model.CleanedPath
	run.Request.FeaturesPath = model.FeaturesPath
	run.Request.ParquetPath = model.ParquetPath
	if err := unmarshalJSON(model.DroppedColumns, &run.DroppedColumns); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(model.FeatureColumns, &run.FeatureColumns); err != nil {
		return nil, err
	}
	var missing []cleaning.ColumnMissingness
	if err := unmarshalJSON(model.Missingness, &missing); err != nil {
		return nil, err
	}
	run.Missingness = missing
	if run.CompletedAt != nil {
		run.Duration = run.CompletedAt.Sub(run.StartedAt)
	}
	return run, nil
}

func unmarshalJSON(raw datatypes.JSON, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
