package training

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrJobNotFound = errors.New("training job not found")

type JobStore interface {
	Create(ctx context.Context, job *JobModel) error
	UpdateStatus(ctx context.Context, jobID uuid.UUID, status string, metrics map[string]interface{}, artifactPath, errorMessage string) error
	SetTimestamps(ctx context.Context, jobID uuid.UUID, startedAt, completedAt *time.Time) error
	Get(ctx context.Context, jobID uuid.UUID) (*JobModel, error)
	List(ctx context.Context, limit int) ([]JobModel, error)
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&JobModel{})
}

func (r *Repository) Create(ctx context.Context, job *JobModel) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repository) UpdateStatus(ctx context.Context, jobID uuid.UUID, status string, metrics map[string]interface{}, artifactPath, errorMessage string) error {
	updates := map[string]interface{}{
		"status":        status,
		"artifact_path": artifactPath,
		"error_message": errorMessage,
		"updated_at":    time.Now().UTC(),
	}
	if metrics != nil {
		updates["metrics"] = datatypes.JSONMap(metrics)
	}
	return r.db.WithContext(ctx).Model(&JobModel{}).Where("id = ?", jobID).Updates(updates).Error
}

func (r *Repository) SetTimestamps(ctx context.Context, jobID uuid.UUID, startedAt, completedAt *time.Time) error {
	updates := map[string]interface{}{"updated_at": time.Now().UTC()}
	if startedAt != nil {
		updates["started_at"] = *startedAt
	}
	if completedAt != nil {
		updates["completed_at"] = *completedAt
	}
	return r.db.WithContext(ctx).Model(&JobModel{}).Where("id = ?", jobID).Updates(updates).Error
}

func (r *Repository) Get(ctx context.Context, jobID uuid.UUID) (*JobModel, error) {
	var job JobModel
	result := r.db.WithContext(ctx).First(&job, "id = ?", jobID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	return &job, result.Error
}

func (r *Repository) List(ctx context.Context, limit int) ([]JobModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []JobModel
	result := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&jobs)
	return jobs, result.Error
}

// MemoryStore keeps jobs in process when no database is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]JobModel
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]JobModel)}
}

func (m *MemoryStore) Create(_ context.Context, job *JobModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, jobID uuid.UUID, status string, metrics map[string]interface{}, artifactPath, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.ArtifactPath = artifactPath
	job.ErrorMessage = errorMessage
	job.UpdatedAt = time.Now().UTC()
	if metrics != nil {
		job.Metrics = datatypes.JSONMap(metrics)
	}
	m.jobs[jobID] = job
	return nil
}

func (m *MemoryStore) SetTimestamps(_ context.Context, jobID uuid.UUID, startedAt, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if startedAt != nil {
		t := *startedAt
		job.StartedAt = &t
	}
	if completedAt != nil {
		t := *completedAt
		job.CompletedAt = &t
	}
	job.UpdatedAt = time.Now().UTC()
	m.jobs[jobID] = job
	return nil
}

func (m *MemoryStore) Get(_ context.Context, jobID uuid.UUID) (*JobModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]JobModel, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	jobs := make([]JobModel, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.RUnlock()
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}
