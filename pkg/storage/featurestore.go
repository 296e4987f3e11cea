package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/readmission/pkg/common/logger"
)

var ErrSchemaNotPinned = errors.New("feature schema not pinned")

// LatestRun addresses the most recently pinned schema.
const LatestRun = "latest"

const schemaKeyPrefix = "features:schema:"

type PinnedSchema struct {
	RunID    string    `json:"run_id"`
	Columns  []string  `json:"columns"`
	PinnedAt time.Time `json:"pinned_at"`
}

// FeatureStore keeps the encoded column list of each run so that consumers
// can align new data to the columns a model was trained on.
type FeatureStore struct {
	client   redis.Cmdable
	cacheTTL time.Duration
}

func NewFeatureStore(client redis.Cmdable, cacheTTL time.Duration) *FeatureStore {
	return &FeatureStore{client: client, cacheTTL: cacheTTL}
}

func schemaKey(runID string) string {
	return schemaKeyPrefix + runID
}

// PinColumns stores the schema under the run id and as the latest schema.
func (f *FeatureStore) PinColumns(ctx context.Context, runID string, columns []string) error {
	if runID == "" || runID == LatestRun {
		return fmt.Errorf("invalid run id %q", runID)
	}
	payload, err := json.Marshal(PinnedSchema{
		RunID:    runID,
		Columns:  columns,
		PinnedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	_, err = f.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, schemaKey(runID), payload, f.cacheTTL)
		pipe.Set(ctx, schemaKey(LatestRun), payload, f.cacheTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("pin schema for run %s: %w", runID, err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"run_id":  runID,
		"columns": len(columns),
		"ttl":     f.cacheTTL.String(),
	}).Info("feature schema pinned")
	return nil
}

// PinnedSchema returns the schema for runID, or the latest one for LatestRun.
func (f *FeatureStore) PinnedSchema(ctx context.Context, runID string) (PinnedSchema, error) {
	data, err := f.client.Get(ctx, schemaKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return PinnedSchema{}, fmt.Errorf("%w: %s", ErrSchemaNotPinned, runID)
	}
	if err != nil {
		return PinnedSchema{}, fmt.Errorf("get schema for run %s: %w", runID, err)
	}
	var schema PinnedSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return PinnedSchema{}, fmt.Errorf("decode schema for run %s: %w", runID, err)
	}
	return schema, nil
}

func (f *FeatureStore) PinnedColumns(ctx context.Context, runID string) ([]string, error) {
	schema, err := f.PinnedSchema(ctx, runID)
	if err != nil {
		return nil, err
	}
	return schema.Columns, nil
}
