package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/readmission/pkg/analytics/dsl"
	"github.com/synaptica-ai/readmission/pkg/cleaning"
	"github.com/synaptica-ai/readmission/pkg/common/database"
	"github.com/synaptica-ai/readmission/pkg/dataset"
)

const integrationEnv = "READMISSION_INTEGRATION"

// setupPatientStore starts a throwaway PostgreSQL and migrates the patients
// table. Set READMISSION_INTEGRATION=1 to run.
func setupPatientStore(t *testing.T) *PatientStore {
	t.Helper()
	if os.Getenv(integrationEnv) == "" {
		t.Skipf("set %s=1 to run embedded postgres tests", integrationEnv)
	}

	const port = 15433
	pg := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		Username("test").
		Password("test").
		Database("test").
		Port(port).
		RuntimePath(t.TempDir()).
		StartTimeout(60 * time.Second))
	require.NoError(t, pg.Start())
	t.Cleanup(func() { _ = pg.Stop() })

	db, err := database.Open(fmt.Sprintf("host=localhost user=test password=test dbname=test port=%d sslmode=disable", port))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store := NewPatientStore(db, 2)
	require.NoError(t, store.AutoMigrate())
	return store
}

func cleanedFixture(t *testing.T) *dataset.Table {
	t.Helper()
	raw, err := dataset.ReadCSV(filepath.Join("..", "..", "testdata", "encounters.csv"))
	require.NoError(t, err)
	c, err := cleaning.NewCleaner(cleaning.DefaultOptions())
	require.NoError(t, err)
	cleaned, _, err := c.Clean(raw)
	require.NoError(t, err)
	return cleaned
}

func TestPatientStoreReportsAndQueries(t *testing.T) {
	store := setupPatientStore(t)
	ctx := context.Background()
	runID := uuid.New().String()

	n, err := store.Load(ctx, runID, cleanedFixture(t))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	races, err := store.Report(ctx, "race_counts", runID)
	require.NoError(t, err)
	require.NotEmpty(t, races.Rows)
	assert.Equal(t, "Caucasian", races.Rows[0]["race"])
	assert.EqualValues(t, 2, races.Rows[0]["count"])

	high, err := store.Report(ctx, "high_emergency_count", runID)
	require.NoError(t, err)
	require.Len(t, high.Rows, 1)
	assert.EqualValues(t, 0, high.Rows[0]["high_emergency_count"])

	for _, name := range ReportNames() {
		_, err := store.Report(ctx, name, runID)
		require.NoError(t, err, name)
	}

	_, err = store.Report(ctx, "nope", runID)
	assert.ErrorIs(t, err, ErrUnknownReport)

	query, err := dsl.Parse("SELECT race, diag_1_cat WHERE readmitted_binary = 1")
	require.NoError(t, err)
	result, err := store.Query(ctx, query, runID)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "circulatory", result.Rows[0]["diag_1_cat"])

	other, err := store.Query(ctx, query, uuid.New().String())
	require.NoError(t, err)
	assert.Empty(t, other.Rows)
}

func TestFeatureStorePinsLatest(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("set REDIS_TEST_ADDR to run redis tests")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	fs := NewFeatureStore(client, time.Minute)
	runID := uuid.New().String()
	columns := []string{"time_in_hospital", "comorbidity_count", "age_numeric"}
	require.NoError(t, fs.PinColumns(ctx, runID, columns))

	got, err := fs.PinnedColumns(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, columns, got)

	latest, err := fs.PinnedSchema(ctx, LatestRun)
	require.NoError(t, err)
	assert.Equal(t, runID, latest.RunID)

	_, err = fs.PinnedColumns(ctx, uuid.New().String())
	assert.ErrorIs(t, err, ErrSchemaNotPinned)
	assert.Error(t, fs.PinColumns(ctx, LatestRun, columns))
}
