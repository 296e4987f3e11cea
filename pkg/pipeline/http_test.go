package pipeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *mux.Router {
	t.Helper()
	router := mux.NewRouter()
	runner := newConfinedRunner(t, Dependencies{}, dataDirWithFixture(t))
	NewHTTPHandler(runner, 1<<20).Register(router)
	return router
}

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestHTTPRunAndFetch(t *testing.T) {
	router := newRouter(t)
	payload, err := json.Marshal(map[string]string{"input_path": "raw.csv", "features_path": "features.csv"})
	require.NoError(t, err)

	rec := serve(router, http.MethodPost, "/api/v1/pipeline/runs?wait=true", string(payload))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var run RunSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&run))
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 4, run.CleanedRows)

	rec = serve(router, http.MethodGet, "/api/v1/pipeline/runs/"+run.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodGet, "/api/v1/pipeline/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []RunSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	assert.Len(t, runs, 1)
}

func TestHTTPErrors(t *testing.T) {
	router := newRouter(t)

	rec := serve(router, http.MethodGet, "/api/v1/pipeline/runs/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, http.MethodPost, "/api/v1/pipeline/runs", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodPost, "/api/v1/pipeline/runs", `{"cleaned_path":"x.csv"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "input_path")

	outside := filepath.Join(t.TempDir(), "stolen.csv")
	payload, err := json.Marshal(map[string]string{"input_path": "raw.csv", "cleaned_path": outside})
	require.NoError(t, err)
	rec = serve(router, http.MethodPost, "/api/v1/pipeline/runs?wait=true", string(payload))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "escapes data directory")
	assert.NoFileExists(t, outside)

	rec = serve(router, http.MethodPost, "/api/v1/pipeline/runs?wait=true", `{"input_path":"/etc/hostname"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPSubmitReturnsAccepted(t *testing.T) {
	router := newRouter(t)
	payload, err := json.Marshal(map[string]string{"input_path": "raw.csv"})
	require.NoError(t, err)

	rec := serve(router, http.MethodPost, "/api/v1/pipeline/runs", string(payload))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var run RunSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&run))
	assert.Equal(t, StatusQueued, run.Status)
	assert.NotEmpty(t, run.ID)
}
