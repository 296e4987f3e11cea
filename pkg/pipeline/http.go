package pipeline

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/readmission/pkg/cleaning"
	"github.com/synaptica-ai/readmission/pkg/common/logger"
	"github.com/synaptica-ai/readmission/pkg/common/models"
	"github.com/synaptica-ai/readmission/pkg/common/validation"
)

type HTTPHandler struct {
	runner  *Runner
	maxBody int64
}

func NewHTTPHandler(runner *Runner, maxBody int64) *HTTPHandler {
	return &HTTPHandler{runner: runner, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/pipeline/runs", h.handleSubmit).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/pipeline/runs", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/pipeline/runs/{id}", h.handleGet).Methods(http.MethodGet)
}

// handleSubmit queues the run; ?wait=true runs it inline and returns the
// final summary.
func (h *HTTPHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req models.PipelineRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid pipeline run payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	var (
		run *RunSummary
		err error
	)
	if wait {
		run, err = h.runner.Run(r.Context(), req)
	} else {
		run, err = h.runner.Submit(r.Context(), req)
	}
	if err != nil {
		switch {
		case validation.IsValidationError(err), cleaning.IsSchemaError(err):
			writeJSON(w, http.StatusBadRequest, errorBody(err, run))
		case run != nil:
			writeJSON(w, http.StatusUnprocessableEntity, errorBody(err, run))
		default:
			logger.Log.WithError(err).Error("failed to submit pipeline run")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	status := http.StatusAccepted
	if wait {
		status = http.StatusOK
	}
	writeJSON(w, status, run)
}

func (h *HTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.runner.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			http.Error(w, "pipeline run not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch pipeline run")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.runner.List(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list pipeline runs")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func errorBody(err error, run *RunSummary) map[string]interface{} {
	body := map[string]interface{}{"error": err.Error()}
	if run != nil {
		body["run"] = run
	}
	return body
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Warn("failed to encode response")
	}
}
