// Package serving exposes trained readmission models over HTTP.
package serving

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/readmission/pkg/common/logger"
	"github.com/synaptica-ai/readmission/pkg/common/models"
	"github.com/synaptica-ai/readmission/pkg/common/validation"
	"github.com/synaptica-ai/readmission/pkg/observability/metrics"
	"github.com/synaptica-ai/readmission/pkg/serving/predictor"
)

type HTTPHandler struct {
	predictor *predictor.Predictor
	logs      LogStore
	maxBody   int64
}

// NewHTTPHandler serves predictions; logs may be nil.
func NewHTTPHandler(p *predictor.Predictor, logs LogStore, maxBody int64) *HTTPHandler {
	return &HTTPHandler{predictor: p, logs: logs, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/predict", h.handlePredict).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/models", h.handleListModels).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/models/{name}/features", h.handleModelFeatures).Methods(http.MethodGet)
	if h.logs != nil {
		router.HandleFunc("/api/v1/predictions/recent", h.handleRecent).Methods(http.MethodGet)
	}
}

func (h *HTTPHandler) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	var req models.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validation.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	prediction, err := h.predictor.Predict(req.ModelName, req.Features)
	metrics.ObservePrediction(err, time.Since(start))
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := models.PredictionResponse{
		PatientID:    req.PatientID,
		Probability:  prediction.Probability,
		Readmitted:   prediction.Readmitted,
		ModelVersion: prediction.Version,
		Latency:      time.Since(start),
	}
	if h.logs != nil {
		if err := h.logs.RecordPrediction(r.Context(), req, resp); err != nil {
			logger.Log.WithError(err).Warn("prediction log not recorded")
		}
	}

	logger.Log.WithFields(map[string]interface{}{
		"patient_id":  req.PatientID,
		"model":       req.ModelName,
		"version":     resp.ModelVersion,
		"probability": resp.Probability,
		"latency_ms":  resp.Latency.Milliseconds(),
	}).Debug("prediction served")
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) handleListModels(w http.ResponseWriter, r *http.Request) {
	names, err := h.predictor.Models()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": names})
}

func (h *HTTPHandler) handleModelFeatures(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	features, err := h.predictor.FeatureNames(name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"model": name, "features": features})
}

func (h *HTTPHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.logs.Recent(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, predictor.ErrModelNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, predictor.ErrMissingFeature), errors.Is(err, predictor.ErrUnknownFeature):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		logger.Log.WithError(err).Error("serving request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Warn("failed to encode response")
	}
}
