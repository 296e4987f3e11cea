package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/readmission/pkg/analytics/dsl"
	"github.com/synaptica-ai/readmission/pkg/common/logger"
	"github.com/synaptica-ai/readmission/pkg/common/models"
	"github.com/synaptica-ai/readmission/pkg/common/validation"
)

type HTTPHandler struct {
	patients *PatientStore
	maxBody  int64
}

func NewHTTPHandler(patients *PatientStore, maxBody int64) *HTTPHandler {
	return &HTTPHandler{patients: patients, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/patients/reports", h.handleListReports).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/patients/reports/{name}", h.handleReport).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/patients/query", h.handleQuery).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleListReports(w http.ResponseWriter, r *http.Request) {
	out := make([]map[string]string, 0, len(reports))
	for _, name := range ReportNames() {
		desc, _ := ReportDescription(name)
		out = append(out, map[string]string{"name": name, "description": desc})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	result, err := h.patients.Report(r.Context(), name, r.URL.Query().Get("run_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "xlsx" {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".xlsx"))
		if err := WriteReportXLSX(w, result); err != nil {
			logger.Log.WithError(err).WithField("report", name).Error("failed to write workbook")
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	var req models.PatientQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(w, err)
		return
	}
	query, err := dsl.Parse(req.Query)
	if err != nil {
		h.writeError(w, validation.New(err))
		return
	}
	result, err := h.patients.Query(r.Context(), query, r.URL.Query().Get("run_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case validation.IsValidationError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrUnknownReport):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		logger.Log.WithError(err).Error("patient store request failed")
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
