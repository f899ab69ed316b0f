package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"salesforecast/db"
	"salesforecast/forecast"
	"salesforecast/logging"
	"salesforecast/monitoring"
)

// JournalReader lists recently journaled predictions.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]db.PredictionRecord, error)
}

type HandlersConfig struct {
	ModelType string
	// StrictStatus reports inference failures as 500 instead of 400.
	StrictStatus bool
	Metrics      *monitoring.Collector
	Journal      JournalReader
	Logger       *zap.Logger
}

type Handlers struct {
	service      *forecast.Service
	modelType    string
	strictStatus bool
	metrics      *monitoring.Collector
	journal      JournalReader
	logger       *zap.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandlers(service *forecast.Service, cfg HandlersConfig) *Handlers {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = monitoring.NewCollector()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		service:      service,
		modelType:    cfg.ModelType,
		strictStatus: cfg.StrictStatus,
		metrics:      metrics,
		journal:      cfg.Journal,
		logger:       logger,
	}
}

func RegisterHandlers(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
	if h.journal != nil {
		mux.HandleFunc("GET /api/predictions", h.handleRecentPredictions)
	}
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"model":    h.modelType,
		"features": h.service.Features(),
	})
}

func (h *Handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = io.WriteString(w, h.metrics.Snapshot().ExportPrometheus())
}

// outcomePanic is reported when the predict path unwinds without returning.
const outcomePanic = "panic"

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	h.metrics.RequestStarted()
	outcome := outcomePanic
	defer func() {
		h.metrics.RequestDone(outcome, time.Since(start))
	}()

	result, err := h.predict(r)
	if err != nil {
		outcome = forecast.Kind(err)
		writeJSON(w, h.statusFor(err), errorResponse{Error: forecast.Message(err)})
		return
	}
	outcome = monitoring.OutcomeOK
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) predict(r *http.Request) (forecast.Result, error) {
	if contentType := r.Header.Get("Content-Type"); contentType != "" && !isJSONContentType(contentType) {
		body, _ := io.ReadAll(r.Body)
		return forecast.Result{}, h.service.Reject(r.Context(), body,
			fmt.Errorf("unsupported content type %q", contentType))
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return forecast.Result{}, h.service.Reject(r.Context(), body, fmt.Errorf("read body: %w", err))
	}
	return h.service.Predict(r.Context(), body)
}

// statusFor keeps every predict failure a client error unless strict status
// reporting is enabled.
func (h *Handlers) statusFor(err error) int {
	if h.strictStatus && errors.Is(err, forecast.ErrInference) {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func (h *Handlers) handleRecentPredictions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = l
	}

	records, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		logging.FromContext(r.Context(), h.logger).Error("journal_query_failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "journal unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": records,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func isJSONContentType(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	return mediaType == "application/json" ||
		(strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json"))
}
