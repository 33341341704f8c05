package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/parkscan/parkscan/internal/analyzer"
	"github.com/parkscan/parkscan/internal/jobs"
	"github.com/parkscan/parkscan/internal/observability"
	"github.com/parkscan/parkscan/internal/storage/sqlite"
	"github.com/parkscan/parkscan/pkg/logger"
)

// PointQuerier answers ad-hoc "can I park here at this time" questions.
// Satisfied by *analyzer.Analyzer.
type PointQuerier interface {
	QueryPoint(ctx context.Context, lat, lon float64, at time.Time) (*analyzer.PointAssessment, error)
}

// JobService submits and tracks asynchronous area analyses. Satisfied by
// *jobs.Scheduler.
type JobService interface {
	Submit(req jobs.SubmitRequest) (*jobs.Job, error)
	GetStatus(jobID string) (*jobs.Job, error)
	List() []*jobs.Job
	Cancel(jobID string) error
}

// ResultReader serves stored analysis artifacts. Satisfied by
// *sqlite.ResultStorage.
type ResultReader interface {
	GetResult(ctx context.Context, handle string, page, pageSize int) (*sqlite.ResultPage, error)
	ListAreaSummaries(ctx context.Context) ([]sqlite.AreaSummaryRecord, error)
}

// Handler contains the HTTP handlers for the API
type Handler struct {
	querier PointQuerier
	jobs    JobService
	results ResultReader
	metrics *observability.Metrics
	logger  *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(querier PointQuerier, jobService JobService, results ResultReader, metrics *observability.Metrics, log *logger.Logger) *Handler {
	return &Handler{
		querier: querier,
		jobs:    jobService,
		results: results,
		metrics: metrics,
		logger:  log.Named("api-handler"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type queryRequest struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Timestamp string  `json:"timestamp,omitempty"`
}

type matchedRule struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

type queryResponse struct {
	IsAllowed   bool         `json:"is_allowed"`
	Reason      string       `json:"reason"`
	Timestamp   time.Time    `json:"timestamp"`
	SignID      string       `json:"sign_id,omitempty"`
	Description string       `json:"description,omitempty"`
	DistanceM   float64      `json:"distance_m,omitempty"`
	MatchedRule *matchedRule `json:"matched_rule,omitempty"`
}

type analyzeRequest struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	RadiusKm float64 `json:"radius_km"`
	Name     string  `json:"name,omitempty"`
	AsOf     string  `json:"as_of,omitempty"`
}

type analyzeResponse struct {
	JobID  string      `json:"job_id"`
	Status jobs.Status `json:"status"`
}

type jobListResponse struct {
	Jobs  []*jobs.Job `json:"jobs"`
	Count int         `json:"count"`
}

type areaListResponse struct {
	Areas []sqlite.AreaSummaryRecord `json:"areas"`
	Count int                        `json:"count"`
}

// QueryPoint handles POST /api/v1/query. It evaluates the sign nearest to
// the given point; an omitted timestamp means now.
func (h *Handler) QueryPoint(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Lat < -90 || req.Lat > 90 || req.Lon < -180 || req.Lon > 180 {
		h.respondError(w, http.StatusBadRequest,
			fmt.Sprintf("coordinates %.4f, %.4f out of range", req.Lat, req.Lon))
		return
	}

	at := clock.Now().UTC()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "timestamp must be RFC 3339")
			return
		}
		at = parsed
	}

	assessment, err := h.querier.QueryPoint(r.Context(), req.Lat, req.Lon, at)
	if err != nil {
		if errors.Is(err, analyzer.ErrFeedUnavailable) {
			h.respondError(w, http.StatusServiceUnavailable, "sign feed unavailable")
			return
		}
		h.logger.Error("Point query failed", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "query failed")
		return
	}

	h.metrics.QueriesTotal.Inc()

	resp := queryResponse{
		IsAllowed:   assessment.Allowed,
		Reason:      assessment.Reason,
		Timestamp:   assessment.At,
		SignID:      assessment.SignID,
		Description: assessment.Description,
		DistanceM:   assessment.DistanceM,
	}
	if assessment.Matched != nil {
		resp.MatchedRule = &matchedRule{
			Kind:        string(assessment.Matched.Kind),
			Description: assessment.Matched.Description,
		}
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// StartAnalysis handles POST /api/v1/analyze. It queues an asynchronous area
// analysis and returns its job id.
func (h *Handler) StartAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	submit := jobs.SubmitRequest{
		Name:      req.Name,
		CenterLat: req.Lat,
		CenterLon: req.Lon,
		RadiusKm:  req.RadiusKm,
	}
	if req.AsOf != "" {
		parsed, err := time.Parse(time.RFC3339, req.AsOf)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "as_of must be RFC 3339")
			return
		}
		submit.AsOf = &parsed
	}

	job, err := h.jobs.Submit(submit)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrInvalidRequest):
			h.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, jobs.ErrQueueFull):
			h.respondError(w, http.StatusServiceUnavailable, "analysis queue is full")
		default:
			h.logger.Error("Job submission failed", logger.Error(err))
			h.respondError(w, http.StatusInternalServerError, "failed to start analysis")
		}
		return
	}

	h.respondJSON(w, http.StatusAccepted, analyzeResponse{JobID: job.ID, Status: job.Status})
}

// GetJob handles GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetStatus(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			h.respondError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("Job lookup failed", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	list := h.jobs.List()
	h.respondJSON(w, http.StatusOK, jobListResponse{Jobs: list, Count: len(list)})
}

// CancelJob handles DELETE /api/v1/jobs/{id}. Cancelling a finished job is a
// conflict; a successful cancel returns the terminal snapshot.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	if err := h.jobs.Cancel(jobID); err != nil {
		switch {
		case errors.Is(err, jobs.ErrJobNotFound):
			h.respondError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, jobs.ErrJobFinished):
			h.respondError(w, http.StatusConflict, "job already finished")
		default:
			h.logger.Error("Job cancellation failed", logger.Error(err))
			h.respondError(w, http.StatusInternalServerError, "failed to cancel job")
		}
		return
	}

	job, err := h.jobs.GetStatus(jobID)
	if err != nil {
		h.logger.Error("Job lookup failed after cancel", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

// GetResult handles GET /api/v1/results/{handle}. Unparseable or
// out-of-range page parameters fall back to the storage defaults.
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	result, err := h.results.GetResult(r.Context(), chi.URLParam(r, "handle"), page, pageSize)
	if err != nil {
		if errors.Is(err, sqlite.ErrResultNotFound) {
			h.respondError(w, http.StatusNotFound, "result not found")
			return
		}
		h.logger.Error("Result lookup failed", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to load result")
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// ListAreas handles GET /api/v1/areas
func (h *Handler) ListAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := h.results.ListAreaSummaries(r.Context())
	if err != nil {
		h.logger.Error("Area summary lookup failed", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to load areas")
		return
	}
	h.respondJSON(w, http.StatusOK, areaListResponse{Areas: areas, Count: len(areas)})
}

// GetHealth handles GET /api/v1/health
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   clock.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, errorResponse{Error: msg})
}
