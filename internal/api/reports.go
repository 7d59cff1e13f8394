package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/maturity-report/internal/domain"
	"github.com/ashureev/maturity-report/internal/history"
	"github.com/ashureev/maturity-report/internal/poller"
	"github.com/ashureev/maturity-report/internal/report"
)

const defaultListLimit = 50

// ReportHandler handles job submission, lookup, watching and activation.
type ReportHandler struct {
	*Handler
}

// NewReportHandler creates a report handler.
func NewReportHandler(base *Handler) *ReportHandler {
	return &ReportHandler{Handler: base}
}

// RegisterRoutes registers report routes.
func (h *ReportHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/reports", func(r chi.Router) {
		r.With(h.limit).Post("/", h.Submit)
		r.Get("/", h.List)
		r.Get("/active", h.Active)
		r.Post("/active/swap", h.SwapBack)
		r.Get("/{id}", h.Get)
		r.Get("/{id}/watch", h.Watch)
		r.Post("/{id}/result", h.RecordResult)
		r.Post("/{id}/activate", h.Activate)
	})
}

type reportResponse struct {
	Job      *domain.Job            `json:"job"`
	Result   *domain.AnalysisResult `json:"result,omitempty"`
	Briefing string                 `json:"briefing,omitempty"`
}

type activeResponse struct {
	Active   *history.View `json:"active"`
	Previous *history.View `json:"previous,omitempty"`
}

type resultRequest struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Submit validates a company profile and starts an analysis.
func (h *ReportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var profile domain.CompanyProfile
	if err := decodeJSON(r, &profile); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.reports.Submit(r.Context(), profile)
	switch {
	case errors.Is(err, report.ErrInvalidProfile):
		Error(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("Failed to submit analysis", "error", err, "company", profile.CompanyName)
		Error(w, http.StatusBadGateway, "could not start analysis")
		return
	}
	JSON(w, http.StatusAccepted, job)
}

// List returns completed reports, newest first.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	reports, err := h.history.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list reports", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// Get returns a job and, once it has a payload, its canonical result and
// briefing.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	resp := reportResponse{Job: job}
	if len(job.Result) > 0 {
		view := h.history.View(job)
		resp.Result = &view.Result
		resp.Briefing = view.Briefing
	}
	JSON(w, http.StatusOK, resp)
}

func (h *ReportHandler) lookup(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	job, err := h.reports.GetJob(r.Context(), id)
	switch {
	case errors.Is(err, report.ErrJobNotFound):
		Error(w, http.StatusNotFound, "report not found")
		return nil, false
	case err != nil:
		h.logger.Error("Failed to get report", "error", err, "job_id", id)
		Error(w, http.StatusInternalServerError, "failed to get report")
		return nil, false
	}
	return job, true
}

// Watch streams poller events for a job as server-sent events. The stream
// ends after the terminal event or when the client disconnects.
func (h *ReportHandler) Watch(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var eventID int64
	send := func(event string, v any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			h.logger.Warn("failed to marshal watch event", "error", err, "job_id", job.ID)
			return false
		}
		eventID++
		if err := writeSSEWithID(w, eventID, event, string(data)); err != nil {
			h.logger.Debug("failed to write SSE event", "error", err, "job_id", job.ID)
			cancel()
			return false
		}
		flusher.Flush()
		return true
	}

	if !send("connected", map[string]string{"jobId": job.ID, "status": job.Status}) {
		return
	}
	h.logger.Info("Watch stream opened", "job_id", job.ID)

	err := h.poller.Poll(ctx, job.ID, func(ev poller.Event) {
		send(string(ev.Kind), ev)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn("Watch stream ended with error", "error", err, "job_id", job.ID)
		if writeErr := writeSSE(w, "error", err.Error()); writeErr == nil {
			flusher.Flush()
		}
		return
	}
	h.logger.Info("Watch stream closed", "job_id", job.ID)
}

// RecordResult accepts the analysis engine's write-back for a job.
func (h *ReportHandler) RecordResult(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	var req resultRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		Error(w, http.StatusBadRequest, "status is required")
		return
	}
	if string(req.Result) == "null" {
		req.Result = nil
	}

	err := h.reports.RecordResult(r.Context(), id, req.Status, req.Result, req.Error)
	switch {
	case errors.Is(err, report.ErrJobNotFound):
		Error(w, http.StatusNotFound, "report not found")
		return
	case err != nil:
		h.logger.Error("Failed to record result", "error", err, "job_id", id)
		Error(w, http.StatusInternalServerError, "failed to record result")
		return
	}
	h.logger.Info("Analysis result recorded", "job_id", id, "status", req.Status, "bytes", len(req.Result))
	w.WriteHeader(http.StatusNoContent)
}

// Activate makes a stored report the active one.
func (h *ReportHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	active, previous, err := h.history.ActivateID(r.Context(), id)
	switch {
	case errors.Is(err, history.ErrNotFound):
		Error(w, http.StatusNotFound, "report not found")
		return
	case errors.Is(err, history.ErrNotCompleted):
		Error(w, http.StatusConflict, "report is not completed")
		return
	case err != nil:
		h.logger.Error("Failed to activate report", "error", err, "job_id", id)
		Error(w, http.StatusInternalServerError, "failed to activate report")
		return
	}
	JSON(w, http.StatusOK, activeResponse{Active: active, Previous: previous})
}

// Active returns the active report and the one it replaced.
func (h *ReportHandler) Active(w http.ResponseWriter, r *http.Request) {
	active, ok := h.history.Active()
	if !ok {
		Error(w, http.StatusNotFound, "no active report")
		return
	}
	previous, _ := h.history.Previous()
	JSON(w, http.StatusOK, activeResponse{Active: active, Previous: previous})
}

// SwapBack re-activates the previously active report.
func (h *ReportHandler) SwapBack(w http.ResponseWriter, r *http.Request) {
	active, previous, err := h.history.SwapBack()
	if errors.Is(err, history.ErrNoPrevious) {
		Error(w, http.StatusConflict, "no previous report")
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, activeResponse{Active: active, Previous: previous})
}
