package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voxnote/voxnote-api/internal/api/shared"
	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/service"
	"github.com/voxnote/voxnote-api/internal/store"
)

// SubmitJobRequest represents the request body for submitting a new job.
// Prompt optionally customizes the analysis step's instructions.
type SubmitJobRequest struct {
	FileID    string `json:"file_id"    validate:"required,min=1"`
	InputPath string `json:"input_path"`
	JobType   string `json:"job_type"`
	Prompt    string `json:"prompt"`
}

// JobResponse represents the response data for a job
type JobResponse struct {
	ID              int64      `json:"id"`
	FileID          string     `json:"file_id"`
	Status          string     `json:"status"`
	Progress        int        `json:"progress"`
	CurrentStep     string     `json:"current_step,omitempty"`
	Attempts        int        `json:"attempts"`
	MaxAttempts     int        `json:"max_attempts"`
	TotalChunks     int        `json:"total_chunks"`
	CompletedChunks int        `json:"completed_chunks"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	RecordID        *uuid.UUID `json:"record_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	jobService service.JobService
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(jobService service.JobService) *JobHandler {
	return &JobHandler{jobService: jobService}
}

// SubmitJob handles POST /api/jobs requests
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Caller identity not found")
		return
	}

	var req SubmitJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	jobType := domain.JobType(req.JobType)
	if req.JobType == "" {
		jobType = domain.JobTypeTranscription
	}

	job, err := h.jobService.Submit(r.Context(), service.SubmitParams{
		FileID:    req.FileID,
		UserID:    caller.UserID,
		CompanyID: caller.CompanyID,
		StaffID:   caller.StaffID,
		InputPath: req.InputPath,
		JobType:   jobType,
		Prompt:    req.Prompt,
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidEntity) {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job: "+err.Error())
			return
		}
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to submit job")
		return
	}

	// Processing happens asynchronously, so the submission is only accepted.
	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToResponse(job))
}

// GetJob handles GET /api/jobs/{id} requests
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Caller identity not found")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	status, err := h.jobService.GetStatus(r.Context(), id, scopeFor(caller))
	if err != nil {
		if store.IsNotFoundError(err) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
			return
		}
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to load job")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, status)
}

// ListJobs handles GET /api/jobs requests
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Caller identity not found")
		return
	}

	filter := store.JobFilter{Scope: scopeFor(caller)}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.JobStatus(raw)
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = limit
	}

	jobs, err := h.jobService.List(r.Context(), filter)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, jobToResponse(job))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// RetryJob handles POST /api/jobs/{id}/retry requests
func (h *JobHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Caller identity not found")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.jobService.Retry(r.Context(), id, scopeFor(caller))
	if err != nil {
		switch {
		case store.IsNotFoundError(err):
			shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
		case errors.Is(err, store.ErrConflict):
			shared.RespondWithError(w, r, http.StatusConflict, "Job is not in a retryable state")
		default:
			shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to retry job")
		}
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToResponse(job))
}

// ListRecords handles GET /api/records requests
func (h *JobHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Caller identity not found")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.jobService.ListRecords(r.Context(), caller.CompanyID, limit)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to list records")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, records)
}

// scopeFor converts the gateway caller into a store query scope.
func scopeFor(caller Caller) store.AuthScope {
	return store.AuthScope{CompanyID: caller.CompanyID, UserID: caller.UserID}
}

// jobToResponse converts a domain.Job to a JobResponse
func jobToResponse(job *domain.Job) JobResponse {
	return JobResponse{
		ID:              job.ID,
		FileID:          job.FileID,
		Status:          string(job.Status),
		Progress:        job.Progress,
		CurrentStep:     job.CurrentStep,
		Attempts:        job.Attempts,
		MaxAttempts:     job.MaxAttempts,
		TotalChunks:     job.TotalChunks,
		CompletedChunks: job.CompletedChunks,
		ErrorMessage:    job.ErrorMessage,
		RecordID:        job.RecordID,
		CreatedAt:       job.CreatedAt,
		CompletedAt:     job.CompletedAt,
	}
}
