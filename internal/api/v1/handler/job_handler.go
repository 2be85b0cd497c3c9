package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"app/internal/api/v1/dto"
	"app/internal/apierr"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
)

// JobHandler handles job lifecycle endpoints.
type JobHandler struct {
	jobService    service.JobService
	exportService service.ExportService
	validate      *validator.Validate
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobService service.JobService, exportService service.ExportService, v *validator.Validate) *JobHandler {
	return &JobHandler{jobService: jobService, exportService: exportService, validate: v}
}

// RegisterRoutes mounts job routes under /jobs.
func (h *JobHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/jobs", authMw(http.HandlerFunc(h.handleJobs)))
	mux.Handle("/jobs/", authMw(http.HandlerFunc(h.handleJob)))
}

func (h *JobHandler) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createJob(w, r)
	case http.MethodGet:
		h.listJobs(w, r)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (h *JobHandler) handleJob(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch r.Method {
	case http.MethodPost:
		switch {
		case path == "/jobs/estimate":
			h.estimateJob(w, r)
		case strings.HasSuffix(path, "/cancel"):
			h.cancelJob(w, r)
		case strings.HasSuffix(path, "/retry"):
			h.retryJob(w, r)
		default:
			http.NotFound(w, r)
		}
	case http.MethodGet:
		switch {
		case strings.HasSuffix(path, "/status"):
			h.getJobStatus(w, r)
		case strings.HasSuffix(path, "/export"):
			h.getJobExport(w, r)
		default:
			h.getJob(w, r)
		}
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// createJob godoc
// @Summary Submit a video generation job
// @Description Charges the credit estimate up front and enqueues the job.
// @Tags jobs
// @Accept json
// @Produce json
// @Param job body dto.JobCreateDTO true "Job creation request"
// @Success 201 {object} dto.JobCreateResponseDTO
// @Failure 400 {object} dto.APIResponse
// @Failure 402 {object} dto.APIResponse "insufficient_credits"
// @Failure 429 {object} dto.APIResponse "max_concurrent_jobs"
// @Router /jobs [post]
func (h *JobHandler) createJob(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req dto.JobCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidJSON(w)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeValidationError(w, err)
		return
	}

	job, estimate, queuePos, etaSeconds, err := h.jobService.CreateJob(r.Context(), userID, req.NicheID, req.Platform, req.Options.ToModel())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, dto.JobCreateResponseDTO{
		Job:                  job,
		EstimatedCredits:     estimate.TotalCredits,
		EstimatedTimeSeconds: etaSeconds,
		QueuePosition:        queuePos,
	})
}

// estimateJob godoc
// @Summary Estimate a job's credit cost
// @Description Pure cost calculation; nothing is charged or enqueued.
// @Tags jobs
// @Accept json
// @Produce json
// @Param job body dto.JobCreateDTO true "Job parameters to estimate"
// @Success 200 {object} dto.EstimateResponseDTO
// @Failure 400 {object} dto.APIResponse
// @Router /jobs/estimate [post]
func (h *JobHandler) estimateJob(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req dto.JobCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidJSON(w)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeValidationError(w, err)
		return
	}

	estimate, err := h.jobService.EstimateJob(r.Context(), userID, req.NicheID, req.Platform, req.Options.ToModel())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dto.EstimateResponseDTO{Estimate: *estimate})
}

// listJobs godoc
// @Summary List the caller's jobs
// @Description Cursor-paginated, newest first. Filterable by status, niche,
// @Description platform, and creation time range.
// @Tags jobs
// @Produce json
// @Param status query string false "Job status filter"
// @Param niche_id query string false "Niche filter"
// @Param platform query string false "Platform filter"
// @Param from query string false "Created-after bound (RFC 3339)"
// @Param to query string false "Created-before bound (RFC 3339)"
// @Param limit query int false "Page size (1-100, default 20)"
// @Param cursor query string false "Opaque page cursor"
// @Success 200 {object} dto.PageResponse[model.Job]
// @Failure 400 {object} dto.APIResponse
// @Router /jobs [get]
func (h *JobHandler) listJobs(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	q := r.URL.Query()

	filter := repository.JobFilter{
		Status:   model.JobStatus(q.Get("status")),
		NicheID:  q.Get("niche_id"),
		Platform: model.Platform(q.Get("platform")),
	}
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		if v := q.Get(name); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, apierr.New(apierr.CodeInvalidInput, "Invalid "+name+" timestamp"))
				return
			}
			*dst = &ts
		}
	}

	limit := 20
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, apierr.New(apierr.CodeInvalidInput, "limit must be between 1 and 100"))
			return
		}
		limit = n
	}

	var cursor *repository.JobCursor
	if token := q.Get("cursor"); token != "" {
		c, err := dto.DecodeCursor(token)
		if err != nil {
			writeError(w, apierr.New(apierr.CodeInvalidInput, "Invalid cursor"))
			return
		}
		cursor = &repository.JobCursor{CreatedAt: c.CreatedAt, ID: c.ID}
	}

	// Fetch one extra row to detect whether another page exists.
	jobs, err := h.jobService.ListJobs(r.Context(), userID, filter, limit+1, cursor)
	if err != nil {
		writeError(w, err)
		return
	}
	hasMore := len(jobs) > limit
	if hasMore {
		jobs = jobs[:limit]
	}
	resp := dto.PageResponse[model.Job]{Items: jobs, HasMore: hasMore}
	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = dto.EncodeCursor(dto.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	writeData(w, http.StatusOK, resp)
}

// getJob godoc
// @Summary Get a job
// @Description Full job detail including scenes, checkpoints, and errors.
// @Tags jobs
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 200 {object} model.Job
// @Failure 404 {object} dto.APIResponse
// @Router /jobs/{jobId} [get]
func (h *JobHandler) getJob(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	jobID := strings.TrimPrefix(r.URL.Path, "/jobs/")

	job, err := h.jobService.GetJob(r.Context(), userID, jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, job)
}

// getJobStatus godoc
// @Summary Poll a job's progress
// @Description Lightweight status payload for progress polling.
// @Tags jobs
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 200 {object} dto.JobStatusResponseDTO
// @Failure 404 {object} dto.APIResponse
// @Router /jobs/{jobId}/status [get]
func (h *JobHandler) getJobStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	jobID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/jobs/"), "/status")

	job, err := h.jobService.GetJob(r.Context(), userID, jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	scenes := make([]dto.SceneStatusDTO, 0, len(job.Scenes))
	for _, sc := range job.Scenes {
		scenes = append(scenes, dto.SceneStatusDTO{
			SceneNumber: sc.SceneNumber,
			Status:      sc.Status,
			ImageURL:    sc.ImageURL,
			VideoURL:    sc.VideoURL,
		})
	}
	writeData(w, http.StatusOK, dto.JobStatusResponseDTO{
		JobID:                  job.ID,
		Status:                 job.Status,
		Progress:               job.Progress,
		Scenes:                 scenes,
		EstimatedTimeRemaining: estimateRemaining(job),
		CreditsCharged:         job.CreditsCharged,
	})
}

// estimateRemaining projects seconds left from the remaining progress share.
func estimateRemaining(job *model.Job) int {
	if job.Progress >= 100 || job.StartedAt == nil {
		return 0
	}
	if job.Progress == 0 {
		return 600
	}
	elapsed := time.Since(*job.StartedAt).Seconds()
	return int(elapsed / float64(job.Progress) * float64(100-job.Progress))
}

// cancelJob godoc
// @Summary Cancel a job
// @Description Jobs that have not started are refunded in full immediately;
// @Description running jobs are flagged and the worker finalizes the refund.
// @Tags jobs
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 200 {object} dto.JobCancelResponseDTO
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse "job_already_completed"
// @Router /jobs/{jobId}/cancel [post]
func (h *JobHandler) cancelJob(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	jobID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/jobs/"), "/cancel")

	job, refunded, err := h.jobService.CancelJob(r.Context(), userID, jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dto.JobCancelResponseDTO{Job: job, CreditsRefunded: refunded})
}

// retryJob godoc
// @Summary Retry a failed or partial job
// @Description Creates a new job resuming from the original's last checkpoint,
// @Description charging only for the remaining work.
// @Tags jobs
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 201 {object} dto.JobRetryResponseDTO
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse
// @Router /jobs/{jobId}/retry [post]
func (h *JobHandler) retryJob(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	jobID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/jobs/"), "/retry")

	newJob, err := h.jobService.RetryJob(r.Context(), userID, jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, dto.JobRetryResponseDTO{NewJob: newJob, OriginalJobID: jobID})
}

// getJobExport godoc
// @Summary Get a download link for a finished video
// @Description Returns a time-limited presigned URL for the final render.
// @Tags jobs
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse "no export yet"
// @Router /jobs/{jobId}/export [get]
func (h *JobHandler) getJobExport(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	jobID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/jobs/"), "/export")

	job, err := h.jobService.GetJob(r.Context(), userID, jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	url, err := h.exportService.GetDownloadURL(r.Context(), job)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"download_url": url})
}
