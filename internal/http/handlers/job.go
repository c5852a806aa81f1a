package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/auralabs/aura/internal/artifacts"
	"github.com/auralabs/aura/internal/models"
	"github.com/auralabs/aura/internal/observability"
)

// JobService is the queue surface the job handlers need.
type JobService interface {
	SubmitGeneration(ctx context.Context, correlationID string, inputs models.JobInputs) (*models.Job, error)
	SubmitExport(ctx context.Context, correlationID string, req models.ExportRequest) (*models.Job, error)
	Get(id models.ULID) (*models.Job, error)
	List() []*models.Job
	Active() []*models.Job
	Cancel(id models.ULID) error
	Retry(id models.ULID) (*models.Job, error)
}

// RecentSource lists recently completed jobs with their artifacts.
type RecentSource interface {
	RecentCompleted(n int) []artifacts.CompletedRecord
	RevealDirectory(jobID models.ULID) string
}

// JobHandler handles job lifecycle endpoints.
type JobHandler struct {
	jobs    JobService
	recents RecentSource
}

// NewJobHandler creates a job handler.
func NewJobHandler(jobs JobService, recents RecentSource) *JobHandler {
	return &JobHandler{jobs: jobs, recents: recents}
}

// SubmitJobInput is the input for job submission.
type SubmitJobInput struct {
	Body models.JobInputs
}

// JobOutput wraps a single job response.
type JobOutput struct {
	Body *models.Job
}

// JobListOutput wraps a job list response.
type JobListOutput struct {
	Body struct {
		Jobs []*models.Job `json:"jobs"`
	}
}

// JobIDInput is the path input shared by single-job endpoints.
type JobIDInput struct {
	ID string `path:"id" doc:"Job identifier (ULID)"`
}

// ProgressOutput is the lightweight polling response.
type ProgressOutput struct {
	Body ProgressResponse
}

// ProgressResponse is the current progress of one job.
type ProgressResponse struct {
	JobID        string          `json:"job_id"`
	State        models.JobState `json:"state"`
	Stage        models.Stage    `json:"stage"`
	Percent      float64         `json:"percent"`
	ETARemaining string          `json:"eta_remaining,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// FailureDetailsOutput wraps the failure details response.
type FailureDetailsOutput struct {
	Body *models.FailureDetails
}

// RecentArtifactsInput is the input for the recent artifacts endpoint.
type RecentArtifactsInput struct {
	Limit int `query:"limit" default:"10" minimum:"1" maximum:"50" doc:"How many completed jobs to return"`
}

// RecentArtifactsOutput lists recently completed jobs with their outputs.
type RecentArtifactsOutput struct {
	Body struct {
		Completed []RecentEntry `json:"completed"`
	}
}

// RecentEntry is one completed job with its artifact directory.
type RecentEntry struct {
	JobID      string            `json:"job_id"`
	Type       models.JobType    `json:"type"`
	State      models.JobState   `json:"state"`
	FinishedAt time.Time         `json:"finished_at"`
	Directory  string            `json:"directory"`
	Artifacts  []models.Artifact `json:"artifacts,omitempty"`
}

// Register registers the job routes.
func (h *JobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "submitJob",
		Method:        http.MethodPost,
		Path:          "/api/v1/jobs",
		Summary:       "Submit a generation job",
		Description:   "Validates the brief and plan, then queues a full script-to-video generation.",
		Tags:          []string{"Jobs"},
		DefaultStatus: http.StatusAccepted,
	}, h.SubmitJob)

	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs",
		Summary:     "List jobs",
		Tags:        []string{"Jobs"},
	}, h.ListJobs)

	huma.Register(api, huma.Operation{
		OperationID: "getJob",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get a job",
		Tags:        []string{"Jobs"},
	}, h.GetJob)

	huma.Register(api, huma.Operation{
		OperationID: "getJobProgress",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs/{id}/progress",
		Summary:     "Get job progress",
		Description: "Lightweight polling endpoint; use the events endpoint for push updates.",
		Tags:        []string{"Jobs"},
	}, h.GetProgress)

	huma.Register(api, huma.Operation{
		OperationID: "getJobFailureDetails",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs/{id}/failure-details",
		Summary:     "Get failure details for a failed job",
		Tags:        []string{"Jobs"},
	}, h.GetFailureDetails)

	huma.Register(api, huma.Operation{
		OperationID:   "cancelJob",
		Method:        http.MethodPost,
		Path:          "/api/v1/jobs/{id}/cancel",
		Summary:       "Cancel a job",
		Description:   "Queued jobs cancel immediately; running jobs stop at the next cancellation point.",
		Tags:          []string{"Jobs"},
		DefaultStatus: http.StatusAccepted,
	}, h.CancelJob)

	huma.Register(api, huma.Operation{
		OperationID:   "retryJob",
		Method:        http.MethodPost,
		Path:          "/api/v1/jobs/{id}/retry",
		Summary:       "Retry a failed job",
		Description:   "Admits a fresh job with the same inputs under a new correlation id.",
		Tags:          []string{"Jobs"},
		DefaultStatus: http.StatusAccepted,
	}, h.RetryJob)

	huma.Register(api, huma.Operation{
		OperationID: "listRecentArtifacts",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs/recent-artifacts",
		Summary:     "List recently completed jobs and their artifacts",
		Tags:        []string{"Artifacts"},
	}, h.RecentArtifacts)
}

// SubmitJob validates and queues a generation job.
func (h *JobHandler) SubmitJob(ctx context.Context, input *SubmitJobInput) (*JobOutput, error) {
	job, err := h.jobs.SubmitGeneration(ctx, observability.CorrelationIDFromContext(ctx), input.Body)
	if err != nil {
		return nil, problemFromError(ctx, err)
	}
	return &JobOutput{Body: job}, nil
}

// ListJobs returns every known job, newest first.
func (h *JobHandler) ListJobs(ctx context.Context, _ *struct{}) (*JobListOutput, error) {
	out := &JobListOutput{}
	out.Body.Jobs = h.jobs.List()
	return out, nil
}

// GetJob returns one job snapshot.
func (h *JobHandler) GetJob(ctx context.Context, input *JobIDInput) (*JobOutput, error) {
	id, err := parseJobID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	job, err := h.jobs.Get(id)
	if err != nil {
		return nil, problemFromError(ctx, err)
	}
	return &JobOutput{Body: job}, nil
}

// GetProgress returns the job's current stage and percent.
func (h *JobHandler) GetProgress(ctx context.Context, input *JobIDInput) (*ProgressOutput, error) {
	id, err := parseJobID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	job, err := h.jobs.Get(id)
	if err != nil {
		return nil, problemFromError(ctx, err)
	}

	resp := ProgressResponse{
		JobID:       job.ID.String(),
		State:       job.State,
		Stage:       job.Stage,
		Percent:     job.Percent,
		StartedAt:   job.StartedAt,
		CompletedAt: job.FinishedAt,
	}
	if job.ETARemaining != nil {
		resp.ETARemaining = job.ETARemaining.Round(time.Second).String()
	}
	return &ProgressOutput{Body: resp}, nil
}

// GetFailureDetails returns the structured failure record of a failed job.
func (h *JobHandler) GetFailureDetails(ctx context.Context, input *JobIDInput) (*FailureDetailsOutput, error) {
	id, err := parseJobID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	job, err := h.jobs.Get(id)
	if err != nil {
		return nil, problemFromError(ctx, err)
	}
	if job.FailureDetails == nil {
		return nil, newProblem(ctx, http.StatusBadRequest, models.ErrCodeValidation, "job has not failed")
	}
	return &FailureDetailsOutput{Body: job.FailureDetails}, nil
}

// CancelJob requests cancellation.
func (h *JobHandler) CancelJob(ctx context.Context, input *JobIDInput) (*JobOutput, error) {
	id, err := parseJobID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.jobs.Cancel(id); err != nil {
		return nil, problemFromError(ctx, err)
	}
	job, err := h.jobs.Get(id)
	if err != nil {
		return nil, problemFromError(ctx, err)
	}
	return &JobOutput{Body: job}, nil
}

// RetryJob admits a fresh copy of a failed job.
func (h *JobHandler) RetryJob(ctx context.Context, input *JobIDInput) (*JobOutput, error) {
	id, err := parseJobID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	job, err := h.jobs.Retry(id)
	if err != nil {
		return nil, problemFromError(ctx, err)
	}
	return &JobOutput{Body: job}, nil
}

// RecentArtifacts lists recently completed jobs with their outputs.
func (h *JobHandler) RecentArtifacts(ctx context.Context, input *RecentArtifactsInput) (*RecentArtifactsOutput, error) {
	records := h.recents.RecentCompleted(input.Limit)

	out := &RecentArtifactsOutput{}
	out.Body.Completed = make([]RecentEntry, 0, len(records))
	for _, r := range records {
		out.Body.Completed = append(out.Body.Completed, RecentEntry{
			JobID:      r.JobID.String(),
			Type:       r.Type,
			State:      r.State,
			FinishedAt: r.FinishedAt,
			Directory:  h.recents.RevealDirectory(r.JobID),
			Artifacts:  r.Artifacts,
		})
	}
	return out, nil
}
