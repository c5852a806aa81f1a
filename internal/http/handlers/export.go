package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/auralabs/aura/internal/encoder"
	"github.com/auralabs/aura/internal/models"
	"github.com/auralabs/aura/internal/observability"
)

// ExportHandler handles export job endpoints.
type ExportHandler struct {
	jobs JobService
}

// NewExportHandler creates an export handler.
func NewExportHandler(jobs JobService) *ExportHandler {
	return &ExportHandler{jobs: jobs}
}

// SubmitExportInput is the input for export submission.
type SubmitExportInput struct {
	Body models.ExportRequest
}

// PresetsOutput lists the closed export preset table.
type PresetsOutput struct {
	Body struct {
		Presets []encoder.Preset `json:"presets"`
	}
}

// Register registers the export routes.
func (h *ExportHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "submitExport",
		Method:        http.MethodPost,
		Path:          "/api/v1/export/start",
		Summary:       "Submit an export job",
		Description:   "Transcodes an existing intermediate video, or renders a timeline first, into a platform preset.",
		Tags:          []string{"Export"},
		DefaultStatus: http.StatusAccepted,
	}, h.SubmitExport)

	huma.Register(api, huma.Operation{
		OperationID: "getExportStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/export/status/{id}",
		Summary:     "Get export job status",
		Tags:        []string{"Export"},
	}, h.GetStatus)

	huma.Register(api, huma.Operation{
		OperationID:   "cancelExport",
		Method:        http.MethodPost,
		Path:          "/api/v1/export/cancel/{id}",
		Summary:       "Cancel an export job",
		Tags:          []string{"Export"},
		DefaultStatus: http.StatusAccepted,
	}, h.CancelExport)

	huma.Register(api, huma.Operation{
		OperationID: "listExportPresets",
		Method:      http.MethodGet,
		Path:        "/api/v1/export/presets",
		Summary:     "List export presets",
		Tags:        []string{"Export"},
	}, h.ListPresets)
}

// SubmitExport validates and queues an export job.
func (h *ExportHandler) SubmitExport(ctx context.Context, input *SubmitExportInput) (*JobOutput, error) {
	job, err := h.jobs.SubmitExport(ctx, observability.CorrelationIDFromContext(ctx), input.Body)
	if err != nil {
		return nil, problemFromError(ctx, err)
	}
	return &JobOutput{Body: job}, nil
}

// GetStatus returns an export job snapshot.
func (h *ExportHandler) GetStatus(ctx context.Context, input *JobIDInput) (*JobOutput, error) {
	id, err := parseJobID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	job, err := h.jobs.Get(id)
	if err != nil {
		return nil, problemFromError(ctx, err)
	}
	if job.Type != models.JobTypeExport {
		return nil, newProblem(ctx, http.StatusNotFound, models.ErrCodeValidation, "job is not an export")
	}
	return &JobOutput{Body: job}, nil
}

// CancelExport requests cancellation of an export job.
func (h *ExportHandler) CancelExport(ctx context.Context, input *JobIDInput) (*JobOutput, error) {
	id, err := parseJobID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	job, err := h.jobs.Get(id)
	if err != nil {
		return nil, problemFromError(ctx, err)
	}
	if job.Type != models.JobTypeExport {
		return nil, newProblem(ctx, http.StatusNotFound, models.ErrCodeValidation, "job is not an export")
	}
	if err := h.jobs.Cancel(id); err != nil {
		return nil, problemFromError(ctx, err)
	}
	job, err = h.jobs.Get(id)
	if err != nil {
		return nil, problemFromError(ctx, err)
	}
	return &JobOutput{Body: job}, nil
}

// ListPresets returns the export preset table.
func (h *ExportHandler) ListPresets(ctx context.Context, _ *struct{}) (*PresetsOutput, error) {
	out := &PresetsOutput{}
	out.Body.Presets = encoder.Presets()
	return out, nil
}
