package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/auralabs/aura/internal/encoder"
	"github.com/auralabs/aura/internal/models"
	"github.com/auralabs/aura/internal/providers"
)

// SystemHandler handles encoder info, server status, and remote shutdown.
type SystemHandler struct {
	detector     *encoder.Detector
	jobs         JobService
	registry     *providers.Registry
	availability *providers.AvailabilityCache
	offline      bool
	version      string
	startedAt    time.Time

	// shutdown triggers graceful shutdown; wired by the server.
	shutdown func()
}

// NewSystemHandler creates a system handler.
func NewSystemHandler(
	detector *encoder.Detector,
	jobs JobService,
	registry *providers.Registry,
	availability *providers.AvailabilityCache,
	offline bool,
	version string,
	shutdown func(),
) *SystemHandler {
	return &SystemHandler{
		detector:     detector,
		jobs:         jobs,
		registry:     registry,
		availability: availability,
		offline:      offline,
		version:      version,
		startedAt:    time.Now(),
		shutdown:     shutdown,
	}
}

// EncoderInfoOutput wraps the encoder info response.
type EncoderInfoOutput struct {
	Body EncoderInfoResponse
}

// EncoderInfoResponse describes the detected encoder installation.
type EncoderInfoResponse struct {
	Available    bool     `json:"available" doc:"Whether the encoder binary was found"`
	Path         string   `json:"path,omitempty" doc:"Path to the ffmpeg binary"`
	ProbePath    string   `json:"probe_path,omitempty" doc:"Path to the ffprobe binary"`
	Version      string   `json:"version,omitempty" doc:"Encoder version string"`
	MajorVersion int      `json:"major_version,omitempty"`
	MinorVersion int      `json:"minor_version,omitempty"`
	HWAccels     []string `json:"hw_accels,omitempty" doc:"Hardware acceleration methods"`
}

// StatusOutput wraps the server status response.
type StatusOutput struct {
	Body StatusResponse
}

// ProviderStatus is one registered provider's availability.
type ProviderStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// StatusResponse summarizes the server state.
type StatusResponse struct {
	Version    string                                 `json:"version"`
	Uptime     string                                 `json:"uptime"`
	Offline    bool                                   `json:"offline"`
	ActiveJobs int                                    `json:"active_jobs"`
	TotalJobs  int                                    `json:"total_jobs"`
	Providers  map[models.Capability][]ProviderStatus `json:"providers"`
}

// ShutdownOutput wraps the shutdown acknowledgement.
type ShutdownOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// Register registers the system routes.
func (h *SystemHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getEncoderInfo",
		Method:      http.MethodGet,
		Path:        "/api/v1/system/encoder/status",
		Summary:     "Get encoder capabilities",
		Tags:        []string{"System"},
	}, h.GetEncoderInfo)

	huma.Register(api, huma.Operation{
		OperationID: "getSystemStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/system/status",
		Summary:     "Get server status",
		Tags:        []string{"System"},
	}, h.GetStatus)

	huma.Register(api, huma.Operation{
		OperationID:   "shutdownServer",
		Method:        http.MethodPost,
		Path:          "/api/v1/system/shutdown",
		Summary:       "Shut the server down gracefully",
		Description:   "Stops admissions, cancels running jobs, terminates encoder processes, and exits.",
		Tags:          []string{"System"},
		DefaultStatus: http.StatusAccepted,
	}, h.Shutdown)
}

// GetEncoderInfo returns the detected ffmpeg installation.
func (h *SystemHandler) GetEncoderInfo(ctx context.Context, _ *struct{}) (*EncoderInfoOutput, error) {
	info, err := h.detector.Detect(ctx)
	if err != nil {
		return &EncoderInfoOutput{Body: EncoderInfoResponse{Available: false}}, nil
	}
	return &EncoderInfoOutput{Body: EncoderInfoResponse{
		Available:    true,
		Path:         info.Path,
		ProbePath:    info.ProbePath,
		Version:      info.Version,
		MajorVersion: info.MajorVersion,
		MinorVersion: info.MinorVersion,
		HWAccels:     info.HWAccels,
	}}, nil
}

// GetStatus returns the server status summary.
func (h *SystemHandler) GetStatus(ctx context.Context, _ *struct{}) (*StatusOutput, error) {
	resp := StatusResponse{
		Version:    h.version,
		Uptime:     time.Since(h.startedAt).Round(time.Second).String(),
		Offline:    h.offline,
		ActiveJobs: len(h.jobs.Active()),
		TotalJobs:  len(h.jobs.List()),
		Providers:  make(map[models.Capability][]ProviderStatus),
	}

	for _, capability := range []models.Capability{
		models.CapabilityLLM, models.CapabilityTTS, models.CapabilityVisuals,
	} {
		for _, name := range h.registry.Names(capability) {
			resp.Providers[capability] = append(resp.Providers[capability], ProviderStatus{
				Name:      name,
				Available: h.providerAvailable(ctx, capability, name),
			})
		}
	}
	return &StatusOutput{Body: resp}, nil
}

// Shutdown acknowledges and triggers graceful shutdown.
func (h *SystemHandler) Shutdown(ctx context.Context, _ *struct{}) (*ShutdownOutput, error) {
	out := &ShutdownOutput{}
	out.Body.Message = "shutting down"
	if h.shutdown != nil {
		go h.shutdown()
	}
	return out, nil
}

func (h *SystemHandler) providerAvailable(ctx context.Context, capability models.Capability, name string) bool {
	var p providers.Provider
	var ok bool
	switch capability {
	case models.CapabilityLLM:
		p, ok = h.registry.LLM(name)
	case models.CapabilityTTS:
		p, ok = h.registry.TTS(name)
	case models.CapabilityVisuals:
		p, ok = h.registry.Visuals(name)
	}
	if !ok {
		return false
	}
	return h.availability.Available(ctx, p)
}
