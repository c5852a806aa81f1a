package pipeline

import (
	"context"
	"time"

	"github.com/auralabs/aura/internal/models"
)

// ProgressFunc receives stage-local progress. Implementations coalesce;
// stages may call it freely. eta may be zero when unknown.
type ProgressFunc func(percent float64, eta time.Duration)

// State carries a job's inputs and accumulated stage outputs through the
// pipeline. The runner owns the state; stages read prior outputs and write
// their own.
type State struct {
	JobID         models.ULID
	CorrelationID string

	// WorkDir is per-job scratch space; OutDir is the job's artifact
	// directory. Both exist before the first stage runs.
	WorkDir string
	OutDir  string

	Inputs models.JobInputs
	Export *models.ExportRequest

	// Tier and Offline drive provider resolution for every stage.
	Tier         models.Tier
	SpecificName string
	Offline      bool

	// Decision is the provider resolution for the stage currently
	// executing; the runner refreshes it per stage.
	Decision models.ProviderDecision

	// Script stage outputs.
	ScriptText string
	ScriptPath string
	Scenes     []string

	// Narration stage outputs.
	AudioPath     string
	AudioDuration time.Duration

	// Visuals stage outputs.
	ImagePaths []string

	// Render and export outputs.
	IntermediatePath string
	FinalPath        string
}

// Stage is one pipeline step. Execute returns the artifacts it produced;
// on error the runner classifies and decides between retry and failure.
type Stage interface {
	// Name identifies the stage in job records and events.
	Name() models.Stage

	// Capability names the provider capability the stage resolves, or ""
	// for stages that run without a provider.
	Capability() models.Capability

	// Execute runs the stage. ctx carries the stage deadline; explicit
	// cancellation arrives through the same context.
	Execute(ctx context.Context, st *State, progress ProgressFunc) ([]models.Artifact, error)
}
