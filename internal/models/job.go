package models

import (
	"time"
)

// JobType distinguishes full generations from standalone exports.
type JobType string

const (
	// JobTypeGeneration runs the full Script→…→TimelineRender pipeline.
	JobTypeGeneration JobType = "generation"
	// JobTypeExport transcodes an existing intermediate with a preset.
	JobTypeExport JobType = "export"
)

// JobState is the job lifecycle state.
type JobState string

const (
	// StateQueued means the job is admitted but not yet picked up.
	StateQueued JobState = "queued"
	// StateRunning means a worker is executing the job's stages.
	StateRunning JobState = "running"
	// StateSucceeded is the successful terminal state.
	StateSucceeded JobState = "succeeded"
	// StateFailed is the failed terminal state.
	StateFailed JobState = "failed"
	// StateCancelled is the cancelled terminal state.
	StateCancelled JobState = "cancelled"
)

// IsTerminal returns true for succeeded, failed, and cancelled.
func (s JobState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Stage identifies one step of the generation pipeline.
type Stage string

const (
	// StageScript generates the narration text.
	StageScript Stage = "script"
	// StageNarration synthesizes the narration audio.
	StageNarration Stage = "narration"
	// StageVisuals produces one image per scene.
	StageVisuals Stage = "visuals"
	// StageTimelineRender composes audio and visuals into the intermediate video.
	StageTimelineRender Stage = "timeline_render"
	// StageExport transcodes the intermediate into a platform preset.
	StageExport Stage = "export"
	// StageComplete marks a finished pipeline.
	StageComplete Stage = "complete"
)

// GenerationStages is the ordered stage sequence for a generation job.
var GenerationStages = []Stage{StageScript, StageNarration, StageVisuals, StageTimelineRender}

// ArtifactType classifies pipeline outputs.
type ArtifactType string

const (
	// ArtifactScript is the cleaned narration text.
	ArtifactScript ArtifactType = "script"
	// ArtifactAudio is the narration wav.
	ArtifactAudio ArtifactType = "audio"
	// ArtifactVisualSet is the directory of scene images.
	ArtifactVisualSet ArtifactType = "visual-set"
	// ArtifactIntermediateVideo is the rendered timeline before export.
	ArtifactIntermediateVideo ArtifactType = "intermediate-video"
	// ArtifactFinalVideo is the deliverable.
	ArtifactFinalVideo ArtifactType = "final-video"
)

// Artifact is one persisted pipeline output.
type Artifact struct {
	Type      ArtifactType `json:"type"`
	Path      string       `json:"path"`
	SizeBytes int64        `json:"size_bytes"`
	CreatedAt time.Time    `json:"created_at"`
}

// JobInputs bundles the four request specs that define a job, plus the
// provider preference applied to every stage.
type JobInputs struct {
	Brief  Brief      `json:"brief"`
	Plan   PlanSpec   `json:"plan_spec"`
	Voice  VoiceSpec  `json:"voice_spec"`
	Render RenderSpec `json:"render_spec"`

	// Tier is the caller's provider preference. Empty defaults to
	// pro_if_available.
	Tier Tier `json:"tier,omitempty"`

	// Provider pins a specific provider when Tier is "specific".
	Provider string `json:"provider,omitempty"`
}

// TierOrDefault returns the requested tier, defaulting to pro_if_available.
func (in *JobInputs) TierOrDefault() Tier {
	if in.Tier == "" {
		return TierProIfAvailable
	}
	return in.Tier
}

// ExportRequest describes a standalone export job's input: either an
// existing intermediate file or a timeline to render first.
type ExportRequest struct {
	// InputFile is an existing intermediate video. Mutually exclusive
	// with Timeline.
	InputFile string `json:"input_file,omitempty"`

	// Timeline is an editable timeline rendered before export.
	Timeline *Timeline `json:"timeline,omitempty"`

	// Preset names the platform preset to export with.
	Preset string `json:"preset"`
}

// Timeline is a minimal editable timeline: ordered scenes over a single
// narration track.
type Timeline struct {
	AudioPath string          `json:"audio_path,omitempty"`
	Scenes    []TimelineScene `json:"scenes"`
	Render    RenderSpec      `json:"render_spec"`
}

// TimelineScene is one visual with its display duration.
type TimelineScene struct {
	ImagePath string        `json:"image_path"`
	Duration  time.Duration `json:"duration"`
}

// Job is a running or historical generation. All mutation goes through the
// queue, which owns the record; other components receive snapshots.
type Job struct {
	ID            ULID    `json:"id"`
	CorrelationID string  `json:"correlation_id"`
	Type          JobType `json:"type"`

	State   JobState `json:"state"`
	Stage   Stage    `json:"stage"`
	Percent float64  `json:"percent"`

	StartedAt    *time.Time     `json:"started_at,omitempty"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	ETARemaining *time.Duration `json:"eta_remaining,omitempty"`

	Errors         []JobError      `json:"errors,omitempty"`
	FailureDetails *FailureDetails `json:"failure_details,omitempty"`
	Artifacts      []Artifact      `json:"artifacts,omitempty"`

	// Decisions records the provider chosen for each executed stage.
	Decisions []ProviderDecision `json:"decisions,omitempty"`

	Inputs JobInputs      `json:"inputs"`
	Export *ExportRequest `json:"export,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Snapshot returns a deep copy safe to hand out of the queue's lock.
func (j *Job) Snapshot() *Job {
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	if j.ETARemaining != nil {
		d := *j.ETARemaining
		cp.ETARemaining = &d
	}
	if j.FailureDetails != nil {
		fd := *j.FailureDetails
		fd.SuggestedActions = append([]string(nil), j.FailureDetails.SuggestedActions...)
		cp.FailureDetails = &fd
	}
	if j.Export != nil {
		ex := *j.Export
		cp.Export = &ex
	}
	cp.Errors = append([]JobError(nil), j.Errors...)
	cp.Artifacts = append([]Artifact(nil), j.Artifacts...)
	cp.Decisions = append([]ProviderDecision(nil), j.Decisions...)
	return &cp
}

// AdvanceStage moves to the next stage and resets percent. Terminal jobs
// never advance.
func (j *Job) AdvanceStage(next Stage) {
	if j.State.IsTerminal() {
		return
	}
	j.Stage = next
	j.Percent = 0
}

// SetPercent applies a monotone progress update within the current stage.
// Regressions are ignored.
func (j *Job) SetPercent(p float64) {
	if j.State.IsTerminal() {
		return
	}
	if p < j.Percent {
		return
	}
	if p > 100 {
		p = 100
	}
	j.Percent = p
}

// MarkRunning transitions Queued → Running{first stage}.
func (j *Job) MarkRunning() {
	if j.State != StateQueued {
		return
	}
	now := time.Now()
	j.State = StateRunning
	j.StartedAt = &now
}

// MarkSucceeded sets the successful terminal state.
func (j *Job) MarkSucceeded() {
	if j.State.IsTerminal() {
		return
	}
	now := time.Now()
	j.State = StateSucceeded
	j.Stage = StageComplete
	j.Percent = 100
	j.FinishedAt = &now
	j.ETARemaining = nil
}

// MarkFailed sets the failed terminal state, recording the classified error
// and its failure details.
func (j *Job) MarkFailed(se *StageError) {
	if j.State.IsTerminal() {
		return
	}
	now := time.Now()
	j.State = StateFailed
	j.FinishedAt = &now
	j.ETARemaining = nil
	j.Errors = append(j.Errors, JobError{
		Code:        se.Code,
		Message:     se.Message,
		Remediation: Remediation(se.Code, j.Stage),
		Stage:       j.Stage,
	})
	j.FailureDetails = &FailureDetails{
		Stage:            j.Stage,
		Code:             se.Code,
		Message:          se.Message,
		SuggestedActions: SuggestedActions(se.Code, j.Stage),
		FailedAt:         now,
	}
}

// MarkCancelled sets the cancelled terminal state.
func (j *Job) MarkCancelled() {
	if j.State.IsTerminal() {
		return
	}
	now := time.Now()
	j.State = StateCancelled
	j.FinishedAt = &now
	j.ETARemaining = nil
	j.Errors = append(j.Errors, JobError{
		Code:    ErrCodeCancelled,
		Message: "job cancelled",
		Stage:   j.Stage,
	})
}

// FinalVideo returns the final-video artifact, if recorded.
func (j *Job) FinalVideo() (Artifact, bool) {
	for _, a := range j.Artifacts {
		if a.Type == ArtifactFinalVideo {
			return a, true
		}
	}
	return Artifact{}, false
}

// NewGenerationJob creates a queued generation job.
func NewGenerationJob(correlationID string, inputs JobInputs) *Job {
	return &Job{
		ID:            NewULID(),
		CorrelationID: correlationID,
		Type:          JobTypeGeneration,
		State:         StateQueued,
		Stage:         StageScript,
		CreatedAt:     time.Now(),
		Inputs:        inputs,
	}
}

// NewExportJob creates a queued export job.
func NewExportJob(correlationID string, req ExportRequest) *Job {
	return &Job{
		ID:            NewULID(),
		CorrelationID: correlationID,
		Type:          JobTypeExport,
		State:         StateQueued,
		Stage:         StageExport,
		CreatedAt:     time.Now(),
		Export:        &req,
	}
}
