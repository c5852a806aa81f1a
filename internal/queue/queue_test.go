package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralabs/aura/internal/artifacts"
	"github.com/auralabs/aura/internal/config"
	"github.com/auralabs/aura/internal/models"
	"github.com/auralabs/aura/internal/pipeline"
	"github.com/auralabs/aura/internal/providers"
	"github.com/auralabs/aura/internal/runner"
	"github.com/auralabs/aura/internal/validate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// okAdmitter accepts everything; rejectAdmitter rejects everything.
type okAdmitter struct{}

func (okAdmitter) Check(context.Context, models.Brief, models.PlanSpec) validate.Result {
	return validate.Result{OK: true}
}

type rejectAdmitter struct{}

func (rejectAdmitter) Check(context.Context, models.Brief, models.PlanSpec) validate.Result {
	return validate.Result{Issues: []validate.Issue{{
		Severity: validate.SeverityError,
		Code:     models.ErrCodeValidation,
		Message:  "topic too short",
	}}}
}

type stubStage struct {
	name    models.Stage
	execute func(ctx context.Context, st *pipeline.State, progress pipeline.ProgressFunc) ([]models.Artifact, error)
}

func (s *stubStage) Name() models.Stage            { return s.name }
func (s *stubStage) Capability() models.Capability { return "" }
func (s *stubStage) Execute(ctx context.Context, st *pipeline.State, progress pipeline.ProgressFunc) ([]models.Artifact, error) {
	if s.execute == nil {
		return nil, nil
	}
	return s.execute(ctx, st, progress)
}

func testJobsConfig() config.JobsConfig {
	return config.JobsConfig{
		Workers:          2,
		RetentionPerType: 50,
		RetryAttempts:    0,
		RetryBaseDelay:   time.Millisecond,
		Heartbeat:        time.Minute,
		Timeouts: config.StageTimeouts{
			Script:       time.Minute,
			Narration:    time.Minute,
			VisualsImage: time.Minute,
			VisualsTotal: time.Minute,
			Render:       time.Minute,
		},
	}
}

func newTestQueue(t *testing.T, admitter Admitter, stages []pipeline.Stage) *Queue {
	t.Helper()
	store, err := artifacts.NewStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	resolver := providers.NewResolver(providers.NewRegistry())
	r := runner.New(resolver, store, testJobsConfig(), false, testLogger(), stages, &stubStage{name: models.StageExport})

	q := New(testJobsConfig(), admitter, resolver, false, r, testLogger())
	q.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q.Stop(ctx)
	})
	return q
}

func validInputs() models.JobInputs {
	return models.JobInputs{
		Brief: models.Brief{Topic: "the water cycle", Aspect: models.AspectLandscape},
		Plan:  models.PlanSpec{TargetDuration: 30 * time.Second},
		Tier:  models.TierFree,
	}
}

func waitTerminal(t *testing.T, q *Queue, id models.ULID) *models.Job {
	t.Helper()
	var snap *models.Job
	require.Eventually(t, func() bool {
		var err error
		snap, err = q.Get(id)
		return err == nil && snap.State.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)
	return snap
}

func TestSubmitAndRunToCompletion(t *testing.T) {
	stage := &stubStage{name: models.StageScript, execute: func(_ context.Context, st *pipeline.State, progress pipeline.ProgressFunc) ([]models.Artifact, error) {
		progress(100, 0)
		return []models.Artifact{{Type: models.ArtifactScript, Path: "script.txt"}}, nil
	}}
	q := newTestQueue(t, okAdmitter{}, []pipeline.Stage{stage})

	job, err := q.SubmitGeneration(context.Background(), "corr", validInputs())
	require.NoError(t, err)
	assert.Equal(t, models.StateQueued, job.State)

	snap := waitTerminal(t, q, job.ID)
	assert.Equal(t, models.StateSucceeded, snap.State)
	assert.Len(t, snap.Artifacts, 1)
}

func TestSubmitRejectedByPreflight(t *testing.T) {
	q := newTestQueue(t, rejectAdmitter{}, nil)

	_, err := q.SubmitGeneration(context.Background(), "corr", validInputs())

	var admission *AdmissionError
	require.ErrorAs(t, err, &admission)
	assert.Equal(t, "topic too short", admission.Result.Issues[0].Message)

	// Rejection creates no job.
	assert.Empty(t, q.List())
}

func TestSubmitUnknownTier(t *testing.T) {
	q := newTestQueue(t, okAdmitter{}, nil)

	inputs := validInputs()
	inputs.Tier = "platinum"
	_, err := q.SubmitGeneration(context.Background(), "corr", inputs)

	var admission *AdmissionError
	require.ErrorAs(t, err, &admission)
	assert.Empty(t, q.List())
}

func TestSubmitProTierRejectedOffline(t *testing.T) {
	store, err := artifacts.NewStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	registry := providers.NewRegistry()
	registry.RegisterLLM(providers.NewRuleBasedLLM())
	registry.RegisterTTS(providers.NewNullTTS())
	registry.RegisterVisuals(providers.NewSlideshowVisuals())
	resolver := providers.NewResolver(registry)

	r := runner.New(resolver, store, testJobsConfig(), true, testLogger(), nil, &stubStage{name: models.StageExport})
	q := New(testJobsConfig(), okAdmitter{}, resolver, true, r, testLogger())

	inputs := validInputs()
	inputs.Tier = models.TierPro
	_, err = q.SubmitGeneration(context.Background(), "corr", inputs)

	var admission *AdmissionError
	require.ErrorAs(t, err, &admission)
	require.NotEmpty(t, admission.Result.Issues)
	assert.Equal(t, models.ErrCodeConfigConflict, admission.Result.Issues[0].Code)

	// Rejection happens at admission: no job exists to poll or cancel.
	assert.Empty(t, q.List())

	// The free tier still admits offline.
	free := validInputs()
	_, err = q.SubmitGeneration(context.Background(), "corr", free)
	assert.NoError(t, err)
}

func TestSubmitExportValidation(t *testing.T) {
	q := newTestQueue(t, okAdmitter{}, nil)

	for name, req := range map[string]models.ExportRequest{
		"unknown preset": {InputFile: "in.mp4", Preset: "betamax"},
		"no input":       {Preset: "tiktok"},
		"both inputs":    {InputFile: "in.mp4", Timeline: &models.Timeline{Scenes: []models.TimelineScene{{}}}, Preset: "tiktok"},
		"empty timeline": {Timeline: &models.Timeline{}, Preset: "tiktok"},
	} {
		_, err := q.SubmitExport(context.Background(), "corr", req)
		var admission *AdmissionError
		assert.ErrorAs(t, err, &admission, name)
	}

	job, err := q.SubmitExport(context.Background(), "corr", models.ExportRequest{InputFile: "in.mp4", Preset: "tiktok"})
	require.NoError(t, err)
	waitTerminal(t, q, job.ID)
}

func TestCancelRunningJob(t *testing.T) {
	started := make(chan struct{})
	stage := &stubStage{name: models.StageScript, execute: func(ctx context.Context, _ *pipeline.State, _ pipeline.ProgressFunc) ([]models.Artifact, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	q := newTestQueue(t, okAdmitter{}, []pipeline.Stage{stage})

	job, err := q.SubmitGeneration(context.Background(), "corr", validInputs())
	require.NoError(t, err)

	<-started
	require.NoError(t, q.Cancel(job.ID))

	snap := waitTerminal(t, q, job.ID)
	assert.Equal(t, models.StateCancelled, snap.State)
}

func TestCancelUnknownJob(t *testing.T) {
	q := newTestQueue(t, okAdmitter{}, nil)
	err := q.Cancel(models.NewULID())
	assert.True(t, errors.Is(err, models.ErrJobNotFound))
}

func TestCancelTerminalJobIsNoop(t *testing.T) {
	q := newTestQueue(t, okAdmitter{}, []pipeline.Stage{&stubStage{name: models.StageScript}})

	job, err := q.SubmitGeneration(context.Background(), "corr", validInputs())
	require.NoError(t, err)
	waitTerminal(t, q, job.ID)

	require.NoError(t, q.Cancel(job.ID))
	snap, err := q.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateSucceeded, snap.State)
}

func TestRetryFailedJob(t *testing.T) {
	stage := &stubStage{name: models.StageScript, execute: func(context.Context, *pipeline.State, pipeline.ProgressFunc) ([]models.Artifact, error) {
		return nil, models.NewStageError(models.ErrCodeProviderCall, "upstream down", nil)
	}}
	q := newTestQueue(t, okAdmitter{}, []pipeline.Stage{stage})

	job, err := q.SubmitGeneration(context.Background(), "corr-retry", validInputs())
	require.NoError(t, err)
	snap := waitTerminal(t, q, job.ID)
	require.Equal(t, models.StateFailed, snap.State)

	fresh, err := q.Retry(job.ID)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, fresh.ID)
	assert.NotEqual(t, "corr-retry", fresh.CorrelationID)
	assert.NotEmpty(t, fresh.CorrelationID)
	assert.Equal(t, job.Inputs.Brief.Topic, fresh.Inputs.Brief.Topic)
}

func TestRetryNonFailedJobRejected(t *testing.T) {
	q := newTestQueue(t, okAdmitter{}, []pipeline.Stage{&stubStage{name: models.StageScript}})

	job, err := q.SubmitGeneration(context.Background(), "corr", validInputs())
	require.NoError(t, err)
	waitTerminal(t, q, job.ID)

	_, err = q.Retry(job.ID)
	var admission *AdmissionError
	assert.ErrorAs(t, err, &admission)
}

func TestRetentionEvictsOldestTerminal(t *testing.T) {
	store, err := artifacts.NewStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	resolver := providers.NewResolver(providers.NewRegistry())

	cfg := testJobsConfig()
	cfg.RetentionPerType = 3
	r := runner.New(resolver, store, cfg, false, testLogger(),
		[]pipeline.Stage{&stubStage{name: models.StageScript}}, &stubStage{name: models.StageExport})

	q := New(cfg, okAdmitter{}, resolver, false, r, testLogger())
	q.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q.Stop(ctx)
	})

	var ids []models.ULID
	for i := 0; i < 6; i++ {
		job, err := q.SubmitGeneration(context.Background(), fmt.Sprintf("corr-%d", i), validInputs())
		require.NoError(t, err)
		waitTerminal(t, q, job.ID)
		ids = append(ids, job.ID)
	}

	assert.LessOrEqual(t, len(q.List()), 3)

	// The newest job always survives.
	_, err = q.Get(ids[len(ids)-1])
	assert.NoError(t, err)
}

func TestOnTerminalCallback(t *testing.T) {
	store, err := artifacts.NewStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	resolver := providers.NewResolver(providers.NewRegistry())
	r := runner.New(resolver, store, testJobsConfig(), false, testLogger(),
		[]pipeline.Stage{&stubStage{name: models.StageScript}}, &stubStage{name: models.StageExport})

	q := New(testJobsConfig(), okAdmitter{}, resolver, false, r, testLogger())

	archived := make(chan *models.Job, 1)
	q.OnTerminal(func(j *models.Job) { archived <- j })
	q.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q.Stop(ctx)
	})

	job, err := q.SubmitGeneration(context.Background(), "corr", validInputs())
	require.NoError(t, err)

	select {
	case j := <-archived:
		assert.Equal(t, job.ID, j.ID)
		assert.True(t, j.State.IsTerminal())
	case <-time.After(5 * time.Second):
		t.Fatal("terminal callback never fired")
	}
}

func TestStopRejectsNewAdmissions(t *testing.T) {
	q := newTestQueue(t, okAdmitter{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Stop(ctx)

	_, err := q.SubmitGeneration(context.Background(), "corr", validInputs())
	assert.True(t, errors.Is(err, ErrShuttingDown))
}

func TestStopInterruptsRunningJobs(t *testing.T) {
	started := make(chan struct{})
	stage := &stubStage{name: models.StageScript, execute: func(ctx context.Context, _ *pipeline.State, _ pipeline.ProgressFunc) ([]models.Artifact, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	q := newTestQueue(t, okAdmitter{}, []pipeline.Stage{stage})

	_, err := q.SubmitGeneration(context.Background(), "corr", validInputs())
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	interrupted := q.Stop(ctx)
	assert.Equal(t, 1, interrupted)
}
