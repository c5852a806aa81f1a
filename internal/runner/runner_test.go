package runner

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralabs/aura/internal/artifacts"
	"github.com/auralabs/aura/internal/config"
	"github.com/auralabs/aura/internal/models"
	"github.com/auralabs/aura/internal/pipeline"
	"github.com/auralabs/aura/internal/providers"
)

type testSink struct {
	mu  sync.Mutex
	job *models.Job
}

func (s *testSink) Update(fn func(*models.Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.job)
}

func (s *testSink) snapshot() *models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job.Snapshot()
}

type fakeStage struct {
	name       models.Stage
	capability models.Capability
	execute    func(ctx context.Context, st *pipeline.State, progress pipeline.ProgressFunc) ([]models.Artifact, error)
}

func (f *fakeStage) Name() models.Stage            { return f.name }
func (f *fakeStage) Capability() models.Capability { return f.capability }
func (f *fakeStage) Execute(ctx context.Context, st *pipeline.State, progress pipeline.ProgressFunc) ([]models.Artifact, error) {
	return f.execute(ctx, st, progress)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testJobsConfig() config.JobsConfig {
	return config.JobsConfig{
		RetryAttempts:  3,
		RetryBaseDelay: 5 * time.Millisecond,
		Heartbeat:      time.Minute,
		Timeouts: config.StageTimeouts{
			Script:       time.Minute,
			Narration:    time.Minute,
			VisualsImage: time.Minute,
			VisualsTotal: time.Minute,
			Render:       time.Minute,
		},
	}
}

func registryWithFallbacks() *providers.Registry {
	reg := providers.NewRegistry()
	reg.RegisterLLM(providers.NewRuleBasedLLM())
	reg.RegisterTTS(providers.NewNullTTS())
	reg.RegisterVisuals(providers.NewSlideshowVisuals())
	return reg
}

func newTestRunner(t *testing.T, offline bool, generation []pipeline.Stage, export pipeline.Stage) *Runner {
	t.Helper()
	store, err := artifacts.NewStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	resolver := providers.NewResolver(registryWithFallbacks())
	return New(resolver, store, testJobsConfig(), offline, testLogger(), generation, export)
}

func generationJob(tier models.Tier) *models.Job {
	return models.NewGenerationJob("corr-1", models.JobInputs{
		Brief: models.Brief{Topic: "the water cycle", Aspect: models.AspectLandscape},
		Plan:  models.PlanSpec{TargetDuration: 30 * time.Second},
		Tier:  tier,
	})
}

func TestRunExecutesStagesInOrder(t *testing.T) {
	var order []models.Stage
	mkStage := func(name models.Stage, cap models.Capability) *fakeStage {
		return &fakeStage{
			name:       name,
			capability: cap,
			execute: func(_ context.Context, st *pipeline.State, progress pipeline.ProgressFunc) ([]models.Artifact, error) {
				order = append(order, name)
				progress(100, 0)
				return []models.Artifact{{Type: models.ArtifactScript, Path: string(name) + ".out"}}, nil
			},
		}
	}

	gen := []pipeline.Stage{
		mkStage(models.StageScript, models.CapabilityLLM),
		mkStage(models.StageNarration, models.CapabilityTTS),
	}
	r := newTestRunner(t, false, gen, nil)

	sink := &testSink{job: generationJob(models.TierFree)}
	r.Run(context.Background(), sink.snapshot(), sink)

	assert.Equal(t, []models.Stage{models.StageScript, models.StageNarration}, order)

	job := sink.snapshot()
	assert.Equal(t, models.StateSucceeded, job.State)
	assert.Equal(t, models.StageComplete, job.Stage)
	assert.Equal(t, float64(100), job.Percent)
	assert.Len(t, job.Artifacts, 2)

	// One decision per provider-backed stage, in execution order.
	require.Len(t, job.Decisions, 2)
	assert.Equal(t, models.StageScript, job.Decisions[0].Stage)
	assert.Equal(t, providers.NameRuleBased, job.Decisions[0].ProviderName)
	assert.Equal(t, models.StageNarration, job.Decisions[1].Stage)
	assert.Equal(t, providers.NameNull, job.Decisions[1].ProviderName)
}

func TestRunRetriesTransientFailures(t *testing.T) {
	attempts := 0
	stage := &fakeStage{
		name:       models.StageScript,
		capability: models.CapabilityLLM,
		execute: func(context.Context, *pipeline.State, pipeline.ProgressFunc) ([]models.Artifact, error) {
			attempts++
			if attempts < 3 {
				return nil, &models.StageError{
					Code:      models.ErrCodeProviderCall,
					Message:   "flaky upstream",
					Transient: true,
				}
			}
			return nil, nil
		},
	}
	r := newTestRunner(t, false, []pipeline.Stage{stage}, nil)

	sink := &testSink{job: generationJob(models.TierFree)}
	r.Run(context.Background(), sink.snapshot(), sink)

	assert.Equal(t, 3, attempts)
	assert.Equal(t, models.StateSucceeded, sink.snapshot().State)
}

func TestRunDoesNotRetryPermanentFailures(t *testing.T) {
	attempts := 0
	stage := &fakeStage{
		name:       models.StageScript,
		capability: models.CapabilityLLM,
		execute: func(context.Context, *pipeline.State, pipeline.ProgressFunc) ([]models.Artifact, error) {
			attempts++
			return nil, models.NewStageError(models.ErrCodeValidation, "bad input", nil)
		},
	}
	r := newTestRunner(t, false, []pipeline.Stage{stage}, nil)

	sink := &testSink{job: generationJob(models.TierFree)}
	r.Run(context.Background(), sink.snapshot(), sink)

	assert.Equal(t, 1, attempts)
	job := sink.snapshot()
	assert.Equal(t, models.StateFailed, job.State)
	require.NotNil(t, job.FailureDetails)
	assert.Equal(t, models.ErrCodeValidation, job.FailureDetails.Code)
}

func TestRunEncoderExitRetriesOnlyInitFailures(t *testing.T) {
	tests := []struct {
		name      string
		transient bool
		attempts  int
	}{
		// An encoder that dies before producing anything may just have hit
		// a bad startup; one that crashed mid-encode will crash again.
		{"init failure", true, 4},
		{"mid-encode crash", false, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			attempts := 0
			stage := &fakeStage{
				name: models.StageTimelineRender,
				execute: func(context.Context, *pipeline.State, pipeline.ProgressFunc) ([]models.Artifact, error) {
					attempts++
					return nil, &models.StageError{
						Code:      models.ErrCodeSubprocessExit,
						Message:   "encoder exited with code 1",
						Transient: tc.transient,
					}
				},
			}
			r := newTestRunner(t, false, []pipeline.Stage{stage}, nil)

			sink := &testSink{job: generationJob(models.TierFree)}
			r.Run(context.Background(), sink.snapshot(), sink)

			assert.Equal(t, tc.attempts, attempts)
			job := sink.snapshot()
			assert.Equal(t, models.StateFailed, job.State)
			require.NotNil(t, job.FailureDetails)
			assert.Equal(t, models.ErrCodeSubprocessExit, job.FailureDetails.Code)
		})
	}
}

func TestRunExhaustsRetriesThenFails(t *testing.T) {
	attempts := 0
	stage := &fakeStage{
		name:       models.StageScript,
		capability: models.CapabilityLLM,
		execute: func(context.Context, *pipeline.State, pipeline.ProgressFunc) ([]models.Artifact, error) {
			attempts++
			return nil, &models.StageError{Code: models.ErrCodeProviderCall, Message: "down", Transient: true}
		},
	}
	r := newTestRunner(t, false, []pipeline.Stage{stage}, nil)

	sink := &testSink{job: generationJob(models.TierFree)}
	r.Run(context.Background(), sink.snapshot(), sink)

	// Initial attempt plus three retries.
	assert.Equal(t, 4, attempts)
	assert.Equal(t, models.StateFailed, sink.snapshot().State)
}

func TestRunProOfflineIsConfigConflict(t *testing.T) {
	stage := &fakeStage{
		name:       models.StageScript,
		capability: models.CapabilityLLM,
		execute: func(context.Context, *pipeline.State, pipeline.ProgressFunc) ([]models.Artifact, error) {
			t.Fatal("stage must not execute when resolution yields None")
			return nil, nil
		},
	}
	r := newTestRunner(t, true, []pipeline.Stage{stage}, nil)

	sink := &testSink{job: generationJob(models.TierPro)}
	r.Run(context.Background(), sink.snapshot(), sink)

	job := sink.snapshot()
	assert.Equal(t, models.StateFailed, job.State)
	require.NotNil(t, job.FailureDetails)
	assert.Equal(t, models.ErrCodeConfigConflict, job.FailureDetails.Code)
}

func TestRunCancellation(t *testing.T) {
	started := make(chan struct{})
	stage := &fakeStage{
		name:       models.StageScript,
		capability: models.CapabilityLLM,
		execute: func(ctx context.Context, _ *pipeline.State, _ pipeline.ProgressFunc) ([]models.Artifact, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	r := newTestRunner(t, false, []pipeline.Stage{stage}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sink := &testSink{job: generationJob(models.TierFree)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx, sink.snapshot(), sink)
	}()

	<-started
	cancel()
	<-done

	assert.Equal(t, models.StateCancelled, sink.snapshot().State)
}

func TestRunExportJobUsesExportStage(t *testing.T) {
	ran := false
	export := &fakeStage{
		name: models.StageExport,
		execute: func(context.Context, *pipeline.State, pipeline.ProgressFunc) ([]models.Artifact, error) {
			ran = true
			return []models.Artifact{{Type: models.ArtifactFinalVideo, Path: "final.mp4"}}, nil
		},
	}
	r := newTestRunner(t, false, nil, export)

	job := models.NewExportJob("corr-2", models.ExportRequest{InputFile: "in.mp4", Preset: "tiktok"})
	sink := &testSink{job: job}
	r.Run(context.Background(), sink.snapshot(), sink)

	assert.True(t, ran)
	snap := sink.snapshot()
	assert.Equal(t, models.StateSucceeded, snap.State)
	assert.Empty(t, snap.Decisions)
	_, ok := snap.FinalVideo()
	assert.True(t, ok)
}

func TestStageTimeoutMapping(t *testing.T) {
	r := newTestRunner(t, false, nil, nil)
	r.cfg.Timeouts = config.StageTimeouts{
		Script:       15 * time.Minute,
		Narration:    10 * time.Minute,
		VisualsTotal: 20 * time.Minute,
		Render:       30 * time.Minute,
	}

	assert.Equal(t, 15*time.Minute, r.stageTimeout(models.StageScript))
	assert.Equal(t, 10*time.Minute, r.stageTimeout(models.StageNarration))
	assert.Equal(t, 20*time.Minute, r.stageTimeout(models.StageVisuals))
	assert.Equal(t, 30*time.Minute, r.stageTimeout(models.StageTimelineRender))
	assert.Equal(t, 30*time.Minute, r.stageTimeout(models.StageExport))
}
