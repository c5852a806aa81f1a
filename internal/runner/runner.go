// Package runner executes a job's stages in order: provider resolution,
// per-stage deadlines, bounded retries with backoff, heartbeat logging, and
// terminal state transitions.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/auralabs/aura/internal/artifacts"
	"github.com/auralabs/aura/internal/config"
	"github.com/auralabs/aura/internal/models"
	"github.com/auralabs/aura/internal/pipeline"
	"github.com/auralabs/aura/internal/providers"
)

// progressMinInterval rate-limits job record updates from high-frequency
// stage progress callbacks.
const progressMinInterval = 100 * time.Millisecond

// Sink receives job mutations. The queue implements it, serializing
// mutations under its lock so snapshots and event streams stay consistent.
type Sink interface {
	Update(fn func(*models.Job))
}

// Runner executes one job at a time per call. It is stateless across jobs
// and safe for concurrent use by the worker pool.
type Runner struct {
	resolver *providers.Resolver
	store    *artifacts.Store
	cfg      config.JobsConfig
	offline  bool
	logger   *slog.Logger

	generation []pipeline.Stage
	export     pipeline.Stage
}

// New creates a runner over the given stage implementations.
func New(
	resolver *providers.Resolver,
	store *artifacts.Store,
	cfg config.JobsConfig,
	offline bool,
	logger *slog.Logger,
	generation []pipeline.Stage,
	export pipeline.Stage,
) *Runner {
	return &Runner{
		resolver:   resolver,
		store:      store,
		cfg:        cfg,
		offline:    offline,
		logger:     logger,
		generation: generation,
		export:     export,
	}
}

// Run executes the job to a terminal state. ctx is the job's cancellation
// scope: the queue cancels it on explicit cancel and on shutdown. The job
// argument is a read-only snapshot; every mutation goes through the sink.
func (r *Runner) Run(ctx context.Context, job *models.Job, sink Sink) {
	log := r.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("correlation_id", job.CorrelationID),
		slog.String("job_type", string(job.Type)),
	)

	outDir, err := r.store.JobDir(job.ID)
	if err != nil {
		se := models.ClassifyError(err)
		sink.Update(func(j *models.Job) { j.MarkRunning(); j.MarkFailed(se) })
		log.Error("job directory unavailable", slog.String("error", err.Error()))
		return
	}

	st := &pipeline.State{
		JobID:         job.ID,
		CorrelationID: job.CorrelationID,
		WorkDir:       outDir,
		OutDir:        outDir,
		Inputs:        job.Inputs,
		Export:        job.Export,
		Tier:          job.Inputs.TierOrDefault(),
		SpecificName:  job.Inputs.Provider,
		Offline:       r.offline,
	}

	sink.Update(func(j *models.Job) { j.MarkRunning() })
	log.Info("job started")

	stages := r.generation
	if job.Type == models.JobTypeExport {
		stages = []pipeline.Stage{r.export}
	}

	for _, stage := range stages {
		sink.Update(func(j *models.Job) { j.AdvanceStage(stage.Name()) })

		if capability := stage.Capability(); capability != "" {
			decision := r.resolver.Resolve(providers.ResolveRequest{
				Capability:   capability,
				Stage:        stage.Name(),
				Tier:         st.Tier,
				SpecificName: st.SpecificName,
				Offline:      st.Offline,
			})
			st.Decision = decision
			sink.Update(func(j *models.Job) { j.Decisions = append(j.Decisions, decision) })
			log.Info("provider resolved",
				slog.String("stage", string(stage.Name())),
				slog.String("provider", decision.ProviderName),
				slog.Int("rank", decision.Rank),
				slog.Bool("fallback", decision.IsFallback),
			)

			if decision.IsNone() {
				se := models.NewStageError(models.ErrCodeConfigConflict, decision.Reason, nil)
				sink.Update(func(j *models.Job) { j.MarkFailed(se) })
				log.Warn("job failed on provider resolution", slog.String("reason", decision.Reason))
				return
			}
		}

		arts, err := r.runStage(ctx, stage, st, sink, log)
		if err != nil {
			r.finishWithError(ctx, err, sink, log, stage.Name())
			return
		}

		for _, a := range arts {
			a.CreatedAt = time.Now()
			if err := r.store.Add(job.ID, a); err != nil {
				log.Warn("recording artifact", slog.String("error", err.Error()))
			}
			artifact := a
			sink.Update(func(j *models.Job) { j.Artifacts = append(j.Artifacts, artifact) })
		}
		sink.Update(func(j *models.Job) { j.SetPercent(100) })
	}

	var final *models.Job
	sink.Update(func(j *models.Job) {
		j.MarkSucceeded()
		final = j.Snapshot()
	})
	if final != nil {
		if err := r.store.RecordCompleted(final); err != nil {
			log.Warn("recording completion", slog.String("error", err.Error()))
		}
	}
	log.Info("job succeeded")
}

// runStage executes one stage with its deadline, retrying retryable
// failures with exponential backoff. Backoff waits respect the job context.
func (r *Runner) runStage(ctx context.Context, stage pipeline.Stage, st *pipeline.State, sink Sink, log *slog.Logger) ([]models.Artifact, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		arts, err := r.runAttempt(ctx, stage, st, sink, log)
		if err == nil {
			return arts, nil
		}
		lastErr = err

		se := models.ClassifyError(err)
		retryable := se.Code.Retryable()
		switch se.Code {
		case models.ErrCodeProviderCall, models.ErrCodeSubprocessExit:
			// Only transient flavours of these retry: provider 5xx/timeouts
			// and encoder init failures. A mid-encode crash repeats.
			if !se.Transient {
				retryable = false
			}
		}
		if !retryable || attempt >= r.cfg.RetryAttempts || ctx.Err() != nil {
			return nil, lastErr
		}

		delay := r.cfg.RetryBaseDelay << attempt
		log.Warn("stage failed, retrying",
			slog.String("stage", string(stage.Name())),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// runAttempt runs a single stage execution under the stage deadline, with
// heartbeat logging and coalesced progress updates.
func (r *Runner) runAttempt(ctx context.Context, stage pipeline.Stage, st *pipeline.State, sink Sink, log *slog.Logger) ([]models.Artifact, error) {
	stageCtx, cancel := context.WithTimeout(ctx, r.stageTimeout(stage.Name()))
	defer cancel()

	start := time.Now()

	var mu sync.Mutex
	var lastUpdate time.Time
	var lastPercent float64

	progress := func(pct float64, eta time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		if pct < 100 && now.Sub(lastUpdate) < progressMinInterval && pct < lastPercent+1 {
			return
		}
		lastUpdate = now
		lastPercent = pct
		sink.Update(func(j *models.Job) {
			j.SetPercent(pct)
			if eta > 0 {
				e := eta
				j.ETARemaining = &e
			}
		})
	}

	heartbeatDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.cfg.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatDone:
				return
			case <-stageCtx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				pct := lastPercent
				mu.Unlock()
				log.Info("stage heartbeat",
					slog.String("stage", string(stage.Name())),
					slog.Duration("elapsed", time.Since(start).Round(time.Second)),
					slog.Float64("percent", pct),
				)
			}
		}
	}()
	defer close(heartbeatDone)

	return stage.Execute(stageCtx, st, progress)
}

// finishWithError classifies the failure and applies the terminal state.
// Explicit cancellation and shutdown land in Cancelled, not Failed.
func (r *Runner) finishWithError(ctx context.Context, err error, sink Sink, log *slog.Logger, stage models.Stage) {
	se := models.ClassifyError(err)

	cancelled := se.Code == models.ErrCodeCancelled ||
		errors.Is(err, models.ErrCancelled) ||
		(ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled))

	if cancelled {
		sink.Update(func(j *models.Job) { j.MarkCancelled() })
		log.Info("job cancelled", slog.String("stage", string(stage)))
		return
	}

	sink.Update(func(j *models.Job) { j.MarkFailed(se) })
	log.Error("job failed",
		slog.String("stage", string(stage)),
		slog.String("code", string(se.Code)),
		slog.String("error", se.Message),
	)
}

// stageTimeout maps a stage onto its configured deadline.
func (r *Runner) stageTimeout(stage models.Stage) time.Duration {
	t := r.cfg.Timeouts
	switch stage {
	case models.StageScript:
		return t.Script
	case models.StageNarration:
		return t.Narration
	case models.StageVisuals:
		return t.VisualsTotal
	case models.StageTimelineRender:
		return t.Render
	case models.StageExport:
		return t.Render
	}
	return t.Render
}
