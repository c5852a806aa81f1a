// Package queue owns the job table: FIFO admission, the worker pool, state
// snapshots, cancellation, retry, and terminal-job retention.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auralabs/aura/internal/config"
	"github.com/auralabs/aura/internal/encoder"
	"github.com/auralabs/aura/internal/models"
	"github.com/auralabs/aura/internal/providers"
	"github.com/auralabs/aura/internal/runner"
	"github.com/auralabs/aura/internal/validate"
)

// pendingBuffer bounds how many admitted jobs can wait for a worker.
const pendingBuffer = 256

// ErrShuttingDown rejects admissions during graceful shutdown.
var ErrShuttingDown = errors.New("server is shutting down")

// Admitter runs the synchronous preflight checks before a job is created.
type Admitter interface {
	Check(ctx context.Context, brief models.Brief, plan models.PlanSpec) validate.Result
}

// AdmissionError carries the preflight issues behind a rejected submission.
type AdmissionError struct {
	Result validate.Result
}

func (e *AdmissionError) Error() string {
	if len(e.Result.Issues) > 0 {
		return e.Result.Issues[0].Message
	}
	return "request rejected by preflight checks"
}

// Queue is the job table and worker pool.
type Queue struct {
	cfg       config.JobsConfig
	validator Admitter
	resolver  *providers.Resolver
	offline   bool
	runner    *runner.Runner
	logger    *slog.Logger

	// archive, when set, receives every job that reaches a terminal state
	// before retention may evict it.
	archive func(*models.Job)

	mu      sync.RWMutex
	jobs    map[models.ULID]*models.Job
	cancels map[models.ULID]context.CancelFunc
	closed  bool

	pending chan models.ULID
	wg      sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New creates a stopped queue. Call Start to launch the workers. The
// resolver and offline flag let admission reject tier requests no provider
// chain can ever satisfy.
func New(cfg config.JobsConfig, validator Admitter, resolver *providers.Resolver, offline bool, r *runner.Runner, logger *slog.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		cfg:        cfg,
		validator:  validator,
		resolver:   resolver,
		offline:    offline,
		runner:     r,
		logger:     logger,
		jobs:       make(map[models.ULID]*models.Job),
		cancels:    make(map[models.ULID]context.CancelFunc),
		pending:    make(chan models.ULID, pendingBuffer),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// OnTerminal registers a callback invoked with a snapshot of every job that
// reaches a terminal state. Must be called before Start.
func (q *Queue) OnTerminal(fn func(*models.Job)) {
	q.archive = fn
}

// Start launches the worker pool.
func (q *Queue) Start() {
	workers := q.cfg.WorkerCount()
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.logger.Info("job queue started", slog.Int("workers", workers))
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.baseCtx.Done():
			return
		case id := <-q.pending:
			q.execute(id)
		}
	}
}

func (q *Queue) execute(id models.ULID) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.State != models.StateQueued {
		// Cancelled while waiting in the pending channel.
		q.mu.Unlock()
		return
	}
	jobCtx, cancel := context.WithCancel(q.baseCtx)
	q.cancels[id] = cancel
	snapshot := job.Snapshot()
	q.mu.Unlock()

	defer func() {
		cancel()
		q.mu.Lock()
		delete(q.cancels, id)
		q.mu.Unlock()
	}()

	q.runner.Run(jobCtx, snapshot, &jobSink{q: q, id: id})
	q.finalize(id)
}

// finalize runs the terminal hooks: archive callback and retention.
func (q *Queue) finalize(id models.ULID) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	var snap *models.Job
	if ok && job.State.IsTerminal() {
		snap = job.Snapshot()
	}
	evicted := q.applyRetentionLocked()
	q.mu.Unlock()

	if snap != nil && q.archive != nil {
		q.archive(snap)
	}
	for _, e := range evicted {
		q.logger.Debug("evicted terminal job from memory", slog.String("job_id", e.String()))
	}
}

// applyRetentionLocked evicts the oldest terminal jobs beyond the per-type
// cap. Caller holds the write lock.
func (q *Queue) applyRetentionLocked() []models.ULID {
	limit := q.cfg.RetentionPerType
	if limit < 1 {
		return nil
	}

	byType := make(map[models.JobType][]*models.Job)
	for _, j := range q.jobs {
		if j.State.IsTerminal() {
			byType[j.Type] = append(byType[j.Type], j)
		}
	}

	var evicted []models.ULID
	for _, list := range byType {
		if len(list) <= limit {
			continue
		}
		sort.Slice(list, func(a, b int) bool {
			return finishedAt(list[a]).Before(finishedAt(list[b]))
		})
		for _, j := range list[:len(list)-limit] {
			delete(q.jobs, j.ID)
			evicted = append(evicted, j.ID)
		}
	}
	return evicted
}

// SubmitGeneration validates and admits a generation job. Validation runs
// before the job exists; a rejected request creates nothing.
func (q *Queue) SubmitGeneration(ctx context.Context, correlationID string, inputs models.JobInputs) (*models.Job, error) {
	if inputs.Tier != "" && !inputs.Tier.Valid() {
		return nil, &AdmissionError{Result: validate.Result{Issues: []validate.Issue{{
			Severity: validate.SeverityError,
			Code:     models.ErrCodeValidation,
			Message:  fmt.Sprintf("unknown tier %q", inputs.Tier),
		}}}}
	}
	if err := inputs.Voice.Validate(); err != nil {
		return nil, admissionError(err.Error())
	}

	result := q.validator.Check(ctx, inputs.Brief, inputs.Plan)
	if !result.OK {
		return nil, &AdmissionError{Result: result}
	}

	// In offline mode a pro tier resolves to an empty chain for every
	// capability. Reject here so no job is created for a request that can
	// never run.
	if q.offline && q.resolver != nil {
		for _, capability := range []models.Capability{
			models.CapabilityLLM, models.CapabilityTTS, models.CapabilityVisuals,
		} {
			decision := q.resolver.Resolve(providers.ResolveRequest{
				Capability:   capability,
				Tier:         inputs.TierOrDefault(),
				SpecificName: inputs.Provider,
				Offline:      true,
			})
			if decision.IsNone() {
				return nil, &AdmissionError{Result: validate.Result{Issues: []validate.Issue{{
					Severity: validate.SeverityError,
					Code:     models.ErrCodeConfigConflict,
					Message:  decision.Reason,
				}}}}
			}
		}
	}

	job := models.NewGenerationJob(correlationID, inputs)
	return q.enqueue(job)
}

// SubmitExport validates and admits an export job.
func (q *Queue) SubmitExport(_ context.Context, correlationID string, req models.ExportRequest) (*models.Job, error) {
	if _, err := encoder.LookupPreset(req.Preset); err != nil {
		return nil, admissionError(err.Error())
	}
	if (req.InputFile == "") == (req.Timeline == nil) {
		return nil, admissionError("exactly one of input_file and timeline is required")
	}
	if req.Timeline != nil && len(req.Timeline.Scenes) == 0 {
		return nil, admissionError("timeline has no scenes")
	}

	job := models.NewExportJob(correlationID, req)
	return q.enqueue(job)
}

func (q *Queue) enqueue(job *models.Job) (*models.Job, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrShuttingDown
	}
	q.jobs[job.ID] = job
	snap := job.Snapshot()
	q.mu.Unlock()

	select {
	case q.pending <- job.ID:
	default:
		q.mu.Lock()
		delete(q.jobs, job.ID)
		q.mu.Unlock()
		return nil, admissionError("job queue is full")
	}

	q.logger.Info("job admitted",
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", string(job.Type)),
	)
	return snap, nil
}

// Get returns a snapshot of the job.
func (q *Queue) Get(id models.ULID) (*models.Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	return job.Snapshot(), nil
}

// List returns snapshots of every known job, newest first.
func (q *Queue) List() []*models.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*models.Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.Snapshot())
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out
}

// Active returns snapshots of queued and running jobs, newest first.
func (q *Queue) Active() []*models.Job {
	all := q.List()
	out := all[:0]
	for _, j := range all {
		if !j.State.IsTerminal() {
			out = append(out, j)
		}
	}
	return out
}

// Cancel cancels a job. Queued jobs transition directly; running jobs get
// their context cancelled and transition when the runner observes it.
// Cancelling a terminal job is a no-op.
func (q *Queue) Cancel(id models.ULID) error {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return models.ErrJobNotFound
	}

	switch job.State {
	case models.StateQueued:
		job.MarkCancelled()
		q.mu.Unlock()
		q.finalize(id)
		return nil
	case models.StateRunning:
		cancel := q.cancels[id]
		q.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil
	}
	q.mu.Unlock()
	return nil
}

// Retry admits a fresh job with the same inputs as a failed one. The new
// job gets its own id and correlation id; the response ties them together.
func (q *Queue) Retry(id models.ULID) (*models.Job, error) {
	q.mu.RLock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.RUnlock()
		return nil, models.ErrJobNotFound
	}
	if job.State != models.StateFailed {
		q.mu.RUnlock()
		return nil, admissionError(fmt.Sprintf("only failed jobs can be retried; job is %s", job.State))
	}
	snap := job.Snapshot()
	q.mu.RUnlock()

	correlationID := uuid.New().String()
	var fresh *models.Job
	if snap.Type == models.JobTypeExport {
		fresh = models.NewExportJob(correlationID, *snap.Export)
	} else {
		fresh = models.NewGenerationJob(correlationID, snap.Inputs)
	}
	return q.enqueue(fresh)
}

// Stop drains the queue for shutdown: new admissions are rejected, queued
// jobs are cancelled, running jobs get their contexts cancelled, and the
// workers are awaited until ctx expires. Returns how many running jobs were
// interrupted.
func (q *Queue) Stop(ctx context.Context) int {
	q.mu.Lock()
	q.closed = true

	interrupted := 0
	for id, job := range q.jobs {
		switch job.State {
		case models.StateQueued:
			job.MarkCancelled()
		case models.StateRunning:
			if cancel := q.cancels[id]; cancel != nil {
				interrupted++
			}
		}
	}
	q.mu.Unlock()

	q.baseCancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		q.logger.Warn("shutdown deadline expired before workers drained")
	}

	return interrupted
}

// jobSink routes runner mutations through the queue lock.
type jobSink struct {
	q  *Queue
	id models.ULID
}

func (s *jobSink) Update(fn func(*models.Job)) {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()
	if job, ok := s.q.jobs[s.id]; ok {
		fn(job)
	}
}

func admissionError(msg string) *AdmissionError {
	return &AdmissionError{Result: validate.Result{Issues: []validate.Issue{{
		Severity: validate.SeverityError,
		Code:     models.ErrCodeValidation,
		Message:  msg,
	}}}}
}

func finishedAt(j *models.Job) time.Time {
	if j.FinishedAt != nil {
		return *j.FinishedAt
	}
	return j.CreatedAt
}
