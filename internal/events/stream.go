// Package events streams job progress over Server-Sent Events. The streamer
// polls job snapshots and emits an event per observed change, so consumers
// see state transitions without the queue needing a pub/sub layer.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/auralabs/aura/internal/models"
)

// Event type names on the wire.
const (
	EventJobStatus    = "job-status"
	EventStepStatus   = "step-status"
	EventStepProgress = "step-progress"
	EventJobCompleted = "job-completed"
	EventJobFailed    = "job-failed"
	EventError        = "error"
)

// defaultPollInterval is how often the streamer diffs the job snapshot.
const defaultPollInterval = time.Second

// defaultKeepAlive bounds client silence: a quiet stream re-emits the
// current progress so proxies and clients know the connection is live.
const defaultKeepAlive = 30 * time.Second

// JobSource provides job snapshots. The queue implements it.
type JobSource interface {
	Get(id models.ULID) (*models.Job, error)
}

// Streamer writes SSE streams for job progress.
type Streamer struct {
	source    JobSource
	interval  time.Duration
	keepAlive time.Duration
	logger    *slog.Logger
}

// NewStreamer creates a streamer polling at the default one-second interval.
func NewStreamer(source JobSource, logger *slog.Logger) *Streamer {
	return &Streamer{
		source:    source,
		interval:  defaultPollInterval,
		keepAlive: defaultKeepAlive,
		logger:    logger,
	}
}

// WithInterval overrides the poll interval. Used by tests.
func (s *Streamer) WithInterval(d time.Duration) *Streamer {
	s.interval = d
	return s
}

// WithKeepAlive overrides the keep-alive interval. Used by tests.
func (s *Streamer) WithKeepAlive(d time.Duration) *Streamer {
	s.keepAlive = d
	return s
}

type statusPayload struct {
	JobID         string          `json:"job_id"`
	CorrelationID string          `json:"correlation_id"`
	State         models.JobState `json:"state"`
	Stage         models.Stage    `json:"stage"`
	Percent       float64         `json:"percent"`
}

type progressPayload struct {
	JobID         string       `json:"job_id"`
	CorrelationID string       `json:"correlation_id"`
	Stage         models.Stage `json:"stage"`
	Percent       float64      `json:"percent"`
	ETARemaining  string       `json:"eta_remaining,omitempty"`
}

type completedPayload struct {
	JobID         string            `json:"job_id"`
	CorrelationID string            `json:"correlation_id"`
	State         models.JobState   `json:"state"`
	Artifacts     []models.Artifact `json:"artifacts,omitempty"`
}

type failedPayload struct {
	JobID          string                 `json:"job_id"`
	CorrelationID  string                 `json:"correlation_id"`
	State          models.JobState        `json:"state"`
	FailureDetails *models.FailureDetails `json:"failure_details,omitempty"`
}

type errorPayload struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	Message       string `json:"message"`
}

// StreamJob writes the job's event stream until the job reaches a terminal
// state or the client disconnects. The response must not be buffered.
func (s *Streamer) StreamJob(w http.ResponseWriter, r *http.Request, id models.ULID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	job, err := s.source.Get(id)
	if err != nil {
		s.writeEvent(w, flusher, EventError, errorPayload{Message: jobLookupMessage(id, err)})
		return
	}

	// Initial full status so late subscribers start from a known state.
	s.writeEvent(w, flusher, EventJobStatus, statusOf(job))
	if job.State.IsTerminal() {
		s.writeTerminal(w, flusher, job)
		return
	}
	prev := job
	lastEvent := time.Now()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		job, err := s.source.Get(id)
		if err != nil {
			s.writeEvent(w, flusher, EventError, errorPayload{
				CorrelationID: prev.CorrelationID,
				Message:       jobLookupMessage(id, err),
			})
			return
		}

		wrote := false
		if job.State != prev.State {
			s.writeEvent(w, flusher, EventJobStatus, statusOf(job))
			wrote = true
		}
		if job.Stage != prev.Stage {
			s.writeEvent(w, flusher, EventStepStatus, statusOf(job))
			wrote = true
		}
		if job.Percent != prev.Percent {
			s.writeEvent(w, flusher, EventStepProgress, progressOf(job))
			wrote = true
		}

		if job.State.IsTerminal() {
			s.writeTerminal(w, flusher, job)
			return
		}

		// Long stages can go quiet for minutes; re-emit current progress
		// so the client sees a live connection.
		if !wrote && time.Since(lastEvent) >= s.keepAlive {
			s.writeEvent(w, flusher, EventStepProgress, progressOf(job))
			wrote = true
		}
		if wrote {
			lastEvent = time.Now()
		}
		prev = job
	}
}

// writeTerminal emits the closing event for a finished job.
func (s *Streamer) writeTerminal(w http.ResponseWriter, flusher http.Flusher, job *models.Job) {
	switch job.State {
	case models.StateSucceeded:
		s.writeEvent(w, flusher, EventJobCompleted, completedPayload{
			JobID:         job.ID.String(),
			CorrelationID: job.CorrelationID,
			State:         job.State,
			Artifacts:     job.Artifacts,
		})
	case models.StateFailed:
		s.writeEvent(w, flusher, EventJobFailed, failedPayload{
			JobID:          job.ID.String(),
			CorrelationID:  job.CorrelationID,
			State:          job.State,
			FailureDetails: job.FailureDetails,
		})
	case models.StateCancelled:
		s.writeEvent(w, flusher, EventJobCompleted, completedPayload{
			JobID:         job.ID.String(),
			CorrelationID: job.CorrelationID,
			State:         job.State,
		})
	}
}

// writeEvent emits one SSE frame: event type line, data line, blank line.
func (s *Streamer) writeEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshaling event payload", slog.String("error", err.Error()))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	flusher.Flush()
}

func statusOf(job *models.Job) statusPayload {
	return statusPayload{
		JobID:         job.ID.String(),
		CorrelationID: job.CorrelationID,
		State:         job.State,
		Stage:         job.Stage,
		Percent:       job.Percent,
	}
}

func progressOf(job *models.Job) progressPayload {
	p := progressPayload{
		JobID:         job.ID.String(),
		CorrelationID: job.CorrelationID,
		Stage:         job.Stage,
		Percent:       job.Percent,
	}
	if job.ETARemaining != nil {
		p.ETARemaining = job.ETARemaining.Round(time.Second).String()
	}
	return p
}

func jobLookupMessage(id models.ULID, err error) string {
	if errors.Is(err, models.ErrJobNotFound) {
		return fmt.Sprintf("job %s not found", id)
	}
	return err.Error()
}
