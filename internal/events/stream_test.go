package events

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralabs/aura/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memSource serves snapshots of a single mutable job.
type memSource struct {
	mu  sync.Mutex
	job *models.Job
}

func (m *memSource) Get(id models.ULID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job == nil || m.job.ID != id {
		return nil, models.ErrJobNotFound
	}
	return m.job.Snapshot(), nil
}

func (m *memSource) update(fn func(*models.Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.job)
}

type frame struct {
	event string
	data  string
}

func parseFrames(body string) []frame {
	var frames []frame
	var current frame
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if current.event != "" {
				frames = append(frames, current)
				current = frame{}
			}
		}
	}
	return frames
}

func newJob() *models.Job {
	return models.NewGenerationJob("corr", models.JobInputs{
		Brief: models.Brief{Topic: "volcanoes", Aspect: models.AspectLandscape},
		Plan:  models.PlanSpec{TargetDuration: 30 * time.Second},
	})
}

func streamToCompletion(t *testing.T, source *memSource, id models.ULID) []frame {
	t.Helper()
	s := NewStreamer(source, testLogger()).WithInterval(5 * time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/jobs/"+id.String()+"/events", nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.StreamJob(rec, req, id)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never closed")
	}
	return parseFrames(rec.Body.String())
}

func TestStreamEmitsLifecycleEvents(t *testing.T) {
	source := &memSource{job: newJob()}
	id := source.job.ID

	go func() {
		time.Sleep(20 * time.Millisecond)
		source.update(func(j *models.Job) { j.MarkRunning() })
		time.Sleep(20 * time.Millisecond)
		source.update(func(j *models.Job) { j.SetPercent(40) })
		time.Sleep(20 * time.Millisecond)
		source.update(func(j *models.Job) { j.AdvanceStage(models.StageNarration) })
		time.Sleep(20 * time.Millisecond)
		source.update(func(j *models.Job) {
			j.Artifacts = append(j.Artifacts, models.Artifact{Type: models.ArtifactFinalVideo, Path: "final.mp4"})
			j.MarkSucceeded()
		})
	}()

	frames := streamToCompletion(t, source, id)
	require.NotEmpty(t, frames)

	// Initial status first, terminal completion last.
	assert.Equal(t, EventJobStatus, frames[0].event)
	assert.Contains(t, frames[0].data, `"state":"queued"`)

	last := frames[len(frames)-1]
	assert.Equal(t, EventJobCompleted, last.event)
	assert.Contains(t, last.data, `"state":"succeeded"`)
	assert.Contains(t, last.data, "final.mp4")

	types := make(map[string]bool)
	for _, f := range frames {
		types[f.event] = true
		assert.Contains(t, f.data, `"correlation_id":"corr"`, f.event)
	}
	assert.True(t, types[EventStepStatus], "stage change must emit step-status")
	assert.True(t, types[EventStepProgress], "percent change must emit step-progress")
}

func TestStreamQuietJobEmitsKeepAlive(t *testing.T) {
	source := &memSource{job: newJob()}
	id := source.job.ID
	source.update(func(j *models.Job) { j.MarkRunning() })

	s := NewStreamer(source, testLogger()).
		WithInterval(5 * time.Millisecond).
		WithKeepAlive(20 * time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/jobs/"+id.String()+"/events", nil)
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.StreamJob(rec, req, id)
	}()

	// The job never changes; the stream must still emit periodically.
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	frames := parseFrames(rec.Body.String())
	require.NotEmpty(t, frames)

	keepAlives := 0
	for _, f := range frames[1:] {
		if f.event == EventStepProgress {
			keepAlives++
			assert.Contains(t, f.data, `"correlation_id":"corr"`)
		}
	}
	assert.GreaterOrEqual(t, keepAlives, 2, "quiet stream must emit keep-alive progress frames")
}

func TestStreamFailedJobEmitsJobFailed(t *testing.T) {
	source := &memSource{job: newJob()}
	id := source.job.ID

	go func() {
		time.Sleep(20 * time.Millisecond)
		source.update(func(j *models.Job) {
			j.MarkRunning()
			j.MarkFailed(models.NewStageError(models.ErrCodeTimeout, "script deadline exceeded", nil))
		})
	}()

	frames := streamToCompletion(t, source, id)
	require.NotEmpty(t, frames)

	last := frames[len(frames)-1]
	assert.Equal(t, EventJobFailed, last.event)
	assert.Contains(t, last.data, `"E_Timeout"`)
	assert.Contains(t, last.data, "suggested_actions")
}

func TestStreamTerminalJobClosesImmediately(t *testing.T) {
	job := newJob()
	job.MarkRunning()
	job.MarkSucceeded()
	source := &memSource{job: job}

	frames := streamToCompletion(t, source, job.ID)

	require.Len(t, frames, 2)
	assert.Equal(t, EventJobStatus, frames[0].event)
	assert.Equal(t, EventJobCompleted, frames[1].event)
}

func TestStreamUnknownJobEmitsError(t *testing.T) {
	source := &memSource{}
	frames := streamToCompletion(t, source, models.NewULID())

	require.Len(t, frames, 1)
	assert.Equal(t, EventError, frames[0].event)
	assert.Contains(t, frames[0].data, "not found")
}

func TestStreamClientDisconnect(t *testing.T) {
	source := &memSource{job: newJob()}
	s := NewStreamer(source, testLogger()).WithInterval(5 * time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/events", nil)
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.StreamJob(rec, req, source.job.ID)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close on client disconnect")
	}
}
