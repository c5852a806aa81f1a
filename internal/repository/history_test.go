package repository

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralabs/aura/internal/config"
	"github.com/auralabs/aura/internal/database"
	"github.com/auralabs/aura/internal/models"
)

func testHistory(t *testing.T) *History {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := database.Open(config.DatabaseConfig{
		DSN:      filepath.Join(t.TempDir(), "aura.db"),
		LogLevel: "error",
	}, logger)
	require.NoError(t, err)
	return NewHistory(db, logger)
}

func terminalJob(t *testing.T, state models.JobState) *models.Job {
	t.Helper()
	job := models.NewGenerationJob("corr-hist", models.JobInputs{
		Brief: models.Brief{Topic: "the silk road", Aspect: models.AspectLandscape},
		Plan:  models.PlanSpec{TargetDuration: time.Minute},
	})
	job.MarkRunning()
	switch state {
	case models.StateSucceeded:
		job.Artifacts = append(job.Artifacts, models.Artifact{Type: models.ArtifactFinalVideo, Path: "final.mp4"})
		job.MarkSucceeded()
	case models.StateFailed:
		job.MarkFailed(models.NewStageError(models.ErrCodeTimeout, "deadline exceeded", nil))
	case models.StateCancelled:
		job.MarkCancelled()
	}
	return job
}

func TestArchiveAndGetRoundTrip(t *testing.T) {
	h := testHistory(t)

	job := terminalJob(t, models.StateSucceeded)
	require.NoError(t, h.Archive(job))

	got, err := h.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, models.StateSucceeded, got.State)
	assert.Equal(t, "the silk road", got.Inputs.Brief.Topic)
	assert.Len(t, got.Artifacts, 1)
}

func TestArchiveIsIdempotentPerJob(t *testing.T) {
	h := testHistory(t)

	job := terminalJob(t, models.StateSucceeded)
	require.NoError(t, h.Archive(job))
	require.NoError(t, h.Archive(job))

	jobs, err := h.List(ListFilter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestGetUnknownJob(t *testing.T) {
	h := testHistory(t)
	_, err := h.Get(models.NewULID())
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestListFilters(t *testing.T) {
	h := testHistory(t)

	require.NoError(t, h.Archive(terminalJob(t, models.StateSucceeded)))
	require.NoError(t, h.Archive(terminalJob(t, models.StateFailed)))
	require.NoError(t, h.Archive(terminalJob(t, models.StateFailed)))

	failed, err := h.List(ListFilter{State: models.StateFailed})
	require.NoError(t, err)
	assert.Len(t, failed, 2)

	generation, err := h.List(ListFilter{Type: models.JobTypeGeneration})
	require.NoError(t, err)
	assert.Len(t, generation, 3)

	limited, err := h.List(ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPruneOlderThan(t *testing.T) {
	h := testHistory(t)

	old := terminalJob(t, models.StateSucceeded)
	past := time.Now().Add(-48 * time.Hour)
	old.FinishedAt = &past
	require.NoError(t, h.Archive(old))
	require.NoError(t, h.Archive(terminalJob(t, models.StateSucceeded)))

	pruned, err := h.PruneOlderThan(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)

	jobs, err := h.List(ListFilter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}
