//go:build unix

package encoder

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralabs/aura/internal/models"
)

func testSupervisor(t *testing.T, grace time.Duration) *Supervisor {
	t.Helper()
	return NewSupervisor(grace, slog.Default())
}

func TestSpawnAndWait(t *testing.T) {
	s := testSupervisor(t, time.Second)

	h, err := s.Spawn(SpawnSpec{Name: "sh", Args: []string{"-c", "exit 0"}})
	require.NoError(t, err)

	require.NoError(t, h.Wait())
	assert.Equal(t, 0, h.ExitCode())
	assert.Equal(t, 0, s.Count())
}

func TestSpawnLaunchFailure(t *testing.T) {
	s := testSupervisor(t, time.Second)

	_, err := s.Spawn(SpawnSpec{Name: "definitely-not-a-binary-xyz"})
	require.Error(t, err)
	assert.Equal(t, 0, s.Count())
}

func TestSpawnNonZeroExit(t *testing.T) {
	s := testSupervisor(t, time.Second)

	h, err := s.Spawn(SpawnSpec{Name: "sh", Args: []string{"-c", "exit 3"}})
	require.NoError(t, err)

	assert.Error(t, h.Wait())
	assert.Equal(t, 3, h.ExitCode())
}

func TestStderrCapture(t *testing.T) {
	s := testSupervisor(t, time.Second)

	var mu sync.Mutex
	var streamed []string
	h, err := s.Spawn(SpawnSpec{
		Name: "sh",
		Args: []string{"-c", "echo one >&2; echo two >&2"},
		OnStderrLine: func(line string) {
			mu.Lock()
			streamed = append(streamed, line)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	require.NoError(t, h.Wait())

	// Wait returns only after the reader drained the pipe, so every line is
	// visible immediately.
	mu.Lock()
	assert.Equal(t, []string{"one", "two"}, streamed)
	mu.Unlock()

	tail := h.StderrTail()
	assert.Contains(t, tail, "one")
	assert.Contains(t, tail, "two")
}

func TestKillReportsCancelled(t *testing.T) {
	s := testSupervisor(t, time.Second)

	h, err := s.Spawn(SpawnSpec{Name: "sleep", Args: []string{"30"}})
	require.NoError(t, err)

	waitErr := make(chan error, 1)
	go func() { waitErr <- h.Wait() }()

	s.Kill(h)

	select {
	case err := <-waitErr:
		assert.ErrorIs(t, err, models.ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after Kill")
	}
	assert.Equal(t, 0, s.Count())
}

func TestKillHardKillsAfterGrace(t *testing.T) {
	s := testSupervisor(t, 200*time.Millisecond)

	// Trap the terminate signal so only the hard-kill can end the process.
	// The child echoes once the trap is installed; killing before that would
	// race the signal against the trap setup.
	ready := make(chan struct{}, 1)
	h, err := s.Spawn(SpawnSpec{
		Name: "sh",
		Args: []string{"-c", "trap '' TERM; echo ready >&2; sleep 30"},
		OnStderrLine: func(string) {
			select {
			case ready <- struct{}{}:
			default:
			}
		},
	})
	require.NoError(t, err)

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("child never signalled readiness")
	}

	start := time.Now()
	s.Kill(h)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)
	assert.ErrorIs(t, h.Wait(), models.ErrCancelled)
}

func TestKillAllEmptiesRegistryAndIsIdempotent(t *testing.T) {
	s := testSupervisor(t, time.Second)

	for range 3 {
		_, err := s.Spawn(SpawnSpec{Name: "sleep", Args: []string{"30"}})
		require.NoError(t, err)
	}
	require.Equal(t, 3, s.Count())

	assert.Equal(t, 3, s.KillAll())
	assert.Equal(t, 0, s.Count())

	// Second call is a no-op.
	assert.Equal(t, 0, s.KillAll())
}
