package encoder

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/auralabs/aura/internal/models"
)

// maxStderrLines bounds the per-handle ring buffer of recent stderr output
// kept for failure diagnostics.
const maxStderrLines = 100

// SpawnSpec describes a child process to launch.
type SpawnSpec struct {
	Name string
	Args []string
	Env  []string
	Dir  string

	// OnStderrLine, when set, receives every stderr line as it arrives.
	// Called from the reader goroutine; must not block.
	OnStderrLine func(line string)
}

// Handle tracks one live child process.
type Handle struct {
	ID        models.ULID
	Name      string
	Args      []string
	StartedAt time.Time

	cmd  *exec.Cmd
	done chan struct{}

	mu          sync.Mutex
	waitErr     error
	killed      bool
	stderrLines []string
}

// Supervisor spawns and tracks external processes. Children are launched on
// an independent lifetime, never tied to a caller's context: caller
// cancellation must go through Kill explicitly, so an unrelated upstream
// timeout cannot reap a long-running encode.
type Supervisor struct {
	grace  time.Duration
	logger *slog.Logger

	mu      sync.RWMutex
	handles map[models.ULID]*Handle
}

// NewSupervisor creates a supervisor with the given termination grace.
func NewSupervisor(grace time.Duration, logger *slog.Logger) *Supervisor {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Supervisor{
		grace:   grace,
		logger:  logger,
		handles: make(map[models.ULID]*Handle),
	}
}

// Spawn launches the process and registers its handle. Launch failures
// (unresolvable binary, permission denied) are returned immediately.
func (s *Supervisor) Spawn(spec SpawnSpec) (*Handle, error) {
	cmd := exec.Command(spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launching %s: %w", spec.Name, err)
	}

	h := &Handle{
		ID:        models.NewULID(),
		Name:      spec.Name,
		Args:      spec.Args,
		StartedAt: time.Now(),
		cmd:       cmd,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.handles[h.ID] = h
	s.mu.Unlock()

	// Wait must not run until the reader has drained stderr: cmd.Wait closes
	// the pipe, and closing it mid-read drops the tail of the output.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			h.appendStderr(line)
			if spec.OnStderrLine != nil {
				spec.OnStderrLine(line)
			}
		}
	}()

	go func() {
		<-readerDone
		err := cmd.Wait()
		h.mu.Lock()
		h.waitErr = err
		h.mu.Unlock()
		close(h.done)

		s.remove(h.ID)
	}()

	s.logger.Debug("process spawned",
		slog.String("handle_id", h.ID.String()),
		slog.String("binary", spec.Name),
		slog.Int("pid", cmd.Process.Pid),
	)

	return h, nil
}

// Kill terminates the process: terminate signal, wait up to the grace
// period, then hard-kill. The handle is always removed from the registry.
// Waiting callers see models.ErrCancelled.
func (s *Supervisor) Kill(h *Handle) {
	defer s.remove(h.ID)

	h.mu.Lock()
	h.killed = true
	h.mu.Unlock()

	select {
	case <-h.done:
		return
	default:
	}

	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = h.cmd.Process.Kill()
	}

	select {
	case <-h.done:
		return
	case <-time.After(s.grace):
	}

	s.logger.Warn("process ignored terminate signal, hard-killing",
		slog.String("handle_id", h.ID.String()),
		slog.String("binary", h.Name),
	)
	_ = h.cmd.Process.Kill()
	<-h.done
}

// KillAll kills every tracked process and returns how many were killed.
// Safe to call repeatedly; a second call on an empty registry returns 0.
func (s *Supervisor) KillAll() int {
	s.mu.RLock()
	snapshot := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		snapshot = append(snapshot, h)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, h := range snapshot {
		wg.Add(1)
		go func(h *Handle) {
			defer wg.Done()
			s.Kill(h)
		}(h)
	}
	wg.Wait()

	return len(snapshot)
}

// Count returns the number of live handles.
func (s *Supervisor) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

func (s *Supervisor) remove(id models.ULID) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}

// Wait blocks until the process exits. Killed processes report
// models.ErrCancelled rather than their exit error.
func (h *Handle) Wait() error {
	<-h.done

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.killed {
		return models.ErrCancelled
	}
	return h.waitErr
}

// ExitCode returns the process exit code, or -1 while still running.
func (h *Handle) ExitCode() int {
	select {
	case <-h.done:
	default:
		return -1
	}
	if h.cmd.ProcessState == nil {
		return -1
	}
	return h.cmd.ProcessState.ExitCode()
}

// StderrTail returns a copy of the most recent stderr lines.
func (h *Handle) StderrTail() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.stderrLines...)
}

func (h *Handle) appendStderr(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stderrLines = append(h.stderrLines, line)
	if len(h.stderrLines) > maxStderrLines {
		h.stderrLines = h.stderrLines[len(h.stderrLines)-maxStderrLines:]
	}
}
