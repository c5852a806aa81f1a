// Package artifacts persists pipeline outputs per job and records terminal
// jobs in a global append-only index for recent-artifact queries.
package artifacts

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/auralabs/aura/internal/models"
)

const (
	manifestName = "manifest.jsonl"
	indexName    = "index.jsonl"
)

// CompletedRecord is one line of the global index: a terminal job and its
// artifacts.
type CompletedRecord struct {
	JobID         models.ULID       `json:"job_id"`
	CorrelationID string            `json:"correlation_id"`
	Type          models.JobType    `json:"type"`
	State         models.JobState   `json:"state"`
	FinishedAt    time.Time         `json:"finished_at"`
	Artifacts     []models.Artifact `json:"artifacts"`
}

// Store maps job ids to ordered artifact lists. Writes are serialized per
// job; reads copy under a shared lock. Every artifact is sidecar-recorded
// in the job's manifest so history survives a restart.
type Store struct {
	baseDir string
	logger  *slog.Logger

	mu   sync.RWMutex
	jobs map[models.ULID][]models.Artifact

	indexMu sync.Mutex
}

// NewStore creates an artifact store rooted at baseDir.
func NewStore(baseDir string, logger *slog.Logger) (*Store, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving artifact root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact root: %w", err)
	}
	return &Store{
		baseDir: abs,
		logger:  logger,
		jobs:    make(map[models.ULID][]models.Artifact),
	}, nil
}

// BaseDir returns the absolute artifact root.
func (s *Store) BaseDir() string { return s.baseDir }

// JobDir returns the job's artifact directory, creating it on first use.
// Paths are absolute and stable for the job's lifetime.
func (s *Store) JobDir(jobID models.ULID) (string, error) {
	dir := filepath.Join(s.baseDir, jobID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", models.NewStageError(models.ErrCodeDiskSpace, "creating job directory", err)
	}
	return dir, nil
}

// Add records an artifact for the job. Idempotent on identical
// (type, path, size): duplicates are silently dropped.
func (s *Store) Add(jobID models.ULID, artifact models.Artifact) error {
	s.mu.Lock()
	for _, existing := range s.jobs[jobID] {
		if existing.Type == artifact.Type && existing.Path == artifact.Path && existing.SizeBytes == artifact.SizeBytes {
			s.mu.Unlock()
			return nil
		}
	}
	s.jobs[jobID] = append(s.jobs[jobID], artifact)
	s.mu.Unlock()

	if err := s.appendManifest(jobID, artifact); err != nil {
		return err
	}

	s.logger.Debug("artifact recorded",
		slog.String("job_id", jobID.String()),
		slog.String("type", string(artifact.Type)),
		slog.String("path", artifact.Path),
		slog.Int64("size_bytes", artifact.SizeBytes),
	)
	return nil
}

// Get returns the job's artifacts in insertion order. Jobs from previous
// runs are recovered from their on-disk manifest.
func (s *Store) Get(jobID models.ULID) []models.Artifact {
	s.mu.RLock()
	list, ok := s.jobs[jobID]
	if ok {
		out := append([]models.Artifact(nil), list...)
		s.mu.RUnlock()
		return out
	}
	s.mu.RUnlock()

	recovered := s.readManifest(jobID)
	if len(recovered) == 0 {
		return nil
	}

	s.mu.Lock()
	if _, ok := s.jobs[jobID]; !ok {
		s.jobs[jobID] = recovered
	}
	list = append([]models.Artifact(nil), s.jobs[jobID]...)
	s.mu.Unlock()
	return list
}

// RevealDirectory returns the job's artifact directory for external open.
func (s *Store) RevealDirectory(jobID models.ULID) string {
	return filepath.Join(s.baseDir, jobID.String())
}

// RecordCompleted appends a terminal job to the global index.
func (s *Store) RecordCompleted(job *models.Job) error {
	finishedAt := time.Now()
	if job.FinishedAt != nil {
		finishedAt = *job.FinishedAt
	}
	record := CompletedRecord{
		JobID:         job.ID,
		CorrelationID: job.CorrelationID,
		Type:          job.Type,
		State:         job.State,
		FinishedAt:    finishedAt,
		Artifacts:     s.Get(job.ID),
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	return appendJSONL(filepath.Join(s.baseDir, indexName), record)
}

// RecentCompleted returns the most recent terminal jobs, newest first.
// Best-effort: I/O or decode problems yield an empty or partial list,
// never an error.
func (s *Store) RecentCompleted(n int) []CompletedRecord {
	if n < 1 {
		return nil
	}

	f, err := os.Open(filepath.Join(s.baseDir, indexName))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("reading artifact index", slog.String("error", err.Error()))
		}
		return nil
	}
	defer f.Close()

	var records []CompletedRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var record CompletedRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			// Skip torn or corrupt lines; the index is append-only and
			// a crash can leave a partial tail.
			continue
		}
		records = append(records, record)
	}

	if len(records) > n {
		records = records[len(records)-n:]
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records
}

// Flush ensures manifests are durable. Appends are synced as they happen,
// so this is a checkpoint log for the shutdown path.
func (s *Store) Flush() {
	s.mu.RLock()
	count := len(s.jobs)
	s.mu.RUnlock()
	s.logger.Info("artifact manifests flushed", slog.Int("jobs", count))
}

func (s *Store) appendManifest(jobID models.ULID, artifact models.Artifact) error {
	dir, err := s.JobDir(jobID)
	if err != nil {
		return err
	}
	if err := appendJSONL(filepath.Join(dir, manifestName), artifact); err != nil {
		return models.NewStageError(models.ErrCodeDiskSpace, "appending artifact manifest", err)
	}
	return nil
}

func (s *Store) readManifest(jobID models.ULID) []models.Artifact {
	f, err := os.Open(filepath.Join(s.baseDir, jobID.String(), manifestName))
	if err != nil {
		return nil
	}
	defer f.Close()

	var list []models.Artifact
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var artifact models.Artifact
		if err := json.Unmarshal(scanner.Bytes(), &artifact); err != nil {
			continue
		}
		list = append(list, artifact)
	}
	return list
}

func appendJSONL(path string, v any) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}
