// Package repository persists terminal job snapshots for history queries.
package repository

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/auralabs/aura/internal/models"
)

// History archives terminal jobs and answers history queries.
type History struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewHistory creates a history repository.
func NewHistory(db *gorm.DB, logger *slog.Logger) *History {
	return &History{db: db, logger: logger}
}

// Archive upserts the terminal job snapshot. Retrying a failed archive with
// the same job id overwrites the previous row.
func (h *History) Archive(job *models.Job) error {
	record, err := models.NewJobRecord(job)
	if err != nil {
		return fmt.Errorf("building job record: %w", err)
	}

	return h.db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(record).Error
}

// Get loads one archived job by id.
func (h *History) Get(id models.ULID) (*models.Job, error) {
	var record models.JobRecord
	if err := h.db.First(&record, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.ErrJobNotFound
		}
		return nil, err
	}
	return record.Unpack()
}

// ListFilter narrows a history query.
type ListFilter struct {
	Type  models.JobType
	State models.JobState
	Limit int
}

// List returns archived jobs newest first.
func (h *History) List(filter ListFilter) ([]*models.Job, error) {
	q := h.db.Model(&models.JobRecord{}).Order("finished_at DESC")
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.State != "" {
		q = q.Where("state = ?", filter.State)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var records []models.JobRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}

	jobs := make([]*models.Job, 0, len(records))
	for _, r := range records {
		job, err := r.Unpack()
		if err != nil {
			h.logger.Warn("skipping corrupt history record",
				slog.String("job_id", r.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// PruneOlderThan soft-deletes archived jobs finished before the cutoff.
// Returns how many rows were pruned.
func (h *History) PruneOlderThan(cutoff time.Time) (int64, error) {
	res := h.db.Where("finished_at < ?", cutoff).Delete(&models.JobRecord{})
	return res.RowsAffected, res.Error
}
