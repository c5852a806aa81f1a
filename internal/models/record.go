package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// JobRecord is the persisted archive row for a terminal job. The in-memory
// queue is authoritative for live jobs; records exist so history survives
// restarts and retention eviction.
type JobRecord struct {
	ID            ULID      `gorm:"primaryKey;type:text" json:"id"`
	CorrelationID string    `gorm:"index" json:"correlation_id"`
	Type          JobType   `gorm:"index" json:"type"`
	State         JobState  `gorm:"index" json:"state"`
	Stage         Stage     `json:"stage"`
	CreatedAt     time.Time `json:"created_at"`
	StartedAt     *time.Time
	FinishedAt    *time.Time `gorm:"index"`

	// Payload is the full terminal job snapshot serialized as JSON.
	Payload []byte `gorm:"type:blob"`

	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the GORM table name.
func (JobRecord) TableName() string { return "job_records" }

// NewJobRecord builds an archive row from a terminal job snapshot.
func NewJobRecord(j *Job) (*JobRecord, error) {
	payload, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return &JobRecord{
		ID:            j.ID,
		CorrelationID: j.CorrelationID,
		Type:          j.Type,
		State:         j.State,
		Stage:         j.Stage,
		CreatedAt:     j.CreatedAt,
		StartedAt:     j.StartedAt,
		FinishedAt:    j.FinishedAt,
		Payload:       payload,
	}, nil
}

// Unpack deserializes the stored job snapshot.
func (r *JobRecord) Unpack() (*Job, error) {
	var j Job
	if err := json.Unmarshal(r.Payload, &j); err != nil {
		return nil, err
	}
	return &j, nil
}
