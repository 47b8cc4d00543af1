package models

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// JobType represents the type of job to execute.
type JobType string

const (
	// JobTypeMetadata walks a source folder and probes every video in it.
	JobTypeMetadata JobType = "METADATA"
	// JobTypeTranscode packages a batch of videos into DASH renditions.
	JobTypeTranscode JobType = "TRANSCODE"
)

// IsValid reports whether t is a known job type.
func (t JobType) IsValid() bool {
	return t == JobTypeMetadata || t == JobTypeTranscode
}

// JobStatus represents the aggregate status of a job.
type JobStatus string

const (
	// JobStatusQueued indicates the job has not run yet.
	JobStatusQueued JobStatus = "QUEUED"
	// JobStatusIncomplete indicates some tasks are not finished yet.
	JobStatusIncomplete JobStatus = "INCOMPLETE"
	// JobStatusCompleted indicates every task completed.
	JobStatusCompleted JobStatus = "COMPLETED"
	// JobStatusError indicates at least one task failed.
	JobStatusError JobStatus = "ERROR"
)

// Job is a caller-initiated batch of related tasks.
//
// Status is derived from the job's tasks once any exist, see AggregateJobStatus.
// Dispatching is driven by NextRunAt and the lock fields: a job with a nil
// NextRunAt is held in the queue until released.
type Job struct {
	BaseModel

	Type   JobType   `gorm:"not null;size:20;index" json:"type"`
	Status JobStatus `gorm:"not null;default:'QUEUED';size:20;index" json:"status"`

	// SourceDir is the ingest folder the job operates on.
	SourceDir string `gorm:"size:4096" json:"source_dir"`

	// Data holds an opaque JSON payload set at creation and/or completion.
	Data string `gorm:"type:text" json:"-"`

	// ErrorMessage is set when a job without tasks fails as a whole.
	ErrorMessage string `gorm:"size:4096" json:"error_message,omitempty"`

	NextRunAt   *Time `gorm:"index" json:"next_run_at,omitempty"`
	StartedAt   *Time `json:"started_at,omitempty"`
	CompletedAt *Time `json:"completed_at,omitempty"`
	DurationMs  int64 `json:"duration_ms,omitempty"`

	// LockedBy is the worker ID executing this job.
	LockedBy string `gorm:"size:100;index" json:"locked_by,omitempty"`
	LockedAt *Time  `json:"locked_at,omitempty"`
}

// TableName returns the table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// IsHeld returns true if the job has never been dispatched and is waiting
// for the queue to be started.
func (j *Job) IsHeld() bool {
	return j.NextRunAt == nil && j.StartedAt == nil && j.LockedBy == ""
}

// IsRunning returns true if a worker currently owns the job.
func (j *Job) IsRunning() bool {
	return j.LockedBy != ""
}

// Dispatch makes the job runnable from the given time.
func (j *Job) Dispatch(at Time) {
	j.NextRunAt = &at
}

// MarkRunning records that workerID picked up the job.
func (j *Job) MarkRunning(workerID string) {
	now := Now()
	j.StartedAt = &now
	j.CompletedAt = nil
	j.NextRunAt = nil
	j.LockedBy = workerID
	j.LockedAt = &now
}

// MarkFinished releases the job after a run, whatever its outcome.
func (j *Job) MarkFinished() {
	now := Now()
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}
	j.LockedBy = ""
	j.LockedAt = nil
}

// SetData encodes v as the job payload.
func (j *Job) SetData(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding job data: %w", err)
	}
	j.Data = string(data)
	return nil
}

// DecodeData decodes the job payload into v. An empty payload leaves v untouched.
func (j *Job) DecodeData(v any) error {
	if j.Data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(j.Data), v); err != nil {
		return fmt.Errorf("decoding job data: %w", err)
	}
	return nil
}

// Validate performs basic validation on the job.
func (j *Job) Validate() error {
	if j.Type == "" {
		return ErrJobTypeRequired
	}
	if !j.Type.IsValid() {
		return ErrInvalidJobType
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the job and generates ULID.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if err := j.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if j.Status == "" {
		j.Status = JobStatusQueued
	}
	return j.Validate()
}

// AggregateJobStatus derives a job's status from the statuses of its tasks:
// COMPLETED iff every task completed, otherwise ERROR if any task failed,
// otherwise INCOMPLETE. A job with no tasks is vacuously COMPLETED.
func AggregateJobStatus(statuses []TaskStatus) JobStatus {
	hasError := false
	allCompleted := true
	for _, s := range statuses {
		switch s {
		case TaskStatusCompleted:
		case TaskStatusError:
			hasError = true
			allCompleted = false
		default:
			allCompleted = false
		}
	}

	switch {
	case allCompleted:
		return JobStatusCompleted
	case hasError:
		return JobStatusError
	default:
		return JobStatusIncomplete
	}
}
