package models

import "gorm.io/gorm"

// QueueSchedule describes when held jobs are released. Only one schedule
// exists at a time: either a one-shot RunAt or a recurring CronSchedule.
type QueueSchedule struct {
	BaseModel

	// RunAt is the one-shot trigger time, cleared once it fires or misfires.
	RunAt *Time `json:"run_at,omitempty"`

	// CronSchedule is a 5-field cron expression for recurring starts.
	CronSchedule string `gorm:"size:100" json:"cron_schedule,omitempty"`

	// LastRunAt is when the schedule last started the queue.
	LastRunAt *Time `json:"last_run_at,omitempty"`
}

// TableName returns the table name for QueueSchedule.
func (QueueSchedule) TableName() string {
	return "queue_schedules"
}

// IsRecurring returns true if the schedule repeats.
func (s *QueueSchedule) IsRecurring() bool {
	return s.CronSchedule != ""
}

// Validate checks that exactly one trigger is set.
func (s *QueueSchedule) Validate() error {
	switch {
	case s.RunAt == nil && s.CronSchedule == "":
		return ErrScheduleRequired
	case s.RunAt != nil && s.CronSchedule != "":
		return ErrScheduleAmbiguous
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the schedule and generates ULID.
func (s *QueueSchedule) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return s.Validate()
}
