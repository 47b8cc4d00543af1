// Package progress broadcasts live task progress to subscribers such as SSE
// clients. The database stays the source of truth; events are best effort.
package progress

import (
	"time"

	"github.com/jmylchreest/dashingest/internal/models"
)

// SSE event types.
const (
	EventTypeProgress  = "progress"
	EventTypeCompleted = "completed"
	EventTypeError     = "error"
	EventTypeHeartbeat = "heartbeat"
)

// TaskProgress is the state of one task at the time of an event.
type TaskProgress struct {
	JobID    models.ULID       `json:"job_id"`
	TaskID   models.ULID       `json:"task_id"`
	Status   models.TaskStatus `json:"status"`
	Progress int               `json:"progress"`
	Message  string            `json:"message,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// ProgressEvent is sent to subscribers when a task changes.
type ProgressEvent struct {
	// EventType identifies the type of event.
	EventType string `json:"event_type"`
	// Task contains the task state.
	Task TaskProgress `json:"task"`
	// Timestamp is when the event was generated.
	Timestamp time.Time `json:"timestamp"`
}

// eventTypeForStatus returns the event type announcing a task status.
func eventTypeForStatus(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusCompleted:
		return EventTypeCompleted
	case models.TaskStatusError:
		return EventTypeError
	default:
		return EventTypeProgress
	}
}

// Filter restricts the events a subscriber receives.
type Filter struct {
	// JobID filters by owning job.
	JobID *models.ULID `json:"job_id,omitempty"`
	// TaskID filters by task.
	TaskID *models.ULID `json:"task_id,omitempty"`
}

// Matches returns true if the task matches the filter criteria.
func (f *Filter) Matches(p TaskProgress) bool {
	if f == nil {
		return true
	}
	if f.JobID != nil && *f.JobID != p.JobID {
		return false
	}
	if f.TaskID != nil && *f.TaskID != p.TaskID {
		return false
	}
	return true
}
