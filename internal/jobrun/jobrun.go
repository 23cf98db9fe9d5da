package jobrun

import (
	"os"
	"time"

	"github.com/oklog/ulid/v2"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	// StatusLocked records a trigger that exited because another instance
	// already held the worker lock.
	StatusLocked Status = "locked"
)

// TriggerSource identifies what invoked a worker run.
type TriggerSource string

const (
	TriggerScheduler   TriggerSource = "scheduler"
	TriggerManual      TriggerSource = "manual"
	TriggerCommandLine TriggerSource = "command-line"
)

// Run is one durable record of a worker execution. Finalized rows are
// immutable history.
type Run struct {
	ID               int64         `gorm:"primaryKey" json:"id,string"`
	JobName          string        `gorm:"type:varchar(100);not null;index" json:"job_name"`
	Status           Status        `gorm:"type:varchar(50);not null;index" json:"status"`
	TriggeredBy      TriggerSource `gorm:"type:varchar(50);not null" json:"triggered_by"`
	InstanceID       string        `gorm:"type:varchar(100)" json:"instance_id"`
	Processed        int           `gorm:"not null;default:0" json:"processed"`
	Failed           int           `gorm:"not null;default:0" json:"failed"`
	Skipped          int           `gorm:"not null;default:0" json:"skipped"`
	QueueDepthBefore int64         `gorm:"not null;default:0" json:"queue_depth_before"`
	QueueDepthAfter  int64         `gorm:"not null;default:0" json:"queue_depth_after"`
	ErrorSummary     string        `gorm:"type:text" json:"error_summary,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       *time.Time    `json:"finished_at,omitempty"`
}

func (Run) TableName() string {
	return "job_runs"
}

// Outcome carries the counters a worker reports when a run finishes.
type Outcome struct {
	Processed       int
	Failed          int
	Skipped         int
	QueueDepthAfter int64
	ErrorSummary    string
}

// InstanceID identifies one running service instance across all workers.
type InstanceID string

// NewInstanceID derives a process-unique holder identifier.
func NewInstanceID() InstanceID {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return InstanceID(host + "-" + ulid.Make().String())
}
