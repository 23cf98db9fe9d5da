package notification

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusSending  Status = "sending"
	StatusSent     Status = "sent"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Type is the closed set of outbound notification kinds. The worker
// dispatches on it.
type Type string

const (
	TypeBookingConfirmed   Type = "booking_confirmed"
	TypeBookingCanceled    Type = "booking_canceled"
	TypeBookingRescheduled Type = "booking_rescheduled"
	TypeInterviewReminder  Type = "interview_reminder"
)

type EntityType string

const (
	EntityBooking EntityType = "booking"
	EntityRequest EntityType = "request"
)

// Job is a durable outbound-message job. The unique index on
// idempotency_key is what collapses duplicate enqueues.
type Job struct {
	ID             int64      `gorm:"primaryKey" json:"id,string"`
	IdempotencyKey string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"idempotency_key"`
	Type           Type       `gorm:"type:varchar(100);not null;index" json:"type"`
	EntityType     EntityType `gorm:"type:varchar(50);not null" json:"entity_type"`
	EntityID       int64      `gorm:"not null;index" json:"entity_id,string"`
	Status         Status     `gorm:"type:varchar(50);not null;index" json:"status"`
	Attempts       int        `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts    int        `gorm:"not null;default:5" json:"max_attempts"`
	RunAfter       time.Time  `gorm:"index" json:"run_after"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	LastError      string     `gorm:"type:text" json:"last_error,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`

	Payload datatypes.JSON `gorm:"type:jsonb" json:"payload"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string {
	return "notification_jobs"
}

// Terminal reports whether the job reached immutable history.
func (j *Job) Terminal() bool {
	switch j.Status {
	case StatusSent, StatusFailed, StatusCanceled:
		return true
	}
	return false
}
