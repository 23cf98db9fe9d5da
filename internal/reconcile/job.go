package reconcile

import (
	"fmt"
	"time"
)

// Reason classifies the drift a scan detected.
type Reason string

const (
	// ReasonStateMismatch covers contradictory states, e.g. an active
	// booking whose calendar event is canceled. Never auto-repaired.
	ReasonStateMismatch Reason = "state_mismatch"

	// ReasonCalendarEventMissing covers an expected calendar event that no
	// longer exists. Safe to recreate.
	ReasonCalendarEventMissing Reason = "calendar_event_missing"

	// ReasonATSNoteMissing covers an expected ATS interview note that no
	// longer exists. Safe to recreate.
	ReasonATSNoteMissing Reason = "icims_note_missing"
)

// Repairable reports whether the engine may fix this drift itself.
func (r Reason) Repairable() bool {
	return r == ReasonCalendarEventMissing || r == ReasonATSNoteMissing
}

type Status string

const (
	StatusOpen Status = "open"
	// StatusRepaired means the engine fixed the drift itself.
	StatusRepaired Status = "repaired"
	// StatusEscalated means automation gave up; an operator must act.
	StatusEscalated Status = "escalated"
	// StatusResolved means an operator closed the job manually.
	StatusResolved Status = "resolved"
)

// Job records one detected drift between a booking and an external system.
// The unique index on dedup_key guarantees at most one live job per
// booking and reason; closing a job frees the key so the same drift can be
// detected again later.
type Job struct {
	ID         int64  `gorm:"primaryKey" json:"id,string"`
	EntityType string `gorm:"type:varchar(50);not null" json:"entity_type"`
	EntityID   int64  `gorm:"not null;index" json:"entity_id,string"`
	Reason     Reason `gorm:"type:varchar(100);not null;index" json:"reason"`
	DedupKey   string `gorm:"type:varchar(255);not null;uniqueIndex" json:"dedup_key"`
	Status     Status `gorm:"type:varchar(50);not null;index" json:"status"`

	// Detail describes what was observed, for the operator surface.
	Detail      string `gorm:"type:text" json:"detail,omitempty"`
	Attempts    int    `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int    `gorm:"not null;default:5" json:"max_attempts"`
	LastError   string `gorm:"type:text" json:"last_error,omitempty"`

	// RepairNote records what the auto-repair did, e.g. the recreated
	// event's identifier.
	RepairNote string     `gorm:"type:text" json:"repair_note,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string {
	return "reconciliation_jobs"
}

// DedupKeyFor builds the live-job key for an entity and reason.
func DedupKeyFor(entityType string, entityID int64, reason Reason) string {
	return fmt.Sprintf("%s:%d:%s", entityType, entityID, reason)
}
