package webhook

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusReceived   Status = "received"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// Provider identifies which external system sent the event.
type Provider string

const (
	ProviderCalendar Provider = "calendar"
	ProviderATS      Provider = "ats"
)

// Event is one persisted inbound webhook delivery. The unique index on
// dedup_key makes receipt idempotent: a sender retry lands on the existing
// row. A failed-signature event is stored for audit with verified=false and
// never leaves received state.
type Event struct {
	ID       int64    `gorm:"primaryKey" json:"id,string"`
	Provider Provider `gorm:"type:varchar(50);not null;index" json:"provider"`

	// EventID is provider-supplied; PayloadHash is the dedup fallback when
	// the provider sends none.
	EventID     string `gorm:"type:varchar(255)" json:"event_id"`
	EventType   string `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadHash string `gorm:"type:varchar(64)" json:"payload_hash"`
	DedupKey    string `gorm:"type:varchar(255);not null;uniqueIndex" json:"dedup_key"`

	Verified    bool       `gorm:"not null;default:false" json:"verified"`
	Status      Status     `gorm:"type:varchar(50);not null;index" json:"status"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int        `gorm:"not null;default:5" json:"max_attempts"`
	LastError   string     `gorm:"type:text" json:"last_error,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	Payload datatypes.JSON `gorm:"type:jsonb" json:"payload"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Event) TableName() string {
	return "webhook_events"
}
