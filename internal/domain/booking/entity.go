package booking

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of an interview booking.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// SyncFlag marks a booking whose external state needs operator attention.
type SyncFlag string

const (
	SyncFlagNone              SyncFlag = ""
	SyncFlagRequiresAttention SyncFlag = "requires_attention"
)

var (
	ErrNotFound          = errors.New("booking not found")
	ErrInvalidTransition = errors.New("invalid booking state transition")
)

// Booking is the core scheduling entity the coordination workers act on.
// It contains no database tags or infrastructure details.
type Booking struct {
	ID               int64  `json:"id,string"`
	RequestID        int64  `json:"request_id,string"`
	CandidateName    string `json:"candidate_name"`
	CandidateEmail   string `json:"candidate_email"`
	InterviewerEmail string `json:"interviewer_email"`
	Status           Status `json:"status"`

	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`

	// External system references.
	CalendarEventID  string `json:"calendar_event_id"`
	ATSApplicationID string `json:"ats_application_id"`
	ATSNoteID        string `json:"ats_note_id"`

	// ExternalStatus mirrors what the ATS last reported for the application.
	ExternalStatus string    `json:"external_status"`
	SyncFlag       SyncFlag  `json:"sync_flag,omitempty"`
	LastSyncedAt   time.Time `json:"last_synced_at"`

	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBooking creates a booking in scheduled state.
func NewBooking(requestID int64, candidateEmail, interviewerEmail string, startsAt, endsAt time.Time) *Booking {
	now := time.Now().UTC()
	return &Booking{
		RequestID:        requestID,
		CandidateEmail:   candidateEmail,
		InterviewerEmail: interviewerEmail,
		Status:           StatusScheduled,
		StartsAt:         startsAt,
		EndsAt:           endsAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Confirm transitions the booking to confirmed state.
func (b *Booking) Confirm() error {
	if b.Status != StatusScheduled {
		return ErrInvalidTransition
	}
	b.Status = StatusConfirmed
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel transitions the booking to canceled state. Canceling an already
// canceled booking is a no-op rather than an error.
func (b *Booking) Cancel() error {
	switch b.Status {
	case StatusCanceled:
		return nil
	case StatusCompleted:
		return ErrInvalidTransition
	}
	b.Status = StatusCanceled
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete transitions a confirmed booking to completed state.
func (b *Booking) Complete() error {
	if b.Status != StatusConfirmed {
		return ErrInvalidTransition
	}
	b.Status = StatusCompleted
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// Reschedule moves the booking to a new time window. Reminder jobs tied to
// the old slot must be canceled by the caller.
func (b *Booking) Reschedule(startsAt, endsAt time.Time) error {
	if b.Status == StatusCanceled || b.Status == StatusCompleted {
		return ErrInvalidTransition
	}
	b.StartsAt = startsAt
	b.EndsAt = endsAt
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkSynced records a successful external-state comparison.
func (b *Booking) MarkSynced() {
	b.SyncFlag = SyncFlagNone
	b.LastError = ""
	b.LastSyncedAt = time.Now().UTC()
	b.UpdatedAt = b.LastSyncedAt
}

// FlagForAttention marks the booking for manual operator review.
func (b *Booking) FlagForAttention(reason string) {
	b.SyncFlag = SyncFlagRequiresAttention
	b.LastError = reason
	b.UpdatedAt = time.Now().UTC()
}

// Active reports whether the booking still expects remote state to exist.
func (b *Booking) Active() bool {
	return b.Status == StatusScheduled || b.Status == StatusConfirmed
}
