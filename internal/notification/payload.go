package notification

import "time"

// Payloads are a closed set of tagged variants, one per notification type,
// each carrying only the fields its template needs. The job's Type column is
// the tag; the worker unmarshals into the matching variant.

type ConfirmationPayload struct {
	Recipient        string    `json:"recipient"`
	CandidateName    string    `json:"candidate_name"`
	InterviewerEmail string    `json:"interviewer_email"`
	StartsAt         time.Time `json:"starts_at"`
	EndsAt           time.Time `json:"ends_at"`
}

type CancellationPayload struct {
	Recipient     string    `json:"recipient"`
	CandidateName string    `json:"candidate_name"`
	StartsAt      time.Time `json:"starts_at"`
	Reason        string    `json:"reason,omitempty"`
}

type ReschedulePayload struct {
	Recipient     string    `json:"recipient"`
	CandidateName string    `json:"candidate_name"`
	OldStartsAt   time.Time `json:"old_starts_at"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
}

type ReminderPayload struct {
	Recipient     string    `json:"recipient"`
	CandidateName string    `json:"candidate_name"`
	StartsAt      time.Time `json:"starts_at"`

	// Offset labels which reminder this is, e.g. "24h" or "2h".
	Offset string `json:"offset"`
}
