package notification

import (
	"encoding/json"
	"fmt"

	"github.com/talentflowlabs/talentflow-core/pkg/mailclient"
)

// Renderer turns a job into a dispatchable message. Template rendering is
// owned by the surrounding application; TextRenderer is the plain fallback
// used when no template engine is wired in.
type Renderer interface {
	Render(job *Job) (mailclient.Message, error)
}

type TextRenderer struct{}

func NewTextRenderer() *TextRenderer {
	return &TextRenderer{}
}

func (r *TextRenderer) Render(job *Job) (mailclient.Message, error) {
	switch job.Type {
	case TypeBookingConfirmed:
		var p ConfirmationPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return mailclient.Message{}, fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		return mailclient.Message{
			To:      p.Recipient,
			Subject: "Your interview is confirmed",
			Text: fmt.Sprintf("Hi %s,\n\nYour interview is confirmed for %s.\n",
				p.CandidateName, p.StartsAt.Format("Mon, 02 Jan 2006 15:04 MST")),
		}, nil

	case TypeBookingCanceled:
		var p CancellationPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return mailclient.Message{}, fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		return mailclient.Message{
			To:      p.Recipient,
			Subject: "Your interview has been canceled",
			Text: fmt.Sprintf("Hi %s,\n\nYour interview scheduled for %s has been canceled.\n",
				p.CandidateName, p.StartsAt.Format("Mon, 02 Jan 2006 15:04 MST")),
		}, nil

	case TypeBookingRescheduled:
		var p ReschedulePayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return mailclient.Message{}, fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		return mailclient.Message{
			To:      p.Recipient,
			Subject: "Your interview has been rescheduled",
			Text: fmt.Sprintf("Hi %s,\n\nYour interview has moved from %s to %s.\n",
				p.CandidateName,
				p.OldStartsAt.Format("Mon, 02 Jan 2006 15:04 MST"),
				p.StartsAt.Format("Mon, 02 Jan 2006 15:04 MST")),
		}, nil

	case TypeInterviewReminder:
		var p ReminderPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return mailclient.Message{}, fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		return mailclient.Message{
			To:      p.Recipient,
			Subject: "Interview reminder",
			Text: fmt.Sprintf("Hi %s,\n\nThis is a reminder that your interview starts at %s.\n",
				p.CandidateName, p.StartsAt.Format("Mon, 02 Jan 2006 15:04 MST")),
		}, nil

	default:
		return mailclient.Message{}, fmt.Errorf("unsupported notification type: %s", job.Type)
	}
}
