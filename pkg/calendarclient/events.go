package calendarclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"
)

// Event mirrors the provider's calendar event resource.
type Event struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
	Status    string    `json:"status"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Attendees []string  `json:"attendees"`
}

// Canceled reports whether the provider considers the event canceled.
type CreateEventRequest struct {
	Summary   string    `json:"summary"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Attendees []string  `json:"attendees"`

	// RequestKey deduplicates creates on the provider side so a repeated
	// repair cannot produce two events.
	RequestKey string `json:"request_key,omitempty"`
}

func (e *Event) Canceled() bool {
	return e.Status == "cancelled" || e.Status == "canceled"
}

// GetEvent fetches one event. Returns nil, nil when the event does not exist.
func (c *Client) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	var event Event
	err := c.doRequest(ctx, http.MethodGet, "/v1/events/"+url.PathEscape(eventID), nil, &event)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// CreateEvent creates a calendar event.
func (c *Client) CreateEvent(ctx context.Context, req CreateEventRequest) (*Event, error) {
	var event Event
	if err := c.doRequest(ctx, http.MethodPost, "/v1/events", req, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// DeleteEvent removes an event. Deleting an already-absent event succeeds.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	err := c.doRequest(ctx, http.MethodDelete, "/v1/events/"+url.PathEscape(eventID), nil, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil
		}
	}
	return err
}
