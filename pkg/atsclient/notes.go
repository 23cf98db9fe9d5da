package atsclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"
)

// Note mirrors the ATS interview-note resource.
type Note struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`
}

// Application mirrors the ATS application resource, read-only.
type Application struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type CreateNoteRequest struct {
	ApplicationID string `json:"application_id"`
	Body          string `json:"body"`
}

// GetNote fetches one note. Returns nil, nil when the note does not exist.
func (c *Client) GetNote(ctx context.Context, noteID string) (*Note, error) {
	var note Note
	err := c.doRequest(ctx, http.MethodGet, "/v1/notes/"+url.PathEscape(noteID), nil, nil, &note)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &note, nil
}

// CreateNote submits a note. idempotencyKey deduplicates on the ATS side, so
// a repeated repair resubmission returns the original note.
func (c *Client) CreateNote(ctx context.Context, req CreateNoteRequest, idempotencyKey string) (*Note, error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}

	var note Note
	if err := c.doRequest(ctx, http.MethodPost, "/v1/notes", headers, req, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// GetApplication fetches an application's current state, read-only.
// Returns nil, nil when the application does not exist.
func (c *Client) GetApplication(ctx context.Context, applicationID string) (*Application, error) {
	var app Application
	err := c.doRequest(ctx, http.MethodGet, "/v1/applications/"+url.PathEscape(applicationID), nil, nil, &app)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &app, nil
}
