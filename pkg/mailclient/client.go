package mailclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Client talks to the transactional mail transport over HTTP.
type Client struct {
	cfg     Config
	http    *http.Client
	retry   RetryPolicy
	limiter *RateLimiter
	breaker CircuitBreaker
}

func NewFromEnv() *Client {
	return New(LoadFromEnv())
}

func New(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		retry: RetryPolicy{
			MaxRetries: cfg.RetryCount,
			BaseDelay:  cfg.RetryDelay,
		},
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		breaker: NewCircuitBreaker(cfg),
	}
}

// Message is one rendered outbound email.
type Message struct {
	To      string            `json:"to"`
	From    string            `json:"from,omitempty"`
	Subject string            `json:"subject"`
	Text    string            `json:"text,omitempty"`
	HTML    string            `json:"html,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

// Send dispatches one message. The transport regards sends as non-idempotent,
// so only transport-level failures (connect errors, 429, 5xx) are retried here.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if msg.From == "" {
		msg.From = c.cfg.Sender
	}

	return c.breaker.Execute(func() error {
		return c.retry.Do(func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			var out sendResponse
			return c.doRequest(ctx, http.MethodPost, "/v1/messages", msg, &out)
		}, func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Retryable()
			}
			// Transport-level failures (DNS, connect, timeout) are retryable.
			return ctx.Err() == nil
		})
	})
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	url := c.cfg.BaseURL + path

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			apiErr.Message = resp.Status
			return apiErr
		}
		if err := json.Unmarshal(bodyBytes, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("%s: %s", resp.Status, string(bodyBytes))
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return err
		}
	}

	return nil
}
