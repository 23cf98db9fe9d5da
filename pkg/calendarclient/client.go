package calendarclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Client talks to the calendar provider's REST API.
type Client struct {
	cfg  Config
	http *http.Client
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func LoadFromEnv() Config {
	timeout := 10
	if v := os.Getenv("CALENDAR_CLIENT_TIMEOUT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			timeout = i
		}
	}
	return Config{
		BaseURL: os.Getenv("CALENDAR_CLIENT_URL"),
		APIKey:  os.Getenv("CALENDAR_API_KEY"),
		Timeout: time.Second * time.Duration(timeout),
	}
}

func NewFromEnv() *Client {
	return New(LoadFromEnv())
}

func New(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// APIError is a non-2xx response from the calendar provider.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("calendar api error (%d): %s", e.Status, e.Message)
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
