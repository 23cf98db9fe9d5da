package mailclient

import (
	"fmt"
)

// APIError is a non-2xx response from the mail transport. Status drives the
// caller's permanent/transient classification.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mail api error (%d): %s", e.Status, e.Message)
}

// Retryable reports whether the transport itself may retry the request
// without risking a duplicate business effect.
func (e *APIError) Retryable() bool {
	switch {
	case e.Status == 408, e.Status == 429:
		return true
	case e.Status >= 500:
		return true
	default:
		return false
	}
}
