package mailclient

import (
	"time"
)

type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Do runs fn up to MaxRetries+1 times with linear delay. Only retryable
// failures are re-attempted; the outbound queue owns longer-horizon retry.
func (r RetryPolicy) Do(fn func() error, retryable func(error) bool) error {
	var err error
	for i := 0; i <= r.MaxRetries; i++ {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
		time.Sleep(r.BaseDelay * time.Duration(i+1))
	}
	return err
}
