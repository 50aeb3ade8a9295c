package crawler

import "time"

// SetRetryPolicy replaces the spider's retry policy so tests do not wait
// for production backoff delays.
func (s *Spider) SetRetryPolicy(maxRetries int, delay time.Duration) {
	s.retry = &RetryPolicy{maxRetries: maxRetries, baseDelay: delay, maxDelay: delay}
}
