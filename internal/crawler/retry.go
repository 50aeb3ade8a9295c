package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy decides whether a failed fetch is retried and how long to wait.
type RetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryPolicy builds a jittered exponential policy allowing maxRetries
// extra attempts per URL.
func NewRetryPolicy(maxRetries int) *RetryPolicy {
	return &RetryPolicy{
		maxRetries: maxRetries,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
	}
}

// ShouldRetry reports whether a fetch that failed with err and status may be
// attempted again. attempt counts the retries already made.
func (p *RetryPolicy) ShouldRetry(err error, status, attempt int) bool {
	if p == nil || attempt >= p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch {
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return true
	case status != 0:
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return err != nil
}

// Backoff returns the wait before retry number attempt+1. A Retry-After
// value in seconds raises the wait, capped at the policy maximum.
func (p *RetryPolicy) Backoff(attempt int, retryAfter string) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	wait := time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
		hinted := time.Duration(secs) * time.Second
		if hinted > p.maxDelay {
			hinted = p.maxDelay
		}
		if hinted > wait {
			wait = hinted
		}
	}
	return wait
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// pause blocks for delay or until ctx is done.
func pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
