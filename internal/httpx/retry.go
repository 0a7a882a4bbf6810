package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// StatusError is returned for upstream responses that are not 2xx.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned %s", e.Status)
	}
	return fmt.Sprintf("upstream returned %s: %s", e.Status, e.Body)
}

// Retrier sends requests, retrying transport errors, 429 and 5xx responses
// with exponential backoff. A non-nil Limiter throttles every attempt.
type Retrier struct {
	Client     *http.Client
	Limiter    *rate.Limiter
	MaxRetries int

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier returns a Retrier. rps <= 0 disables throttling.
func NewRetrier(client *http.Client, rps float64, maxRetries int) *Retrier {
	r := &Retrier{Client: client, MaxRetries: maxRetries}
	if rps > 0 {
		r.Limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
	return r
}

// Do builds a fresh request per attempt with newReq and returns the first 2xx
// response. The caller must close its body.
func (r *Retrier) Do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := r.Client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if attempt < r.MaxRetries {
				if err := r.wait(ctx, RetryDelay(attempt)); err != nil {
					return nil, err
				}
			}
			continue
		}
		if resp.StatusCode < 300 {
			return resp, nil
		}
		serr := readStatusError(resp)
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return nil, serr
		}
		lastErr = serr
		if attempt < r.MaxRetries {
			delay := RetryDelay(attempt)
			// Respect Retry-After if provided
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
				delay = time.Duration(secs) * time.Second
			}
			if err := r.wait(ctx, delay); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func (r *Retrier) wait(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func readStatusError(resp *http.Response) *StatusError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(body))}
}

// RetryDelay is an exponential backoff starting at 200ms, capped at 5s.
func RetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		return 5 * time.Second
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
