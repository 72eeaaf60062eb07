// Package httpretry posts request bodies to collaborator services with
// exponential backoff. Transport errors and 5xx/429 responses are retried;
// other 4xx responses fail immediately.
package httpretry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// StatusError is a non-2xx response from a collaborator.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.Status, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// Policy bounds the retries of one call.
type Policy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultPolicy retries three times starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  2 * time.Minute,
	}
}

func (p Policy) backoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	bo.MaxElapsedTime = p.MaxElapsedTime
	return backoff.WithContext(backoff.WithMaxRetries(bo, p.MaxRetries), ctx)
}

// Attempt describes one finished try, for logging and metrics.
type Attempt struct {
	N   int
	Err error
}

// Post sends body to url until it gets a 2xx, a permanent error, or the
// policy gives up. The response body of the successful attempt is returned.
func Post(ctx context.Context, client *http.Client, service, url, contentType string, body []byte, p Policy, observe func(Attempt)) ([]byte, error) {
	var out []byte
	n := 0
	op := func() error {
		n++
		data, err := post(ctx, client, service, url, contentType, body)
		if observe != nil {
			observe(Attempt{N: n, Err: err})
		}
		if err != nil {
			return classify(err)
		}
		out = data
		return nil
	}
	if err := backoff.Retry(op, p.backoff(ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

// classify marks errors carrying a non-retryable StatusError as permanent.
func classify(err error) error {
	var se *StatusError
	if errors.As(err, &se) && !se.Retryable() {
		return backoff.Permanent(err)
	}
	return err
}

func post(ctx context.Context, client *http.Client, service, url, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", service, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Service: service, Status: resp.StatusCode, Body: truncate(string(data), 512)}
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
