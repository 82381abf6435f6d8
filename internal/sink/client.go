// Package sink implements the HTTP client that forwards a rendered webhook
// message to the configured downstream sink: Basic-authenticated POSTs over
// a pooled, retrying connection, classifying the outcome into a terminal
// rejection or a retry-exhausted unavailability.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/worldline-go/klient"
)

const (
	defaultAttempts    = 3
	defaultTimeout     = 30 * time.Second
	defaultBackoffBase = 200 * time.Millisecond
)

// Message is the JSON body POSTed to the sink.
type Message struct {
	Message         string `json:"message"`
	AlignedResource string `json:"aligned_resource,omitempty"`
}

// Client sends rendered messages to a single configured sink URL.
type Client struct {
	url      string
	username string
	password string

	attempts int
	timeout  time.Duration

	http *klient.Client
}

// Option configures a Client at construction time.
type Option func(*Client)

func WithAttempts(n int) Option           { return func(c *Client) { c.attempts = n } }
func WithTimeout(d time.Duration) Option  { return func(c *Client) { c.timeout = d } }

// New builds a Client posting to url with Basic auth credentials. The
// underlying transport has klient's own retry disabled: attempt counting
// and backoff between attempts are governed explicitly by this package so
// 3xx/4xx terminal rejections are never retried while 5xx and network
// errors are, per attempts/timeout.
func New(url, username, password string, opts ...Option) (*Client, error) {
	c := &Client{
		url:      url,
		username: username,
		password: password,
		attempts: defaultAttempts,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	httpClient, err := klient.New(
		klient.WithDisableBaseURLCheck(true),
		klient.WithLogger(slog.Default()),
		klient.WithDisableRetry(true),
		klient.WithDisableEnvValues(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create sink http client: %w", err)
	}
	c.http = httpClient

	return c, nil
}

// Send posts msg to the sink, retrying on network errors and 5xx responses
// up to c.attempts times with exponential backoff. A 3xx or 4xx response is
// treated as a terminal rejection and never retried.
func (c *Client) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal sink message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoff(attempt)); err != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}

		status, err := c.attempt(ctx, body)
		if err == nil {
			return nil
		}

		var rejected *rejectionError
		if errors.As(err, &rejected) {
			return fmt.Errorf("%w: status %d", ErrRejected, rejected.status)
		}

		lastErr = err
		_ = status
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

type rejectionError struct {
	status int
}

func (e *rejectionError) Error() string {
	return fmt.Sprintf("sink rejected with status %d", e.status)
}

func (c *Client) attempt(ctx context.Context, body []byte) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	var status int
	err = c.http.Do(req, func(r *http.Response) error {
		status = r.StatusCode
		_, _ = io.Copy(io.Discard, r.Body)

		if status >= 200 && status < 300 {
			return nil
		}
		if status >= 300 && status < 500 {
			return &rejectionError{status: status}
		}
		return fmt.Errorf("sink responded with status %d", status)
	})
	if err != nil {
		return status, err
	}
	return status, nil
}

func backoff(attempt int) time.Duration {
	return time.Duration(float64(defaultBackoffBase) * math.Pow(2, float64(attempt-1)))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
