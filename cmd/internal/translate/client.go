package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// httpError marks a non-2xx response so the retry loop can distinguish
// server-side failures (retryable) from client-side ones (not).
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("translate: http %d: %s", e.status, e.body)
}

func (e *httpError) retryable() bool { return e.status >= 500 }

// breakerClient posts form-encoded requests with retries behind a circuit
// breaker. All Google backend calls go through it.
type breakerClient struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]

	maxRetries int
	backoff    time.Duration
}

func newBreakerClient(cfg Config) *breakerClient {
	settings := gobreaker.Settings{
		Name:    "translate",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			switch to {
			case gobreaker.StateClosed:
				breakerState.Set(0)
			case gobreaker.StateHalfOpen:
				breakerState.Set(1)
			case gobreaker.StateOpen:
				breakerState.Set(2)
			}
		},
	}

	return &breakerClient{
		http:       &http.Client{Timeout: cfg.RequestTimeout},
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
	}
}

// postForm sends one form POST, retrying transient failures. Each attempt is
// a separate breaker execution so consecutive failures trip it.
func (c *breakerClient) postForm(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		body, err := c.breaker.Execute(func() ([]byte, error) {
			return c.doOnce(ctx, rawURL, form)
		})
		if err == nil {
			return body, nil
		}
		lastErr = err

		if he, ok := err.(*httpError); ok && !he.retryable() {
			return nil, err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (c *breakerClient) doOnce(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpError{status: resp.StatusCode, body: truncate(string(body), 256)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
