package cds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig

	// RequestTimeout bounds each API call. Downloads are not bounded.
	RequestTimeout time.Duration
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnavailable   = errors.New("service unavailable")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// StatusError is returned for non-retryable 4xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status code: %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("unexpected status code: %d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
}

// doRequestWithResilience executes the HTTP request with retries, exponential backoff,
// and a circuit breaker. Client errors other than 429 are returned without retrying,
// and non-GET requests are only retried when retryable allows it.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest(ctx)
		if err != nil {
			return nil, err
		}

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			// Handle rate limiting and server errors explicitly.
			if resp.StatusCode == http.StatusTooManyRequests {
				drain(resp)
				return nil, errRateLimited
			}
			if resp.StatusCode == http.StatusServiceUnavailable {
				msg := errorMessage(resp)
				return nil, fmt.Errorf("%w: %d %s", errUnavailable, resp.StatusCode, msg)
			}
			if resp.StatusCode >= 500 {
				msg := errorMessage(resp)
				return nil, fmt.Errorf("%w: %d %s", errServerError, resp.StatusCode, msg)
			}
			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				// A rejected request is the caller's fault; retrying cannot help.
				return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(resp)}
			}
			return resp, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if !retryable(req.Method, err) || attempt >= cfg.Backoff.MaxRetries {
			return nil, lastErr
		}

		if err := sleep(ctx, backoffDelay(cfg.Backoff, attempt)); err != nil {
			return nil, err
		}
		attempt++
	}
}

// retryable reports whether a failed attempt may be repeated. GETs always may.
// Other methods are only repeated when the server cannot have acted on the
// request: it was rate limited, refused as unavailable, or never connected.
func retryable(method string, err error) bool {
	if method == http.MethodGet || method == http.MethodHead {
		return true
	}
	if errors.Is(err, errRateLimited) || errors.Is(err, errUnavailable) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func backoffDelay(b BackoffConfig, attempt int) time.Duration {
	delay := b.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
	if delay > b.MaxInterval && b.MaxInterval > 0 {
		delay = b.MaxInterval
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// errorMessage consumes and closes the body, returning the most useful
// human-readable part of an API error document.
func errorMessage(resp *http.Response) string {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return ""
	}

	var doc struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &doc) == nil && (doc.Title != "" || doc.Detail != "") {
		if doc.Title != "" && doc.Detail != "" {
			return doc.Title + ": " + doc.Detail
		}
		return doc.Title + doc.Detail
	}
	return strings.TrimSpace(string(body))
}
