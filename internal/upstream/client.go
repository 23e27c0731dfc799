package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
	"github.com/CodeNoob53/funding-calculator-server/internal/platform/retry"
	"github.com/CodeNoob53/funding-calculator-server/internal/platform/version"
)

const (
	secretHeader = "coinglassSecret"
	maxBodyBytes = 32 << 20

	breakerFailures = 5
	breakerTimeout  = 30 * time.Second
)

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Config configures a Client.
type Config struct {
	URL         string
	APIKey      string
	MaxAttempts int
	HTTPClient  *http.Client
}

// Client fetches snapshots from the provider.
type Client struct {
	url     string
	apiKey  string
	http    *http.Client
	policy  retry.Policy
	breaker *gobreaker.CircuitBreaker
}

var _ domain.Fetcher = (*Client)(nil)

func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &Client{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		http:   httpClient,
		policy: retry.Policy{
			MaxAttempts:      attempts,
			InitialBackoff:   250 * time.Millisecond,
			MaxBackoff:       2 * time.Second,
			RateLimitBackoff: 2 * time.Second,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				slog.Warn("Upstream fetch failed, retrying",
					"attempt", attempt, "backoff", backoff, "error", err)
			},
		},
		breaker: newBreaker(breakerFailures, breakerTimeout),
	}
}

func newBreaker(failures uint32, timeout time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"component", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerStateChanges.WithLabelValues(name, to.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Fetch retrieves and validates the current snapshot. The returned error
// always wraps domain.ErrUpstreamUnavailable.
func (c *Client) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return retry.Do(ctx, c.policy, classify, c.fetchOnce)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.UpstreamRequestsTotal.WithLabelValues("breaker_open").Inc()
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}
	return result.(*domain.Snapshot), nil
}

func (c *Client) fetchOnce(ctx context.Context) (*domain.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(secretHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UpstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	snapshot, err := Decode(body)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("malformed").Inc()
		return nil, err
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	return snapshot, nil
}

// classify maps a single-attempt failure to a retry action.
func classify(err error) retry.Action {
	if errors.Is(err, domain.ErrMalformedShape) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return retry.After
		case statusErr.StatusCode >= 500:
			return retry.Retry
		default:
			return retry.Stop
		}
	}

	return retry.Retry
}

// Decode validates the provider document shape and converts it into a
// snapshot. The body must be an object with "code", "msg" and an array
// "data"; anything else wraps domain.ErrMalformedShape.
func Decode(body []byte) (*domain.Snapshot, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedShape, err)
	}

	for _, key := range []string{"code", "msg", "data"} {
		if _, ok := doc[key]; !ok {
			return nil, fmt.Errorf("%w: missing %q", domain.ErrMalformedShape, key)
		}
	}

	data := bytes.TrimSpace(doc["data"])
	if len(data) == 0 || data[0] != '[' {
		return nil, fmt.Errorf("%w: \"data\" is not an array", domain.ErrMalformedShape)
	}

	var entries []domain.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedShape, err)
	}
	if entries == nil {
		entries = []domain.Entry{}
	}

	return &domain.Snapshot{
		Code:    scalarText(doc["code"]),
		Message: scalarText(doc["msg"]),
		Entries: entries,
	}, nil
}

// scalarText renders a JSON string as its value and any other scalar as its
// literal text, so "0" and 0 both yield "0".
func scalarText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	text := string(bytes.TrimSpace(raw))
	if text == "null" {
		return ""
	}
	return text
}
