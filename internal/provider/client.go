// Package provider fetches odds and fixtures from upstream HTTP APIs.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fixture-edge/internal/domain"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	maxErrorBody      = 512
)

// StatusError is a non-200 upstream response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Code, e.Body)
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// client is the shared HTTP plumbing for upstream APIs: rate limiting, bounded
// retry with exponential backoff on 429/5xx, and classified errors.
type client struct {
	name       string
	http       *http.Client
	baseURL    string
	header     http.Header
	limiter    *rate.Limiter
	tracer     trace.Tracer
	maxRetries int
	newBackOff func() backoff.BackOff
}

type Option func(*client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithRateLimit allows rps requests per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(c *client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *client) { c.newBackOff = f }
}

func newClient(name, baseURL string, tracer trace.Tracer, opts ...Option) *client {
	c := &client{
		name:       name,
		http:       &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		header:     make(http.Header),
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
		tracer:     tracer,
		maxRetries: defaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getJSON fetches path with query and decodes the body into out.
func (c *client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.Wrap(domain.KindUpstream, "decode", fmt.Errorf("parse %s response: %w", c.name, err))
	}
	return nil
}

func (c *client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, c.name+".get")
	defer span.End()
	span.SetAttributes(attribute.String("path", path))

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	attempts := 0
	op := func() ([]byte, error) {
		attempts++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("rate limit wait: %w", err))
		}
		return c.do(ctx, u)
	}

	body, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
	)
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.Wrap(domain.KindUpstream, upstreamReason(err), fmt.Errorf("%s %s after %d attempts: %w", c.name, path, attempts, err))
	}
	return body, nil
}

func (c *client) do(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return io.ReadAll(resp.Body)
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := &StatusError{Provider: c.name, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	if !retryable(resp.StatusCode) {
		return nil, backoff.Permanent(statusErr)
	}
	if secs := retryAfterSeconds(resp.Header.Get("Retry-After")); secs > 0 {
		return nil, errors.Join(statusErr, backoff.RetryAfter(secs))
	}
	return nil, statusErr
}

func retryAfterSeconds(v string) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return min(n, 60)
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return min(int(d.Seconds())+1, 60)
		}
	}
	return 0
}

func upstreamReason(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return "http_" + strconv.Itoa(se.Code)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "deadline"
	}
	return "transport"
}
