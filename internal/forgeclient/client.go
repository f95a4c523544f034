// Package forgeclient makes the one HTTP call this system needs: a GET
// against the forge's rate-limit endpoint. It owns HTTP error
// classification; the reducer and rate-limit control never see a raw
// *http.Response.
package forgeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/ratewatch/ci-rate-monitor/internal/model"
	"github.com/ratewatch/ci-rate-monitor/internal/ratelimit"
	"github.com/ratewatch/ci-rate-monitor/internal/rmerrors"
)

// FetchTimeout is the per-request timeout for the rate-limit fetch.
const FetchTimeout = 10 * time.Second

// selfThrottleRate and selfThrottleBurst are the local token-bucket
// floor under the planner's own delay: a guard so a planner bug can
// never turn into a tight fetch loop that consumes the very quota
// being measured.
const (
	selfThrottleRate  = 1 // requests per second
	selfThrottleBurst = 2
)

// HTTPDoer is the minimal interface this client needs, so tests can
// substitute a fake transport without standing up a real server.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches the rate-limit snapshot from a forge's HTTP API.
type Client struct {
	http    HTTPDoer
	baseURL string
	token   string
	accept  string
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithAcceptHeader overrides the default Accept header, for forges that
// version their API differently.
func WithAcceptHeader(accept string) Option {
	return func(c *Client) { c.accept = accept }
}

// WithHTTPDoer overrides the transport, primarily for tests.
func WithHTTPDoer(d HTTPDoer) Option {
	return func(c *Client) { c.http = d }
}

// New builds a Client against baseURL (e.g. https://api.github.com)
// using token as the bearer credential.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: FetchTimeout},
		baseURL: baseURL,
		token:   token,
		accept:  "application/vnd.github.v3+json",
		limiter: rate.NewLimiter(rate.Limit(selfThrottleRate), selfThrottleBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rateLimitWire struct {
	Resources map[string]struct {
		Limit     int64 `json:"limit"`
		Used      int64 `json:"used"`
		Remaining int64 `json:"remaining"`
		Reset     int64 `json:"reset"`
	} `json:"resources"`
}

// FetchRateLimit performs the GET and returns either the parsed
// response or a typed error from internal/rmerrors. The default
// transport applies FetchTimeout to the request; FetchRateLimit also
// waits on the self-throttle limiter before issuing it.
func (c *Client) FetchRateLimit(ctx context.Context) (model.RateLimitResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &rmerrors.TransportError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rate_limit", nil)
	if err != nil {
		return nil, &rmerrors.TransportError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", c.accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &rmerrors.TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &rmerrors.TransportError{Err: err}
	}

	if resp.StatusCode == http.StatusOK {
		var wire rateLimitWire
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, &rmerrors.ParseError{Err: err}
		}
		out := make(model.RateLimitResponse, len(wire.Resources))
		for name, r := range wire.Resources {
			out[name] = model.RateLimitSample{
				Limit:     r.Limit,
				Used:      r.Used,
				Remaining: r.Remaining,
				Reset:     r.Reset,
			}
		}
		return out, nil
	}

	httpErr := &rmerrors.HTTPError{Status: resp.StatusCode, Body: string(body)}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		httpErr.RateLimit = classificationDetails(resp, body)
	}
	return nil, httpErr
}

func classificationDetails(resp *http.Response, body []byte) *ratelimit.ErrorDetails {
	details := &ratelimit.ErrorDetails{Status: resp.StatusCode}

	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		details.Message = parsed.Message
	}

	if v := resp.Header.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			details.RateLimitRemaining = &n
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			details.Reset = &n
		}
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			details.RetryAfterSeconds = &n
		}
	}
	return details
}

// String implements fmt.Stringer for debug logs without leaking the
// token.
func (c *Client) String() string {
	return fmt.Sprintf("forgeclient(base=%s)", c.baseURL)
}
