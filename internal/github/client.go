// Package github implements the remote adapter against the GitHub REST
// API: issue listing with pagination, creation, sparse updates, state
// changes, and timeline event retrieval.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tftio/org-gh/internal/types"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"

	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxAttempts bounds retries of transient failures.
	DefaultMaxAttempts = 4

	// DefaultConcurrency bounds parallel in-flight calls during the
	// fetch phase.
	DefaultConcurrency = 4

	// MaxPageSize is the page size requested from list endpoints.
	MaxPageSize = 100

	// MaxPages stops pagination on malformed Link headers.
	MaxPages = 1000

	// maxRetryAfter caps how long a Retry-After header can stall us.
	maxRetryAfter = 60 * time.Second
)

// Client talks to one repository over the GitHub REST API.
type Client struct {
	Token         string
	Owner         string
	Repo          string
	BaseURL       string
	HTTPClient    *http.Client
	MaxAttempts   int
	Concurrency   int
	RetryInterval time.Duration // base backoff delay between attempts
}

// NewClient creates a client bound to owner/repo.
func NewClient(token, owner, repo string) *Client {
	return &Client{
		Token:       token,
		Owner:       owner,
		Repo:        repo,
		BaseURL:     DefaultAPIEndpoint,
		HTTPClient:  &http.Client{Timeout: DefaultTimeout},
		MaxAttempts:   DefaultMaxAttempts,
		Concurrency:   DefaultConcurrency,
		RetryInterval: time.Second,
	}
}

// WithBaseURL returns a client targeting a different API endpoint (for
// GitHub Enterprise or tests).
func (c *Client) WithBaseURL(baseURL string) *Client {
	dup := *c
	dup.BaseURL = baseURL
	return &dup
}

// WithHTTPClient returns a client using a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	dup := *c
	dup.HTTPClient = httpClient
	return &dup
}

func (c *Client) repoPath() string {
	return c.Owner + "/" + c.Repo
}

func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}
	return u
}

// request performs one API call with retry. Transient failures (network
// errors, 5xx, rate limiting) are retried with exponential backoff up
// to MaxAttempts; everything else fails immediately as a permanent
// *types.RemoteError.
func (c *Client) request(ctx context.Context, method, urlStr string, body any) ([]byte, http.Header, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, nil, types.NewPermanentRemoteError("marshaling request body", err)
		}
	}

	var respBody []byte
	var respHeader http.Header
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.RetryInterval
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = time.Second
	}
	bo.MaxElapsedTime = 0

	op := func() error {
		b, h, err := c.do(ctx, method, urlStr, payload)
		if err != nil {
			var re *types.RemoteError
			if errors.As(err, &re) && !re.Transient {
				return backoff.Permanent(err)
			}
			return err
		}
		respBody, respHeader = b, h
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
	if err != nil {
		var re *types.RemoteError
		if errors.As(err, &re) {
			if re.Transient {
				// The retry ceiling converts exhausted transients to permanent.
				return nil, nil, types.NewPermanentRemoteError(
					fmt.Sprintf("giving up after %d attempts: %s", attempts, re.Msg), re.Err)
			}
			return nil, nil, re
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, types.NewPermanentRemoteError("request failed", err)
	}
	return respBody, respHeader, nil
}

// do performs a single HTTP exchange and classifies the outcome.
func (c *Client) do(ctx context.Context, method, urlStr string, payload []byte) ([]byte, http.Header, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return nil, nil, types.NewPermanentRemoteError("creating request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, types.NewTransientRemoteError("request failed", err)
	}

	const maxResponseSize = 50 * 1024 * 1024
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	_ = resp.Body.Close()
	if err != nil {
		return nil, nil, types.NewTransientRemoteError("reading response", err)
	}

	// GitHub signals rate limiting as 429, or 403 with the remaining
	// quota at zero. Honor Retry-After before reporting transient.
	if resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0") {
		if wait := retryAfter(resp.Header); wait > 0 {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		return nil, nil, types.NewTransientRemoteError("rate limited", nil)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, resp.Header, nil
	case resp.StatusCode >= 500:
		return nil, nil, types.NewTransientRemoteError(
			fmt.Sprintf("server error %d", resp.StatusCode), nil)
	default:
		return nil, nil, types.NewPermanentRemoteError(
			fmt.Sprintf("API error %d: %s", resp.StatusCode, apiMessage(respBody)), nil)
	}
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds <= 0 {
		return 0
	}
	wait := time.Duration(seconds) * time.Second
	if wait > maxRetryAfter {
		wait = maxRetryAfter
	}
	return wait
}

// apiMessage extracts GitHub's error message field, falling back to the
// raw body.
func apiMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	s := string(body)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// linkNextPattern matches the "next" relation in Link headers.
var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

func hasNextPage(headers http.Header) (string, bool) {
	link := headers.Get("Link")
	if link == "" {
		return "", false
	}
	matches := linkNextPattern.FindStringSubmatch(link)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}
