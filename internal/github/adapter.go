package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tftio/org-gh/internal/types"
)

// Client implements types.RemoteAdapter.
var _ types.RemoteAdapter = (*Client)(nil)

// CheckAccess verifies the repository exists and the token can read it.
func (c *Client) CheckAccess(ctx context.Context) error {
	urlStr := c.buildURL("/repos/"+c.repoPath(), nil)
	_, _, err := c.request(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return fmt.Errorf("verifying access to %s: %w", c.repoPath(), err)
	}
	return nil
}

// ListIssues fetches open and closed issues, paginated, excluding pull
// requests. With since set, only issues touched after that time are
// returned.
func (c *Client) ListIssues(ctx context.Context, since *time.Time) ([]types.RemoteIssue, error) {
	var all []types.RemoteIssue
	page := 1
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		params := map[string]string{
			"state":    "all",
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		}
		if since != nil {
			params["since"] = since.UTC().Format(time.RFC3339)
		}
		urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues", params)
		respBody, headers, err := c.request(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, fmt.Errorf("listing issues: %w", err)
		}

		var issues []issue
		if err := json.Unmarshal(respBody, &issues); err != nil {
			return nil, types.NewPermanentRemoteError("parsing issues response", err)
		}
		for i := range issues {
			if issues[i].PullRequest != nil {
				continue
			}
			all = append(all, issues[i].toRecord())
		}

		if _, ok := hasNextPage(headers); !ok {
			break
		}
		page++
		if page > MaxPages {
			return nil, types.NewPermanentRemoteError(
				fmt.Sprintf("pagination stopped after %d pages", MaxPages), nil)
		}
	}
	return all, nil
}

// GetIssue fetches one issue by number.
func (c *Client) GetIssue(ctx context.Context, number int) (*types.RemoteIssue, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	respBody, _, err := c.request(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching issue #%d: %w", number, err)
	}
	var i issue
	if err := json.Unmarshal(respBody, &i); err != nil {
		return nil, types.NewPermanentRemoteError("parsing issue response", err)
	}
	rec := i.toRecord()
	return &rec, nil
}

// CreateIssue creates an issue. Issues born closed take a follow-up
// state change, since the creation endpoint only makes open issues.
func (c *Client) CreateIssue(ctx context.Context, spec types.NewIssue) (*types.RemoteIssue, error) {
	reqBody := map[string]any{
		"title": spec.Title,
		"body":  spec.Body,
	}
	if len(spec.Labels) > 0 {
		reqBody["labels"] = spec.Labels
	}
	if len(spec.Assignees) > 0 {
		reqBody["assignees"] = spec.Assignees
	}

	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues", nil)
	respBody, _, err := c.request(ctx, http.MethodPost, urlStr, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating issue %q: %w", spec.Title, err)
	}
	var i issue
	if err := json.Unmarshal(respBody, &i); err != nil {
		return nil, types.NewPermanentRemoteError("parsing create response", err)
	}
	rec := i.toRecord()
	if spec.State == types.StateClosed {
		return c.SetIssueState(ctx, rec.Number, types.StateClosed, spec.Reason)
	}
	return &rec, nil
}

// UpdateIssue applies a sparse patch via PATCH; nil fields are omitted
// from the request and untouched on the remote.
func (c *Client) UpdateIssue(ctx context.Context, number int, patch types.IssuePatch) (*types.RemoteIssue, error) {
	reqBody := map[string]any{}
	if patch.Title != nil {
		reqBody["title"] = *patch.Title
	}
	if patch.Body != nil {
		reqBody["body"] = *patch.Body
	}
	if patch.Assignees != nil {
		reqBody["assignees"] = *patch.Assignees
	}
	if patch.Labels != nil {
		reqBody["labels"] = *patch.Labels
	}
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	respBody, _, err := c.request(ctx, http.MethodPatch, urlStr, reqBody)
	if err != nil {
		return nil, fmt.Errorf("updating issue #%d: %w", number, err)
	}
	var i issue
	if err := json.Unmarshal(respBody, &i); err != nil {
		return nil, types.NewPermanentRemoteError("parsing update response", err)
	}
	rec := i.toRecord()
	return &rec, nil
}

// SetIssueState opens or closes an issue, with a closure reason on
// closes.
func (c *Client) SetIssueState(ctx context.Context, number int, state types.State, reason string) (*types.RemoteIssue, error) {
	reqBody := map[string]any{"state": string(state)}
	if state == types.StateClosed && reason != "" {
		reqBody["state_reason"] = reason
	}
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	respBody, _, err := c.request(ctx, http.MethodPatch, urlStr, reqBody)
	if err != nil {
		return nil, fmt.Errorf("setting state of issue #%d: %w", number, err)
	}
	var i issue
	if err := json.Unmarshal(respBody, &i); err != nil {
		return nil, types.NewPermanentRemoteError("parsing state response", err)
	}
	rec := i.toRecord()
	return &rec, nil
}

// ListEvents fetches the issue timeline and reduces it to the ingested
// event kinds, optionally filtered to events after since.
func (c *Client) ListEvents(ctx context.Context, number int, since *time.Time) ([]types.Event, error) {
	var timeline []timelineEvent
	page := 1
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		params := map[string]string{
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		}
		urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number)+"/timeline", params)
		respBody, headers, err := c.request(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, fmt.Errorf("listing events for issue #%d: %w", number, err)
		}

		var events []timelineEvent
		if err := json.Unmarshal(respBody, &events); err != nil {
			return nil, types.NewPermanentRemoteError("parsing timeline response", err)
		}
		timeline = append(timeline, events...)

		if _, ok := hasNextPage(headers); !ok {
			break
		}
		page++
		if page > MaxPages {
			return nil, types.NewPermanentRemoteError(
				fmt.Sprintf("pagination stopped after %d pages", MaxPages), nil)
		}
	}

	all := toEvents(timeline)
	if since == nil {
		return all, nil
	}
	out := all[:0]
	for _, ev := range all {
		if ev.Timestamp.After(*since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// FetchEventsBulk retrieves events for many issues with bounded
// parallelism. Per-issue failures abort the fetch: event ingestion is
// read-only and rerunning it is free.
func (c *Client) FetchEventsBulk(ctx context.Context, since map[int]time.Time) (map[int][]types.Event, error) {
	limit := c.Concurrency
	if limit < 1 {
		limit = 1
	}

	numbers := make([]int, 0, len(since))
	for n := range since {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var mu sync.Mutex
	out := make(map[int][]types.Event, len(numbers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, n := range numbers {
		after := since[n]
		g.Go(func() error {
			events, err := c.ListEvents(gctx, n, &after)
			if err != nil {
				return err
			}
			mu.Lock()
			out[n] = events
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
