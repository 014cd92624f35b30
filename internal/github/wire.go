package github

import (
	"sort"
	"strings"
	"time"

	"github.com/tftio/org-gh/internal/types"
)

// issue is the wire shape of an issue from the REST API.
type issue struct {
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	State       string     `json:"state"`
	StateReason string     `json:"state_reason,omitempty"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
	Labels      []label    `json:"labels"`
	Assignees   []user     `json:"assignees,omitempty"`
	HTMLURL     string     `json:"html_url"`
	PullRequest *pullRef   `json:"pull_request,omitempty"`
}

// pullRef is non-nil when an "issue" is actually a pull request; the
// issues endpoint returns both.
type pullRef struct {
	URL string `json:"url,omitempty"`
}

type user struct {
	Login string `json:"login"`
}

type label struct {
	Name string `json:"name"`
}

// timelineEvent is the wire shape of one timeline entry. Only the
// event kinds ingested into the outline's log section are decoded.
type timelineEvent struct {
	Event     string     `json:"event"`
	Actor     *user      `json:"actor,omitempty"`
	User      *user      `json:"user,omitempty"` // comments carry the author here
	Body      string     `json:"body,omitempty"`
	CommitID  string     `json:"commit_id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Source    *struct {
		Issue *issue `json:"issue,omitempty"`
	} `json:"source,omitempty"`
}

func (i *issue) toRecord() types.RemoteIssue {
	rec := types.RemoteIssue{
		Number:      i.Number,
		Title:       i.Title,
		Body:        strings.ReplaceAll(i.Body, "\r\n", "\n"),
		State:       types.State(i.State),
		StateReason: i.StateReason,
		HTMLURL:     i.HTMLURL,
	}
	for _, l := range i.Labels {
		rec.Labels = append(rec.Labels, l.Name)
	}
	for _, a := range i.Assignees {
		rec.Assignees = append(rec.Assignees, a.Login)
	}
	if i.CreatedAt != nil {
		rec.CreatedAt = *i.CreatedAt
	}
	if i.UpdatedAt != nil {
		rec.UpdatedAt = *i.UpdatedAt
	}
	return rec
}

// toEvents converts a timeline to the ingested event sequence, in
// chronological order. A close that follows a pull-request
// cross-reference is attributed to that pull request, matching how the
// tracker presents merges that close issues.
func toEvents(timeline []timelineEvent) []types.Event {
	var out []types.Event
	lastPR := 0
	for _, te := range timeline {
		var ev types.Event
		switch te.Event {
		case "commented":
			ev = types.Event{Kind: types.EventComment, Body: te.Body}
			if te.User != nil {
				ev.Actor = te.User.Login
			} else if te.Actor != nil {
				ev.Actor = te.Actor.Login
			}
		case "cross-referenced":
			if te.Source == nil || te.Source.Issue == nil || te.Source.Issue.PullRequest == nil {
				continue
			}
			lastPR = te.Source.Issue.Number
			ev = types.Event{Kind: types.EventPRLinked, PRNumber: lastPR}
			if te.Actor != nil {
				ev.Actor = te.Actor.Login
			}
		case "closed":
			ev = types.Event{Kind: types.EventClosed}
			if te.Actor != nil {
				ev.Actor = te.Actor.Login
			}
			if te.CommitID != "" || lastPR != 0 {
				ev.PRNumber = lastPR
			}
		default:
			continue
		}
		if te.CreatedAt != nil {
			ev.Timestamp = *te.CreatedAt
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// FirstLine returns the first line of a comment body, trimmed, for
// one-line log rendering.
func FirstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(strings.TrimSuffix(s, "\r"))
}
