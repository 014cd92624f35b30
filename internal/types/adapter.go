package types

import (
	"context"
	"time"
)

// RemoteAdapter is the tracker surface the engine consumes. The
// repository is bound at construction; every call may fail with a
// *RemoteError whose Transient flag drives the retry policy.
type RemoteAdapter interface {
	// CheckAccess verifies the repository is reachable and readable.
	CheckAccess(ctx context.Context) error

	// ListIssues returns issues created or modified since the given
	// time, or all issues when since is nil. Open and closed issues are
	// both included; pull requests are not.
	ListIssues(ctx context.Context, since *time.Time) ([]RemoteIssue, error)

	// GetIssue fetches a single issue by number.
	GetIssue(ctx context.Context, number int) (*RemoteIssue, error)

	// CreateIssue creates an issue and returns the tracker's view of it.
	CreateIssue(ctx context.Context, issue NewIssue) (*RemoteIssue, error)

	// UpdateIssue applies a sparse patch; nil fields are untouched.
	UpdateIssue(ctx context.Context, number int, patch IssuePatch) (*RemoteIssue, error)

	// SetIssueState opens or closes an issue. Reason applies to closes.
	SetIssueState(ctx context.Context, number int, state State, reason string) (*RemoteIssue, error)

	// ListEvents returns comments, pull-request linkages, and closure
	// events for an issue, optionally only those after since.
	ListEvents(ctx context.Context, number int, since *time.Time) ([]Event, error)
}
