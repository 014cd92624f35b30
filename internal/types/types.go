// Package types defines the core data model shared by the outline,
// state, remote, and reconciliation layers.
//
// The three views the reconciler compares — the outline's headings, the
// remote tracker's issues, and the persisted baseline — are all expressed
// in the types here so that no layer needs to import another's
// representation.
package types

import (
	"strings"
	"time"
)

// State is the coarse open/closed state shared by both sides.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// Closure reasons understood by the remote tracker.
const (
	ReasonCompleted  = "completed"
	ReasonNotPlanned = "not_planned"
)

// Property keys recognized on syncable headings. All other property keys
// are preserved opaquely and never synced.
const (
	PropIssue    = "GH_ISSUE"
	PropURL      = "GH_URL"
	PropCustomID = "CUSTOM_ID"
	PropAssignee = "ASSIGNEE"
	PropLabels   = "LABELS"
	PropCreated  = "CREATED"
	PropUpdated  = "UPDATED"
)

// RecognizedProperties lists the sync-managed keys in canonical write
// order. User keys follow these in their original order.
var RecognizedProperties = []string{
	PropIssue, PropURL, PropCustomID, PropAssignee, PropLabels, PropCreated, PropUpdated,
}

// IsRecognizedProperty reports whether key is sync-managed. Keys are
// case-insensitive in the outline.
func IsRecognizedProperty(key string) bool {
	upper := strings.ToUpper(key)
	for _, k := range RecognizedProperties {
		if k == upper {
			return true
		}
	}
	return false
}

// OrgHeading is the normalized view of one syncable heading, detached
// from its source text. Identity is resolved before reconciliation: the
// baseline's identity for bound headings, CUSTOM_ID or a title slug for
// unbound ones.
type OrgHeading struct {
	Identity  string
	Title     string
	Body      string // leading and trailing blank lines trimmed; log section excluded
	Keyword   string // workflow keyword as written
	Issue     int    // bound issue number, 0 if unbound
	URL       string
	CustomID  string
	Assignees []string
	Labels    []string
}

// RemoteIssue is one issue as reported by the tracker.
type RemoteIssue struct {
	Number      int
	Title       string
	Body        string
	State       State
	StateReason string
	Assignees   []string
	Labels      []string
	HTMLURL     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Events      []Event // populated for bound pairs during the fetch phase
}

// EventKind classifies remote-only events ingested into the log section.
type EventKind string

const (
	EventComment  EventKind = "comment"
	EventPRLinked EventKind = "pr-linked"
	EventClosed   EventKind = "closed"
)

// Event is a read-only remote occurrence: a comment, a pull-request
// linkage, or a closure. Events flow remote→outline only.
type Event struct {
	Kind      EventKind
	Actor     string
	Timestamp time.Time
	Body      string // first line is used for log rendering
	PRNumber  int    // for pr-linked and pr-caused closures
}

// NewIssue describes an issue to be created.
type NewIssue struct {
	Identity  string
	Title     string
	Body      string
	State     State
	Reason    string // closure reason when State is closed
	Labels    []string
	Assignees []string
}

// IssuePatch is a sparse field update. Nil fields are left untouched on
// the remote.
type IssuePatch struct {
	Title     *string
	Body      *string
	Assignees *[]string
	Labels    *[]string
}

// Empty reports whether the patch would change nothing.
func (p IssuePatch) Empty() bool {
	return p.Title == nil && p.Body == nil && p.Assignees == nil && p.Labels == nil
}

// BaselineRecord is the last-sync snapshot of one bound pair, collapsed
// to the compared fields. The body is stored as a digest for compactness.
type BaselineRecord struct {
	Identity     string    `json:"identity"`
	Title        string    `json:"title"`
	BodyDigest   string    `json:"body_digest"`
	Keyword      string    `json:"state"`
	Assignees    []string  `json:"assignees"`
	Labels       []string  `json:"labels"`
	GHModifiedAt time.Time `json:"gh_modified_at"`
	OrgModified  time.Time `json:"org_modified_at"`
}

// PendingCreate records a syncable heading that has been seen but not
// yet bound to any remote issue.
type PendingCreate struct {
	Identity string `json:"identity"`
	Title    string `json:"title"`
}

// Baseline is the persisted common ancestor for three-way diffs, keyed
// by remote issue number.
type Baseline struct {
	Version        int                    `json:"version"`
	Repo           string                 `json:"repo"`
	LastSync       time.Time              `json:"last_sync"`
	Items          map[int]BaselineRecord `json:"items"`
	PendingCreates []PendingCreate        `json:"pending_creates"`

	// Extra holds unrecognized top-level fields from a newer-but-compatible
	// schema so they survive a load/save round trip.
	Extra map[string]any `json:"-"`
}

// NewBaseline returns an empty baseline for the given repository.
func NewBaseline(repo string) *Baseline {
	return &Baseline{
		Version: BaselineVersion,
		Repo:    repo,
		Items:   make(map[int]BaselineRecord),
	}
}

// BaselineVersion is the current baseline schema version.
const BaselineVersion = 1

// Record returns the baseline record for a number, if present.
func (b *Baseline) Record(number int) (BaselineRecord, bool) {
	r, ok := b.Items[number]
	return r, ok
}

// IsPending reports whether identity is tracked as a pending creation.
func (b *Baseline) IsPending(identity string) bool {
	for _, p := range b.PendingCreates {
		if p.Identity == identity {
			return true
		}
	}
	return false
}

// SetPending adds or refreshes a pending-creation record.
func (b *Baseline) SetPending(identity, title string) {
	for i, p := range b.PendingCreates {
		if p.Identity == identity {
			b.PendingCreates[i].Title = title
			return
		}
	}
	b.PendingCreates = append(b.PendingCreates, PendingCreate{Identity: identity, Title: title})
}

// ClearPending removes a pending-creation record once the heading binds.
func (b *Baseline) ClearPending(identity string) {
	out := b.PendingCreates[:0]
	for _, p := range b.PendingCreates {
		if p.Identity != identity {
			out = append(out, p)
		}
	}
	b.PendingCreates = out
}
