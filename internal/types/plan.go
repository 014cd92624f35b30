package types

// RemoteActionKind enumerates the mutation groups executed against the
// tracker, in their fixed execution order.
type RemoteActionKind string

const (
	ActionCreate   RemoteActionKind = "create"
	ActionUpdate   RemoteActionKind = "update"
	ActionSetState RemoteActionKind = "set-state"
)

// RemoteAction is one planned tracker mutation.
type RemoteAction struct {
	Kind     RemoteActionKind
	Identity string // always set; the heading this action serves
	Number   int    // 0 for creates
	Create   *NewIssue
	Patch    *IssuePatch
	State    State
	Reason   string // closure reason for set-state to closed
}

// EditKind enumerates targeted outline edits.
type EditKind string

const (
	EditSetProperty   EditKind = "set-property"
	EditUnsetProperty EditKind = "unset-property"
	EditSetBody       EditKind = "set-body"
	EditSetKeyword    EditKind = "set-keyword"
	EditSetTitle      EditKind = "set-title"
	EditAppendLog     EditKind = "append-log"
)

// Edit is one targeted change to the outline, addressed by heading
// identity so it survives concurrent source-offset shifts.
type Edit struct {
	Identity string
	Kind     EditKind
	Key      string // property key for set/unset-property
	Value    string // property value, body text, keyword, or log entry
}

// ConflictResolution records how a detected conflict was settled.
type ConflictResolution string

const (
	ResolutionOrgWins    ConflictResolution = "org-wins"
	ResolutionRemoteWins ConflictResolution = "gh-wins"
	ResolutionUnion      ConflictResolution = "union"
	ResolutionSkipped    ConflictResolution = "skipped"
)

// Conflict describes a field where both sides diverged from the
// baseline with different values, or a structural mismatch such as a
// deleted remote issue.
type Conflict struct {
	Identity   string             `json:"identity"`
	Number     int                `json:"number,omitempty"`
	Field      string             `json:"field"`
	Org        string             `json:"org"`
	Remote     string             `json:"gh"`
	Base       string             `json:"base"`
	Resolution ConflictResolution `json:"resolution"`
}

// MissingRemoteField marks a conflict for a bound heading whose issue no
// longer exists on the tracker.
const MissingRemoteField = "missing-remote"

// BaselineUpdate carries the post-merge snapshot for one pair. The
// orchestrator commits it only for pairs whose remote mutations all
// succeeded.
type BaselineUpdate struct {
	Number int // 0 until a planned create assigns one
	Record BaselineRecord
}

// Plan is the reconciler's output: ordered remote mutations, ordered
// outline edits, the baseline updates that become valid once those
// succeed, and everything the user needs to hear about. The reconciler
// itself performs no side effects.
type Plan struct {
	Remote    []RemoteAction
	Edits     []Edit
	Updates   []BaselineUpdate
	Unbind    []int // baseline numbers to drop (unlink)
	Conflicts []Conflict
	Warnings  []string
}

// Empty reports whether the plan would change nothing on either side.
func (p *Plan) Empty() bool {
	return len(p.Remote) == 0 && len(p.Edits) == 0
}
