// Package reconcile computes the sync plan: a per-field three-way merge
// of the outline view, the remote view, and the baseline, yielding
// ordered remote mutations, ordered outline edits, and a conflict list.
// Nothing here performs side effects.
package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/tftio/org-gh/internal/types"
)

// Mode selects which half of the plan is produced. Status reconciles in
// ModeSync and dry runs in their command's mode; neither executes the
// result.
type Mode string

const (
	ModeSync Mode = "sync"
	ModePush Mode = "push"
	ModePull Mode = "pull"
)

// StatePolicy settles state conflicts where both sides changed to
// different keywords.
type StatePolicy string

const (
	PolicyPrompt     StatePolicy = "prompt"
	PolicyOrgWins    StatePolicy = "org-wins"
	PolicyRemoteWins StatePolicy = "gh-wins"
)

// Options configures a reconciliation pass.
type Options struct {
	Mode          Mode
	Workflow      *types.WorkflowMap
	LabelPrefix   string
	DefaultLabels []string
	StatePolicy   StatePolicy
	Force         bool // converts prompt policies to org-wins
	Now           time.Time
}

// side says which direction a field decision flows.
type side int

const (
	sideNone side = iota
	sidePush
	sidePull
)

// decide classifies one field's three-way diff. onConflict names the
// winning side when both changed to different values; sideNone there
// means the conflict stays unresolved.
func decide(orgChanged, ghChanged, bothSame bool, onConflict side) (winner side, conflict bool) {
	switch {
	case !orgChanged && !ghChanged:
		return sideNone, false
	case orgChanged && !ghChanged:
		return sidePush, false
	case !orgChanged && ghChanged:
		return sidePull, false
	case bothSame:
		return sideNone, false
	default:
		return onConflict, true
	}
}

// filter drops the half of a decision the mode does not execute. The
// baseline then keeps the old value, so a later full sync converges.
func (o *Options) filter(s side) side {
	if o.Mode == ModePull && s == sidePush {
		return sideNone
	}
	if o.Mode == ModePush && s == sidePull {
		return sideNone
	}
	return s
}

// Reconcile computes the plan for the given views. headings must carry
// resolved identities; remote issues in g are indexed by number;
// baseline is never nil.
func Reconcile(headings []*types.OrgHeading, remote []types.RemoteIssue, baseline *types.Baseline, opts Options) (*types.Plan, error) {
	if opts.StatePolicy == "" {
		opts.StatePolicy = PolicyPrompt
	}
	if opts.Force && opts.StatePolicy == PolicyPrompt {
		opts.StatePolicy = PolicyOrgWins
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	if err := checkDuplicateBindings(headings); err != nil {
		return nil, err
	}

	byNumber := make(map[int]*types.RemoteIssue, len(remote))
	byTitle := make(map[string][]*types.RemoteIssue)
	for i := range remote {
		g := &remote[i]
		byNumber[g.Number] = g
		byTitle[g.Title] = append(byTitle[g.Title], g)
	}

	r := &run{
		opts:     opts,
		baseline: baseline,
		view:     labelView{prefix: opts.LabelPrefix, workflow: opts.Workflow},
		plan:     &types.Plan{},
	}

	matchedRemote := make(map[int]bool)
	matchedBaseline := make(map[int]bool)
	var creates []*types.OrgHeading

	for _, o := range headings {
		if o.Issue != 0 {
			g, ok := byNumber[o.Issue]
			if !ok {
				matchedBaseline[o.Issue] = true
				if _, hasBase := baseline.Record(o.Issue); hasBase {
					r.plan.Conflicts = append(r.plan.Conflicts, types.Conflict{
						Identity:   o.Identity,
						Number:     o.Issue,
						Field:      types.MissingRemoteField,
						Org:        o.Title,
						Resolution: types.ResolutionSkipped,
					})
				} else {
					r.warnf("heading %q references issue #%d which neither the tracker nor the baseline knows; skipping", o.Title, o.Issue)
				}
				continue
			}
			matchedRemote[g.Number] = true
			matchedBaseline[g.Number] = true
			if base, ok := baseline.Record(g.Number); ok {
				r.mergePair(o, g, base)
			} else {
				r.firstBind(o, g, false)
			}
			continue
		}

		// Title-exact linkage against remote issues not already bound.
		var candidates []*types.RemoteIssue
		for _, g := range byTitle[o.Title] {
			if matchedRemote[g.Number] {
				continue
			}
			if _, bound := baseline.Record(g.Number); bound {
				continue
			}
			candidates = append(candidates, g)
		}
		switch {
		case len(candidates) > 1:
			r.warnf("heading %q matches %d unbound issues by title; skipping (bind one with %s)", o.Title, len(candidates), types.PropIssue)
		case len(candidates) == 1:
			g := candidates[0]
			matchedRemote[g.Number] = true
			matchedBaseline[g.Number] = true
			r.firstBind(o, g, true)
		default:
			creates = append(creates, o)
		}
	}

	r.planCreates(creates)
	r.reportOrphans(byNumber, matchedBaseline)
	r.orderRemote()
	return r.plan, nil
}

func checkDuplicateBindings(headings []*types.OrgHeading) error {
	owners := make(map[int][]string)
	for _, o := range headings {
		if o.Issue != 0 {
			owners[o.Issue] = append(owners[o.Issue], o.Identity)
		}
	}
	for n, ids := range owners {
		if len(ids) > 1 {
			sort.Strings(ids)
			return &types.DuplicateBindingError{Number: n, Identities: ids}
		}
	}
	return nil
}

// run accumulates plan state across pairs.
type run struct {
	opts     Options
	baseline *types.Baseline
	view     labelView
	plan     *types.Plan

	creates   []types.RemoteAction
	updates   []types.RemoteAction
	setStates []types.RemoteAction
}

func (r *run) warnf(format string, args ...any) {
	r.plan.Warnings = append(r.plan.Warnings, fmt.Sprintf(format, args...))
}

func (r *run) edit(e types.Edit) {
	r.plan.Edits = append(r.plan.Edits, e)
}

func (r *run) conflict(c types.Conflict) {
	r.plan.Conflicts = append(r.plan.Conflicts, c)
}

// orderRemote fixes the mutation order: creates (by identity), then
// field updates (by number), then state changes (by number). The order
// makes re-runs deterministic.
func (r *run) orderRemote() {
	sort.Slice(r.creates, func(i, j int) bool { return r.creates[i].Identity < r.creates[j].Identity })
	sort.Slice(r.updates, func(i, j int) bool { return r.updates[i].Number < r.updates[j].Number })
	sort.Slice(r.setStates, func(i, j int) bool { return r.setStates[i].Number < r.setStates[j].Number })
	r.plan.Remote = append(r.plan.Remote, r.creates...)
	r.plan.Remote = append(r.plan.Remote, r.updates...)
	r.plan.Remote = append(r.plan.Remote, r.setStates...)
}

// mergePair runs the per-field three-way merge for one bound pair with
// a baseline record.
func (r *run) mergePair(o *types.OrgHeading, g *types.RemoteIssue, base types.BaselineRecord) {
	wf := r.opts.Workflow
	ghKeyword := wf.KeywordFor(g.State, g.StateReason, g.Labels)
	ghLabels := r.view.fromRemote(g.Labels)

	rec := types.BaselineRecord{
		Identity:     o.Identity,
		GHModifiedAt: g.UpdatedAt,
		OrgModified:  base.OrgModified,
	}
	patch := types.IssuePatch{}
	orgTouched := false

	// Title: the outline wins conflicts.
	{
		winner, conflicted := decide(o.Title != base.Title, g.Title != base.Title, o.Title == g.Title, sidePush)
		winner = r.opts.filter(winner)
		rec.Title = base.Title
		switch winner {
		case sidePush:
			rec.Title = o.Title
			if o.Title != g.Title {
				patch.Title = &o.Title
			}
		case sidePull:
			rec.Title = g.Title
			if g.Title != o.Title {
				r.edit(types.Edit{Identity: o.Identity, Kind: types.EditSetTitle, Value: g.Title})
				orgTouched = true
			}
		case sideNone:
			if !conflicted && o.Title == g.Title {
				rec.Title = o.Title
			}
		}
		if conflicted {
			r.conflict(types.Conflict{
				Identity: o.Identity, Number: g.Number, Field: "title",
				Org: o.Title, Remote: g.Title, Base: base.Title,
				Resolution: resolutionOf(winner),
			})
		}
	}

	// Body: the outline wins conflicts; comparison is canonicalized and
	// the baseline stores only a digest.
	{
		orgDigest := types.BodyDigest(o.Body)
		ghDigest := types.BodyDigest(g.Body)
		winner, conflicted := decide(orgDigest != base.BodyDigest, ghDigest != base.BodyDigest, types.SameBody(o.Body, g.Body), sidePush)
		winner = r.opts.filter(winner)
		rec.BodyDigest = base.BodyDigest
		switch winner {
		case sidePush:
			rec.BodyDigest = orgDigest
			if !types.SameBody(o.Body, g.Body) {
				patch.Body = &o.Body
			}
		case sidePull:
			rec.BodyDigest = ghDigest
			if !types.SameBody(o.Body, g.Body) {
				r.edit(types.Edit{Identity: o.Identity, Kind: types.EditSetBody, Value: g.Body})
				orgTouched = true
			}
		case sideNone:
			if !conflicted && types.SameBody(o.Body, g.Body) {
				rec.BodyDigest = orgDigest
			}
		}
		if conflicted {
			r.conflict(types.Conflict{
				Identity: o.Identity, Number: g.Number, Field: "body",
				Org: abbreviate(o.Body), Remote: abbreviate(g.Body), Base: base.BodyDigest,
				Resolution: resolutionOf(winner),
			})
		}
	}

	// State: keyword-granular; conflicts follow the configured policy.
	finalKeyword := base.Keyword
	stateWinner := sideNone
	{
		onConflict := sideNone
		switch r.opts.StatePolicy {
		case PolicyOrgWins:
			onConflict = sidePush
		case PolicyRemoteWins:
			onConflict = sidePull
		}
		winner, conflicted := decide(o.Keyword != base.Keyword, ghKeyword != base.Keyword, o.Keyword == ghKeyword, onConflict)
		winner = r.opts.filter(winner)
		stateWinner = winner
		switch winner {
		case sidePush:
			finalKeyword = o.Keyword
			if wf.StateOf(o.Keyword) != g.State {
				r.setStates = append(r.setStates, types.RemoteAction{
					Kind:     types.ActionSetState,
					Identity: o.Identity,
					Number:   g.Number,
					State:    wf.StateOf(o.Keyword),
					Reason:   wf.ReasonOf(o.Keyword),
				})
			}
		case sidePull:
			finalKeyword = ghKeyword
			if ghKeyword != o.Keyword {
				r.edit(types.Edit{Identity: o.Identity, Kind: types.EditSetKeyword, Value: ghKeyword})
				orgTouched = true
			}
		case sideNone:
			if !conflicted && o.Keyword == ghKeyword {
				finalKeyword = o.Keyword
			}
		}
		if conflicted {
			r.conflict(types.Conflict{
				Identity: o.Identity, Number: g.Number, Field: "state",
				Org: o.Keyword, Remote: ghKeyword, Base: base.Keyword,
				Resolution: resolutionOf(winner),
			})
		}
	}
	rec.Keyword = finalKeyword

	// Assignees: the remote wins conflicts.
	{
		winner, conflicted := decide(
			!types.SameStringSet(o.Assignees, base.Assignees),
			!types.SameStringSet(g.Assignees, base.Assignees),
			types.SameStringSet(o.Assignees, g.Assignees),
			sidePull)
		winner = r.opts.filter(winner)
		rec.Assignees = base.Assignees
		switch winner {
		case sidePush:
			rec.Assignees = o.Assignees
			if !types.SameStringSet(o.Assignees, g.Assignees) {
				patch.Assignees = &o.Assignees
			}
		case sidePull:
			rec.Assignees = g.Assignees
			if !types.SameStringSet(o.Assignees, g.Assignees) {
				r.setListProperty(o.Identity, types.PropAssignee, g.Assignees)
				orgTouched = true
			}
		case sideNone:
			if !conflicted && types.SameStringSet(o.Assignees, g.Assignees) {
				rec.Assignees = o.Assignees
			}
		}
		if conflicted {
			r.conflict(types.Conflict{
				Identity: o.Identity, Number: g.Number, Field: "assignees",
				Org: joinOrDash(o.Assignees), Remote: joinOrDash(g.Assignees), Base: joinOrDash(base.Assignees),
				Resolution: resolutionOf(winner),
			})
		}
	}

	// Labels: union merge over the outline-namespace views; sub-state
	// labels are excluded and re-derived from the final keyword below.
	{
		orgChanged := !types.SameStringSet(o.Labels, base.Labels)
		ghChanged := !types.SameStringSet(ghLabels, base.Labels)
		finalLabels := base.Labels
		switch {
		case !orgChanged && !ghChanged:
			finalLabels = o.Labels
		case orgChanged && !ghChanged:
			finalLabels = o.Labels
		case !orgChanged && ghChanged:
			finalLabels = ghLabels
		case types.SameStringSet(o.Labels, ghLabels):
			finalLabels = o.Labels
		default:
			finalLabels = unionMerge(o.Labels, ghLabels, base.Labels)
			r.conflict(types.Conflict{
				Identity: o.Identity, Number: g.Number, Field: "labels",
				Org: joinOrDash(o.Labels), Remote: joinOrDash(ghLabels), Base: joinOrDash(base.Labels),
				Resolution: types.ResolutionUnion,
			})
		}
		if r.opts.Mode != ModePush && !types.SameStringSet(finalLabels, o.Labels) {
			r.setListProperty(o.Identity, types.PropLabels, finalLabels)
			orgTouched = true
		}
		if r.opts.Mode != ModePull {
			// Re-derive the sub-state label only when the state decision
			// flowed toward the remote or both sides already agree.
			preserveSub := stateWinner != sidePush && finalKeyword != ghKeyword
			desired := r.view.toRemote(finalLabels, g.Labels, finalKeyword, preserveSub)
			if !types.SameStringSet(desired, g.Labels) {
				patch.Labels = &desired
			}
		}
		// The baseline only advances past a half-applied merge when the
		// suppressed half would have been a no-op; otherwise the next
		// full sync re-derives the same merge and applies the rest.
		rec.Labels = finalLabels
		if r.opts.Mode == ModePush && !types.SameStringSet(finalLabels, o.Labels) {
			rec.Labels = base.Labels
		}
		if r.opts.Mode == ModePull && !types.SameStringSet(finalLabels, ghLabels) {
			rec.Labels = base.Labels
		}
	}

	if !patch.Empty() {
		r.updates = append(r.updates, types.RemoteAction{
			Kind:     types.ActionUpdate,
			Identity: o.Identity,
			Number:   g.Number,
			Patch:    &patch,
		})
	}

	// Remote-only events append to the log section; the engine has
	// already restricted them to those after the baseline's last remote
	// modification.
	if r.opts.Mode != ModePush {
		for _, ev := range g.Events {
			r.edit(types.Edit{Identity: o.Identity, Kind: types.EditAppendLog, Value: RenderLogEntry(ev)})
			orgTouched = true
		}
	}

	if orgTouched {
		rec.OrgModified = r.opts.Now
	}
	r.plan.Updates = append(r.plan.Updates, types.BaselineUpdate{Number: g.Number, Record: rec})
}

// firstBind links a heading to a remote issue with no baseline record:
// the outline's title, body, and state are authoritative; the remote's
// labels and assignees are adopted so title-match linkage stays
// idempotent. withBindEdits adds the binding properties for headings
// matched by title.
func (r *run) firstBind(o *types.OrgHeading, g *types.RemoteIssue, withBindEdits bool) {
	wf := r.opts.Workflow
	ghLabels := r.view.fromRemote(g.Labels)

	// In push mode the adoption edits are suppressed, so the baseline
	// keeps the outline's (usually empty) sets; the next full sync then
	// pulls the remote's labels and assignees cleanly.
	adopt := r.opts.Mode != ModePush
	recLabels, recAssignees := ghLabels, g.Assignees
	if !adopt {
		recLabels, recAssignees = o.Labels, o.Assignees
	}

	patch := types.IssuePatch{}
	if r.opts.Mode != ModePull {
		if o.Title != g.Title {
			patch.Title = &o.Title
		}
		if !types.SameBody(o.Body, g.Body) {
			patch.Body = &o.Body
		}
		desired := r.view.toRemote(ghLabels, g.Labels, o.Keyword, false)
		if !types.SameStringSet(desired, g.Labels) {
			patch.Labels = &desired
		}
		if !patch.Empty() {
			r.updates = append(r.updates, types.RemoteAction{
				Kind:     types.ActionUpdate,
				Identity: o.Identity,
				Number:   g.Number,
				Patch:    &patch,
			})
		}
		if wf.StateOf(o.Keyword) != g.State {
			r.setStates = append(r.setStates, types.RemoteAction{
				Kind:     types.ActionSetState,
				Identity: o.Identity,
				Number:   g.Number,
				State:    wf.StateOf(o.Keyword),
				Reason:   wf.ReasonOf(o.Keyword),
			})
		}
	}

	if withBindEdits {
		r.edit(types.Edit{Identity: o.Identity, Kind: types.EditSetProperty, Key: types.PropIssue, Value: fmt.Sprintf("%d", g.Number)})
		r.edit(types.Edit{Identity: o.Identity, Kind: types.EditSetProperty, Key: types.PropURL, Value: g.HTMLURL})
		r.edit(types.Edit{Identity: o.Identity, Kind: types.EditSetProperty, Key: types.PropCreated, Value: Timestamp(g.CreatedAt)})
	} else if o.URL == "" {
		// GH_ISSUE without GH_URL violates the binding invariant; repair.
		r.edit(types.Edit{Identity: o.Identity, Kind: types.EditSetProperty, Key: types.PropURL, Value: g.HTMLURL})
	}
	r.edit(types.Edit{Identity: o.Identity, Kind: types.EditSetProperty, Key: types.PropUpdated, Value: Timestamp(r.opts.Now)})
	if adopt && len(ghLabels) > 0 {
		r.setListProperty(o.Identity, types.PropLabels, ghLabels)
	}
	if adopt && len(g.Assignees) > 0 {
		r.setListProperty(o.Identity, types.PropAssignee, g.Assignees)
	}

	r.plan.Updates = append(r.plan.Updates, types.BaselineUpdate{
		Number: g.Number,
		Record: types.BaselineRecord{
			Identity:     o.Identity,
			Title:        o.Title,
			BodyDigest:   types.BodyDigest(o.Body),
			Keyword:      o.Keyword,
			Assignees:    recAssignees,
			Labels:       recLabels,
			GHModifiedAt: g.UpdatedAt,
			OrgModified:  r.opts.Now,
		},
	})
}

// planCreates turns the remaining unmatched headings into creation
// actions, ordered by identity for deterministic re-runs.
func (r *run) planCreates(candidates []*types.OrgHeading) {
	if r.opts.Mode == ModePull {
		for _, o := range candidates {
			r.warnf("heading %q is not bound; pull does not create issues", o.Title)
		}
		return
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Identity < candidates[j].Identity })
	for _, o := range candidates {
		labels := append([]string(nil), o.Labels...)
		for _, l := range r.opts.DefaultLabels {
			labels = append(labels, l)
		}
		r.creates = append(r.creates, types.RemoteAction{
			Kind:     types.ActionCreate,
			Identity: o.Identity,
			Create: &types.NewIssue{
				Identity:  o.Identity,
				Title:     o.Title,
				Body:      o.Body,
				State:     r.opts.Workflow.StateOf(o.Keyword),
				Reason:    r.opts.Workflow.ReasonOf(o.Keyword),
				Labels:    r.view.toRemote(dedupe(labels), nil, o.Keyword, false),
				Assignees: o.Assignees,
			},
		})
		r.plan.Updates = append(r.plan.Updates, types.BaselineUpdate{
			Number: 0, // assigned when the create succeeds
			Record: types.BaselineRecord{
				Identity:   o.Identity,
				Title:      o.Title,
				BodyDigest: types.BodyDigest(o.Body),
				Keyword:    o.Keyword,
				Assignees:  o.Assignees,
				Labels:     dedupe(append(append([]string(nil), o.Labels...), r.opts.DefaultLabels...)),
				OrgModified: r.opts.Now,
			},
		})
	}
}

// reportOrphans warns about baseline entries matched to no heading.
func (r *run) reportOrphans(byNumber map[int]*types.RemoteIssue, matched map[int]bool) {
	var numbers []int
	for n := range r.baseline.Items {
		if !matched[n] {
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)
	for _, n := range numbers {
		if _, live := byNumber[n]; live {
			r.warnf("issue #%d has no syncable heading; baseline entry retained (use unlink to drop it)", n)
		} else {
			r.warnf("baseline entry for issue #%d is an orphan: no heading and no remote issue (use unlink to drop it)", n)
		}
	}
}

func (r *run) setListProperty(identity, key string, values []string) {
	if len(values) == 0 {
		r.edit(types.Edit{Identity: identity, Kind: types.EditUnsetProperty, Key: key})
		return
	}
	r.edit(types.Edit{Identity: identity, Kind: types.EditSetProperty, Key: key, Value: joinList(values)})
}

func resolutionOf(winner side) types.ConflictResolution {
	switch winner {
	case sidePush:
		return types.ResolutionOrgWins
	case sidePull:
		return types.ResolutionRemoteWins
	default:
		return types.ResolutionSkipped
	}
}

func joinList(vs []string) string {
	out := ""
	for i, v := range vs {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}

func joinOrDash(vs []string) string {
	if len(vs) == 0 {
		return "-"
	}
	return joinList(vs)
}

func dedupe(vs []string) []string {
	seen := make(map[string]bool, len(vs))
	out := vs[:0]
	for _, v := range vs {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func abbreviate(s string) string {
	if len(s) > 80 {
		return s[:77] + "..."
	}
	return s
}

// Timestamp renders a sync-assigned timestamp property or log time.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// RenderLogEntry produces the canonical one-line rendering of a remote
// event for the log section.
func RenderLogEntry(ev types.Event) string {
	ts := Timestamp(ev.Timestamp)
	switch ev.Kind {
	case types.EventComment:
		return fmt.Sprintf("comment by @%s [%s]: %s", ev.Actor, ts, firstLine(ev.Body))
	case types.EventPRLinked:
		return fmt.Sprintf("PR #%d linked [%s]", ev.PRNumber, ts)
	case types.EventClosed:
		if ev.PRNumber != 0 {
			return fmt.Sprintf("closed by PR #%d [%s]", ev.PRNumber, ts)
		}
		return fmt.Sprintf("closed by @%s [%s]", ev.Actor, ts)
	default:
		return fmt.Sprintf("%s [%s]", ev.Kind, ts)
	}
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			return s[:i]
		}
	}
	return s
}
