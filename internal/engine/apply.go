package engine

import (
	"context"
	"fmt"

	"github.com/tftio/org-gh/internal/reconcile"
	"github.com/tftio/org-gh/internal/state"
	"github.com/tftio/org-gh/internal/types"
)

// apply executes a plan: remote mutations in their fixed order, then
// the outline write, then the baseline commit. A permanent failure on
// one pair does not stop independent pairs, but that pair's outline
// edits are withheld and its baseline record does not advance. An
// interrupt stops before the next mutation; whatever already succeeded
// is committed.
func (e *Engine) apply(ctx context.Context, adapter types.RemoteAdapter, s *session, plan *types.Plan, req Request, res *types.Result) error {
	failed := make(map[string]bool)    // identity → a remote mutation failed
	createdNum := make(map[string]int) // identity → number assigned by create
	bumped := make(map[int]*types.RemoteIssue)
	interrupted := false

	// Planned creations are pending until they succeed, so a failure or
	// interrupt leaves a record of the intent in the baseline.
	for _, a := range plan.Remote {
		if a.Kind == types.ActionCreate {
			s.baseline.SetPending(a.Identity, a.Create.Title)
		}
	}

	var bindEdits []types.Edit
	for _, a := range plan.Remote {
		if ctx.Err() != nil || interrupted {
			interrupted = true
			// The pair's baseline record must not advance past a mutation
			// that never ran.
			failed[a.Identity] = true
			res.AddAction(types.ActionOutcome{
				Kind: string(a.Kind), Identity: a.Identity, Number: a.Number,
				Status: types.StatusSkipped, Detail: "interrupted",
			})
			continue
		}
		if failed[a.Identity] {
			res.AddAction(types.ActionOutcome{
				Kind: string(a.Kind), Identity: a.Identity, Number: a.Number,
				Status: types.StatusSkipped, Detail: "earlier action for this heading failed",
			})
			continue
		}

		switch a.Kind {
		case types.ActionCreate:
			issue, err := adapter.CreateIssue(ctx, *a.Create)
			if err != nil {
				failed[a.Identity] = true
				s.baseline.SetPending(a.Identity, a.Create.Title)
				res.AddAction(types.ActionOutcome{
					Kind: string(a.Kind), Identity: a.Identity,
					Status: types.StatusFailed, Detail: err.Error(),
				})
				continue
			}
			createdNum[a.Identity] = issue.Number
			bumped[issue.Number] = issue
			s.baseline.ClearPending(a.Identity)
			bindEdits = append(bindEdits,
				types.Edit{Identity: a.Identity, Kind: types.EditSetProperty, Key: types.PropIssue, Value: fmt.Sprintf("%d", issue.Number)},
				types.Edit{Identity: a.Identity, Kind: types.EditSetProperty, Key: types.PropURL, Value: issue.HTMLURL},
				types.Edit{Identity: a.Identity, Kind: types.EditSetProperty, Key: types.PropCreated, Value: reconcile.Timestamp(issue.CreatedAt)},
				types.Edit{Identity: a.Identity, Kind: types.EditSetProperty, Key: types.PropUpdated, Value: reconcile.Timestamp(e.Now())},
			)
			res.AddAction(types.ActionOutcome{
				Kind: string(a.Kind), Identity: a.Identity, Number: issue.Number,
				Status: types.StatusCreated, Detail: issue.HTMLURL,
			})

		case types.ActionUpdate:
			issue, err := adapter.UpdateIssue(ctx, a.Number, *a.Patch)
			if err != nil {
				failed[a.Identity] = true
				res.AddAction(types.ActionOutcome{
					Kind: string(a.Kind), Identity: a.Identity, Number: a.Number,
					Status: types.StatusFailed, Detail: err.Error(),
				})
				continue
			}
			bumped[a.Number] = issue
			if req.Mode != ModePush {
				bindEdits = append(bindEdits,
					types.Edit{Identity: a.Identity, Kind: types.EditSetProperty, Key: types.PropUpdated, Value: reconcile.Timestamp(e.Now())})
			}
			res.AddAction(types.ActionOutcome{
				Kind: string(a.Kind), Identity: a.Identity, Number: a.Number,
				Status: types.StatusUpdated,
			})

		case types.ActionSetState:
			issue, err := adapter.SetIssueState(ctx, a.Number, a.State, a.Reason)
			if err != nil {
				failed[a.Identity] = true
				res.AddAction(types.ActionOutcome{
					Kind: string(a.Kind), Identity: a.Identity, Number: a.Number,
					Status: types.StatusFailed, Detail: err.Error(),
				})
				continue
			}
			bumped[a.Number] = issue
			status := types.StatusClosedAt
			if a.State == types.StateOpen {
				status = types.StatusReopened
			}
			if req.Mode != ModePush {
				bindEdits = append(bindEdits,
					types.Edit{Identity: a.Identity, Kind: types.EditSetProperty, Key: types.PropUpdated, Value: reconcile.Timestamp(e.Now())})
			}
			res.AddAction(types.ActionOutcome{
				Kind: string(a.Kind), Identity: a.Identity, Number: a.Number, Status: status,
			})
		}
	}

	// Outline edits: the plan's pull-side and binding edits, minus any
	// heading whose remote half failed, plus the bind edits generated by
	// successful creates and updates (by creates only in push mode).
	var edits []types.Edit
	for _, ed := range plan.Edits {
		if failed[ed.Identity] {
			continue
		}
		edits = append(edits, ed)
		if ed.Kind == types.EditAppendLog {
			res.AddAction(types.ActionOutcome{Kind: "log", Identity: ed.Identity, Status: types.StatusLogged, Detail: ed.Value})
		} else if isPullEdit(ed.Kind) {
			res.AddAction(types.ActionOutcome{Kind: "edit:" + string(ed.Kind), Identity: ed.Identity, Status: types.StatusPulled, Detail: editSummary(ed)})
		}
	}
	edits = append(edits, bindEdits...)

	if len(edits) > 0 {
		text, err := s.doc.Apply(edits)
		if err != nil {
			return fmt.Errorf("applying outline edits: %w", err)
		}
		if err := state.WriteFileAtomic(req.File, []byte(text)); err != nil {
			// Remote mutations are committed but the baseline is not
			// advanced, so the next run reconverges.
			return fmt.Errorf("writing outline: %w", err)
		}
	}

	// Baseline: only pairs whose mutations all succeeded advance.
	for _, u := range plan.Updates {
		if failed[u.Record.Identity] {
			continue
		}
		number := u.Number
		if number == 0 {
			n, ok := createdNum[u.Record.Identity]
			if !ok {
				continue // create was interrupted before it ran
			}
			number = n
		}
		rec := u.Record
		if issue, ok := bumped[number]; ok {
			rec.GHModifiedAt = issue.UpdatedAt
		}
		s.baseline.Items[number] = rec
	}
	for _, n := range plan.Unbind {
		delete(s.baseline.Items, n)
	}
	s.baseline.Repo = s.repo
	s.baseline.LastSync = e.Now()
	if err := state.Save(s.baselinePath, s.baseline); err != nil {
		return err
	}

	if interrupted {
		return ctx.Err()
	}
	return nil
}

func isPullEdit(k types.EditKind) bool {
	switch k {
	case types.EditSetBody, types.EditSetKeyword, types.EditSetTitle:
		return true
	case types.EditSetProperty, types.EditUnsetProperty:
		return true
	}
	return false
}
