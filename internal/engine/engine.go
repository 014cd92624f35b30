// Package engine drives the sync modes end to end: read the outline,
// fetch the remote view, reconcile, apply the plan, write back, and
// commit the baseline. The baseline only ever advances for pairs whose
// remote mutations all succeeded.
package engine

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tftio/org-gh/internal/config"
	"github.com/tftio/org-gh/internal/identity"
	"github.com/tftio/org-gh/internal/orgfile"
	"github.com/tftio/org-gh/internal/reconcile"
	"github.com/tftio/org-gh/internal/state"
	"github.com/tftio/org-gh/internal/types"
)

// Mode names accepted by Run.
const (
	ModeInit   = "init"
	ModeSync   = "sync"
	ModePush   = "push"
	ModePull   = "pull"
	ModeStatus = "status"
	ModeUnlink = "unlink"
)

// AdapterFactory builds the remote adapter for a repository. Tests
// substitute a fake.
type AdapterFactory func(cfg *config.Config, token, owner, repo string) types.RemoteAdapter

// BulkEventLister is the optional fast path for the event fetch phase;
// the GitHub client implements it with bounded parallelism.
type BulkEventLister interface {
	FetchEventsBulk(ctx context.Context, since map[int]time.Time) (map[int][]types.Event, error)
}

// Request describes one invocation.
type Request struct {
	Mode   string
	File   string
	Repo   string // init: repository to bind
	Target string // unlink: issue number or title
	Token  string // from the --token flag; resolution order applies
	DryRun bool
	Force  bool
}

// Engine holds the wiring shared by all modes.
type Engine struct {
	Config     *config.Config
	NewAdapter AdapterFactory
	Now        func() time.Time
}

// New builds an engine with the given configuration and adapter
// factory.
func New(cfg *config.Config, factory AdapterFactory) *Engine {
	return &Engine{Config: cfg, NewAdapter: factory, Now: func() time.Time { return time.Now().UTC() }}
}

// Run executes one mode. Whole-operation failures (parse, config,
// state, busy, duplicate binding) come back as errors with no side
// effects; per-action failures are recorded in the result.
func (e *Engine) Run(ctx context.Context, req Request) (*types.Result, error) {
	switch req.Mode {
	case ModeInit:
		return e.runInit(ctx, req)
	case ModeUnlink:
		return e.runUnlink(req)
	case ModeSync, ModePush, ModePull, ModeStatus:
		return e.runSync(ctx, req)
	default:
		return nil, fmt.Errorf("unknown mode %q", req.Mode)
	}
}

// session is the per-invocation working set.
type session struct {
	doc             *orgfile.Document
	headings        []*types.OrgHeading
	baseline        *types.Baseline
	baselineExisted bool
	baselinePath    string
	repo            string
	owner, name     string
	lock            *state.Lock
}

// open reads and parses the outline, resolves identities, acquires the
// lock, and loads the baseline. requireRepo controls whether a missing
// repository directive is fatal.
func (e *Engine) open(file string, requireRepo bool) (*session, error) {
	data, err := os.ReadFile(file) // #nosec G304 - the outline path is the CLI argument
	if err != nil {
		return nil, fmt.Errorf("reading outline: %w", err)
	}

	opts := orgfile.Options{
		Keywords:  e.Config.Keywords(),
		LogDrawer: e.Config.Sync.LogDrawer,
		SyncDepth: e.Config.Sync.SyncDepth,
	}
	doc, err := orgfile.Parse(string(data), opts)
	if err != nil {
		return nil, err
	}

	s := &session{doc: doc}
	s.repo = doc.Directives[orgfile.DirectiveRepo]
	if s.repo == "" && requireRepo {
		return nil, &types.ConfigError{Msg: "outline has no #+" + orgfile.DirectiveRepo + ": directive; run init"}
	}
	if s.repo != "" {
		owner, name, ok := strings.Cut(s.repo, "/")
		if !ok || owner == "" || name == "" {
			return nil, &types.ConfigError{Msg: fmt.Sprintf("malformed repository %q; want owner/name", s.repo)}
		}
		s.owner, s.name = owner, name
	}

	s.baselinePath, err = state.Path(file, e.Config.CentralDir())
	if err != nil {
		return nil, err
	}
	if s.lock, err = state.Acquire(s.baselinePath); err != nil {
		return nil, err
	}

	s.baseline, err = state.Load(s.baselinePath)
	if err != nil {
		s.lock.Release()
		return nil, err
	}
	if s.baseline == nil {
		s.baseline = types.NewBaseline(s.repo)
	} else {
		s.baselineExisted = true
		if s.baseline.Repo != "" && s.repo != "" && s.baseline.Repo != s.repo {
			s.lock.Release()
			return nil, &types.StateError{
				Path: s.baselinePath,
				Msg:  fmt.Sprintf("baseline tracks %s but the outline names %s", s.baseline.Repo, s.repo),
				Hint: "run init to start over",
			}
		}
	}

	if s.headings, err = doc.Records(); err != nil {
		s.lock.Release()
		return nil, err
	}
	if err = identity.Resolve(s.headings, s.baseline); err != nil {
		s.lock.Release()
		return nil, err
	}
	for i, h := range doc.Headings {
		h.Identity = s.headings[i].Identity
	}
	return s, nil
}

// runInit verifies remote access, ensures the repository directive, and
// writes an empty baseline.
func (e *Engine) runInit(ctx context.Context, req Request) (*types.Result, error) {
	res := &types.Result{Mode: req.Mode, File: req.File}

	s, err := e.open(req.File, req.Repo == "")
	if err != nil {
		return nil, err
	}
	defer s.lock.Release()

	repo := s.repo
	if req.Repo != "" {
		if repo != "" && repo != req.Repo {
			return nil, &types.ConfigError{Msg: fmt.Sprintf("outline already tracks %s; refusing to switch to %s", repo, req.Repo)}
		}
		repo = req.Repo
	}
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return nil, &types.ConfigError{Msg: fmt.Sprintf("malformed repository %q; want owner/name", repo)}
	}
	res.Repo = repo

	token, err := e.Config.ResolveToken(req.Token)
	if err != nil {
		return nil, err
	}
	if err := e.NewAdapter(e.Config, token, owner, name).CheckAccess(ctx); err != nil {
		return nil, err
	}

	if req.DryRun {
		res.DryRun = true
		res.Success = true
		return res, nil
	}

	if s.doc.EnsureDirective(orgfile.DirectiveRepo, repo) {
		if err := state.WriteFileAtomic(req.File, []byte(s.doc.Text())); err != nil {
			return nil, fmt.Errorf("writing outline: %w", err)
		}
	}
	if !s.baselineExisted {
		b := types.NewBaseline(repo)
		b.LastSync = e.Now()
		if err := state.Save(s.baselinePath, b); err != nil {
			return nil, err
		}
	}
	res.Success = true
	return res, nil
}

// runUnlink drops the baseline entry and removes the binding
// properties. The remote issue is never touched.
func (e *Engine) runUnlink(req Request) (*types.Result, error) {
	res := &types.Result{Mode: req.Mode, File: req.File}

	s, err := e.open(req.File, true)
	if err != nil {
		return nil, err
	}
	defer s.lock.Release()
	res.Repo = s.repo

	number, target := 0, req.Target
	if n, err := strconv.Atoi(target); err == nil {
		number = n
	}
	var match *types.OrgHeading
	for _, h := range s.headings {
		if (number != 0 && h.Issue == number) || (number == 0 && (h.Title == target || h.Identity == target)) {
			match = h
			break
		}
	}
	if match != nil && number == 0 {
		number = match.Issue
	}
	if match == nil && number == 0 {
		return nil, fmt.Errorf("nothing matches %q", target)
	}

	_, hadBaseline := s.baseline.Record(number)
	if match == nil && !hadBaseline {
		return nil, fmt.Errorf("issue #%d is not tracked here", number)
	}

	if !req.DryRun {
		if match != nil && match.Issue != 0 {
			edits := []types.Edit{
				{Identity: match.Identity, Kind: types.EditUnsetProperty, Key: types.PropIssue},
				{Identity: match.Identity, Kind: types.EditUnsetProperty, Key: types.PropURL},
			}
			text, err := s.doc.Apply(edits)
			if err != nil {
				return nil, err
			}
			if err := state.WriteFileAtomic(req.File, []byte(text)); err != nil {
				return nil, fmt.Errorf("writing outline: %w", err)
			}
		}
		if hadBaseline {
			delete(s.baseline.Items, number)
		}
		if match != nil {
			s.baseline.ClearPending(match.Identity)
		}
		if err := state.Save(s.baselinePath, s.baseline); err != nil {
			return nil, err
		}
	}

	res.DryRun = req.DryRun
	res.Success = true
	detail := target
	if number != 0 {
		detail = fmt.Sprintf("#%d", number)
	}
	res.AddAction(types.ActionOutcome{Kind: "unlink", Number: number, Status: types.StatusUpdated, Detail: detail})
	return res, nil
}

// runSync handles sync, push, pull, and status.
func (e *Engine) runSync(ctx context.Context, req Request) (*types.Result, error) {
	res := &types.Result{Mode: req.Mode, File: req.File, DryRun: req.DryRun || req.Mode == ModeStatus}

	s, err := e.open(req.File, true)
	if err != nil {
		return nil, err
	}
	defer s.lock.Release()
	res.Repo = s.repo

	token, err := e.Config.ResolveToken(req.Token)
	if err != nil {
		return nil, err
	}
	adapter := e.NewAdapter(e.Config, token, s.owner, s.name)

	remote, err := adapter.ListIssues(ctx, nil)
	if err != nil {
		return nil, err
	}

	mode := reconcile.ModeSync
	switch req.Mode {
	case ModePush:
		mode = reconcile.ModePush
	case ModePull:
		mode = reconcile.ModePull
	}

	// Event ingestion is pull-side work; skip the extra calls on push.
	if mode != reconcile.ModePush {
		if err := e.fetchEvents(ctx, adapter, s, remote); err != nil {
			return nil, err
		}
	}

	plan, err := reconcile.Reconcile(s.headings, remote, s.baseline, reconcile.Options{
		Mode:          mode,
		Workflow:      e.Config.Workflow(),
		LabelPrefix:   s.doc.Directives[orgfile.DirectiveLabelPrefix],
		DefaultLabels: orgfile.SplitList(s.doc.Directives[orgfile.DirectiveDefaultLabels]),
		StatePolicy:   reconcile.StatePolicy(e.Config.Sync.Conflict.State),
		Force:         req.Force,
		Now:           e.Now(),
	})
	if err != nil {
		return nil, err
	}

	res.Conflicts = plan.Conflicts
	res.Warnings = plan.Warnings
	res.Counts.Conflicts = len(plan.Conflicts)

	if res.DryRun {
		previewPlan(res, plan)
		res.Success = !res.HasErrors()
		return res, nil
	}

	if err := e.apply(ctx, adapter, s, plan, req, res); err != nil {
		// State on disk reflects what succeeded; hand back the partial
		// result alongside the error.
		return res, err
	}
	res.Success = !res.HasErrors()
	return res, nil
}

// fetchEvents populates RemoteIssue.Events for bound pairs with a
// baseline record, restricted to events strictly after the baseline's
// last remote modification.
func (e *Engine) fetchEvents(ctx context.Context, adapter types.RemoteAdapter, s *session, remote []types.RemoteIssue) error {
	since := make(map[int]time.Time)
	index := make(map[int]int, len(remote))
	for i, g := range remote {
		index[g.Number] = i
	}
	for _, h := range s.headings {
		if h.Issue == 0 {
			continue
		}
		rec, ok := s.baseline.Record(h.Issue)
		if !ok {
			continue
		}
		if _, live := index[h.Issue]; !live {
			continue
		}
		since[h.Issue] = rec.GHModifiedAt
	}
	if len(since) == 0 {
		return nil
	}

	if bulk, ok := adapter.(BulkEventLister); ok {
		events, err := bulk.FetchEventsBulk(ctx, since)
		if err != nil {
			return err
		}
		for n, evs := range events {
			remote[index[n]].Events = evs
		}
		return nil
	}
	for n, after := range since {
		after := after
		evs, err := adapter.ListEvents(ctx, n, &after)
		if err != nil {
			return err
		}
		remote[index[n]].Events = evs
	}
	return nil
}

// previewPlan converts a plan into would-be outcomes for dry runs and
// status.
func previewPlan(res *types.Result, plan *types.Plan) {
	for _, a := range plan.Remote {
		switch a.Kind {
		case types.ActionCreate:
			res.AddAction(types.ActionOutcome{Kind: string(a.Kind), Identity: a.Identity, Status: types.StatusSkipped, Detail: "would create " + a.Create.Title})
		case types.ActionUpdate:
			res.AddAction(types.ActionOutcome{Kind: string(a.Kind), Identity: a.Identity, Number: a.Number, Status: types.StatusSkipped, Detail: "would update " + patchSummary(a.Patch)})
		case types.ActionSetState:
			res.AddAction(types.ActionOutcome{Kind: string(a.Kind), Identity: a.Identity, Number: a.Number, Status: types.StatusSkipped, Detail: "would set state " + string(a.State)})
		}
	}
	for _, ed := range plan.Edits {
		res.AddAction(types.ActionOutcome{Kind: "edit:" + string(ed.Kind), Identity: ed.Identity, Status: types.StatusSkipped, Detail: editSummary(ed)})
	}
}

func patchSummary(p *types.IssuePatch) string {
	var parts []string
	if p.Title != nil {
		parts = append(parts, "title")
	}
	if p.Body != nil {
		parts = append(parts, "body")
	}
	if p.Assignees != nil {
		parts = append(parts, "assignees")
	}
	if p.Labels != nil {
		parts = append(parts, "labels")
	}
	return strings.Join(parts, ",")
}

func editSummary(ed types.Edit) string {
	switch ed.Kind {
	case types.EditSetProperty, types.EditUnsetProperty:
		return ed.Key
	case types.EditAppendLog:
		return ed.Value
	default:
		return string(ed.Kind)
	}
}
