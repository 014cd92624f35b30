package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tftio/org-gh/internal/config"
	"github.com/tftio/org-gh/internal/state"
	"github.com/tftio/org-gh/internal/types"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeAdapter is an in-memory tracker.
type fakeAdapter struct {
	issues     map[int]*types.RemoteIssue
	events     map[int][]types.Event
	nextNumber int
	failCreate map[string]error // title → error
	calls      []string
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		issues:     make(map[int]*types.RemoteIssue),
		events:     make(map[int][]types.Event),
		nextNumber: 1,
		failCreate: make(map[string]error),
	}
}

func (f *fakeAdapter) CheckAccess(ctx context.Context) error {
	f.calls = append(f.calls, "check-access")
	return nil
}

func (f *fakeAdapter) ListIssues(ctx context.Context, since *time.Time) ([]types.RemoteIssue, error) {
	f.calls = append(f.calls, "list-issues")
	var out []types.RemoteIssue
	for _, i := range f.issues {
		out = append(out, *i)
	}
	return out, nil
}

func (f *fakeAdapter) GetIssue(ctx context.Context, number int) (*types.RemoteIssue, error) {
	i, ok := f.issues[number]
	if !ok {
		return nil, types.NewPermanentRemoteError(fmt.Sprintf("issue #%d not found", number), nil)
	}
	dup := *i
	return &dup, nil
}

func (f *fakeAdapter) CreateIssue(ctx context.Context, spec types.NewIssue) (*types.RemoteIssue, error) {
	f.calls = append(f.calls, "create:"+spec.Title)
	if err, ok := f.failCreate[spec.Title]; ok {
		return nil, err
	}
	n := f.nextNumber
	f.nextNumber++
	issue := &types.RemoteIssue{
		Number:    n,
		Title:     spec.Title,
		Body:      spec.Body,
		State:     spec.State,
		Labels:    spec.Labels,
		Assignees: spec.Assignees,
		HTMLURL:   fmt.Sprintf("https://github.test/acme/widgets/issues/%d", n),
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	f.issues[n] = issue
	dup := *issue
	return &dup, nil
}

func (f *fakeAdapter) UpdateIssue(ctx context.Context, number int, patch types.IssuePatch) (*types.RemoteIssue, error) {
	f.calls = append(f.calls, fmt.Sprintf("update:%d", number))
	i, ok := f.issues[number]
	if !ok {
		return nil, types.NewPermanentRemoteError(fmt.Sprintf("issue #%d not found", number), nil)
	}
	if patch.Title != nil {
		i.Title = *patch.Title
	}
	if patch.Body != nil {
		i.Body = *patch.Body
	}
	if patch.Assignees != nil {
		i.Assignees = *patch.Assignees
	}
	if patch.Labels != nil {
		i.Labels = *patch.Labels
	}
	i.UpdatedAt = testNow
	dup := *i
	return &dup, nil
}

func (f *fakeAdapter) SetIssueState(ctx context.Context, number int, st types.State, reason string) (*types.RemoteIssue, error) {
	f.calls = append(f.calls, fmt.Sprintf("set-state:%d:%s", number, st))
	i, ok := f.issues[number]
	if !ok {
		return nil, types.NewPermanentRemoteError(fmt.Sprintf("issue #%d not found", number), nil)
	}
	i.State = st
	i.StateReason = reason
	i.UpdatedAt = testNow
	dup := *i
	return &dup, nil
}

func (f *fakeAdapter) ListEvents(ctx context.Context, number int, since *time.Time) ([]types.Event, error) {
	var out []types.Event
	for _, ev := range f.events[number] {
		if since == nil || ev.Timestamp.After(*since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Sync: config.SyncConfig{
			OpenKeywords:   []string{"TODO", "NEXT", "WAIT"},
			ClosedKeywords: []string{"DONE", "CANCELLED"},
			DefaultOpen:    "TODO",
			DefaultClosed:  "DONE",
			SubstateLabels: map[string]string{"NEXT": "in-progress", "WAIT": "blocked"},
			ClosedReasons:  map[string]string{"DONE": types.ReasonCompleted, "CANCELLED": types.ReasonNotPlanned},
			LogDrawer:      "LOGBOOK",
			SyncDepth:      1,
			Conflict:       config.ConflictConfig{State: "prompt"},
		},
		Baseline: config.BaselineConfig{Location: "sibling"},
	}
}

func testEngine(fake *fakeAdapter) *Engine {
	eng := New(testConfig(), func(cfg *config.Config, token, owner, repo string) types.RemoteAdapter {
		return fake
	})
	eng.Now = func() time.Time { return testNow }
	return eng
}

func writeOutline(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes.org")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func syncReq(file string) Request {
	return Request{Mode: ModeSync, File: file, Token: "test-token"}
}

func TestSyncCreatesIssueAndBindsHeading(t *testing.T) {
	fake := newFakeAdapter()
	eng := testEngine(fake)
	file := writeOutline(t, "#+GH_REPO: acme/widgets\n* TODO Write docs\n")

	res, err := eng.Run(context.Background(), syncReq(file))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Counts.Created)

	issue := fake.issues[1]
	require.NotNil(t, issue)
	assert.Equal(t, "Write docs", issue.Title)
	assert.Equal(t, types.StateOpen, issue.State)

	text := readFile(t, file)
	assert.Contains(t, text, ":GH_ISSUE: 1")
	assert.Contains(t, text, ":GH_URL: https://github.test/acme/widgets/issues/1")
	assert.Contains(t, text, "* TODO Write docs")

	b, err := state.Load(file + state.Suffix)
	require.NoError(t, err)
	require.NotNil(t, b)
	rec, ok := b.Record(1)
	require.True(t, ok)
	assert.Equal(t, "write-docs", rec.Identity)
	assert.Equal(t, types.BodyDigest(""), rec.BodyDigest)
	assert.Empty(t, b.PendingCreates)
}

func TestSyncTwiceIsIdempotent(t *testing.T) {
	fake := newFakeAdapter()
	eng := testEngine(fake)
	file := writeOutline(t, "#+GH_REPO: acme/widgets\n* TODO Write docs\nbody text\n")

	_, err := eng.Run(context.Background(), syncReq(file))
	require.NoError(t, err)
	firstText := readFile(t, file)

	res, err := eng.Run(context.Background(), syncReq(file))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, types.Counts{}, withoutConflicts(res.Counts))
	assert.Equal(t, firstText, readFile(t, file))
}

// withoutConflicts zeroes fields the idempotence check does not cover.
func withoutConflicts(c types.Counts) types.Counts {
	c.Conflicts = 0
	return c
}

func TestSyncClosesRemotelyWhenKeywordBecomesDone(t *testing.T) {
	fake := newFakeAdapter()
	eng := testEngine(fake)
	file := writeOutline(t, "#+GH_REPO: acme/widgets\n* TODO X\n")

	_, err := eng.Run(context.Background(), syncReq(file))
	require.NoError(t, err)

	text := strings.Replace(readFile(t, file), "* TODO X", "* DONE X", 1)
	require.NoError(t, os.WriteFile(file, []byte(text), 0o644))

	res, err := eng.Run(context.Background(), syncReq(file))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts.Closed)
	assert.Equal(t, types.StateClosed, fake.issues[1].State)
	assert.Equal(t, types.ReasonCompleted, fake.issues[1].StateReason)

	b, err := state.Load(file + state.Suffix)
	require.NoError(t, err)
	rec, _ := b.Record(1)
	assert.Equal(t, "DONE", rec.Keyword)
}

func TestSyncIngestsRemoteEventsIntoLog(t *testing.T) {
	fake := newFakeAdapter()
	eng := testEngine(fake)
	file := writeOutline(t, "#+GH_REPO: acme/widgets\n* TODO X\n")

	_, err := eng.Run(context.Background(), syncReq(file))
	require.NoError(t, err)

	fake.events[1] = []types.Event{{
		Kind:      types.EventComment,
		Actor:     "mallory",
		Timestamp: testNow.Add(time.Hour),
		Body:      "ship it\nplease",
	}}
	res, err := eng.Run(context.Background(), syncReq(file))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts.Logged)

	text := readFile(t, file)
	assert.Contains(t, text, ":LOGBOOK:")
	assert.Contains(t, text, "- comment by @mallory [2024-06-01T13:00:00Z]: ship it")
	assert.NotContains(t, text, "please")
}

func TestPartialFailureKeepsBaselineAtomic(t *testing.T) {
	fake := newFakeAdapter()
	fake.failCreate["Bad one"] = types.NewPermanentRemoteError("boom", nil)
	eng := testEngine(fake)
	file := writeOutline(t, "#+GH_REPO: acme/widgets\n* TODO Bad one\n* TODO Good one\n")

	res, err := eng.Run(context.Background(), syncReq(file))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Counts.Created)
	assert.Equal(t, 1, res.Counts.Errors)

	b, err := state.Load(file + state.Suffix)
	require.NoError(t, err)
	require.Len(t, b.Items, 1)
	for _, rec := range b.Items {
		assert.Equal(t, "good-one", rec.Identity)
	}
	require.Len(t, b.PendingCreates, 1)
	assert.Equal(t, "bad-one", b.PendingCreates[0].Identity)

	text := readFile(t, file)
	assert.Contains(t, text, "Good one\n:PROPERTIES:")
	assert.NotContains(t, strings.Split(text, "Good one")[0], ":GH_ISSUE:")
}

func TestPushDoesNotPullRemoteChanges(t *testing.T) {
	fake := newFakeAdapter()
	eng := testEngine(fake)
	file := writeOutline(t, "#+GH_REPO: acme/widgets\n* TODO X\n")

	_, err := eng.Run(context.Background(), syncReq(file))
	require.NoError(t, err)

	fake.issues[1].Title = "Renamed remotely"
	res, err := eng.Run(context.Background(), Request{Mode: ModePush, File: file, Token: "t"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, readFile(t, file), "* TODO X")
	assert.Equal(t, "Renamed remotely", fake.issues[1].Title)
}

func TestPullNeverMutatesRemote(t *testing.T) {
	fake := newFakeAdapter()
	eng := testEngine(fake)
	file := writeOutline(t, "#+GH_REPO: acme/widgets\n* TODO X\n")

	_, err := eng.Run(context.Background(), syncReq(file))
	require.NoError(t, err)

	text := strings.Replace(readFile(t, file), "* TODO X", "* DONE X", 1)
	require.NoError(t, os.WriteFile(file, []byte(text), 0o644))
	callsBefore := len(fake.calls)

	res, err := eng.Run(context.Background(), Request{Mode: ModePull, File: file, Token: "t"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, types.StateOpen, fake.issues[1].State)
	for _, call := range fake.calls[callsBefore:] {
		assert.False(t, strings.HasPrefix(call, "create:") || strings.HasPrefix(call, "update:") || strings.HasPrefix(call, "set-state:"),
			"pull performed mutation %s", call)
	}
}

func TestStatusIsDryRun(t *testing.T) {
	fake := newFakeAdapter()
	eng := testEngine(fake)
	file := writeOutline(t, "#+GH_REPO: acme/widgets\n* TODO X\n")

	res, err := eng.Run(context.Background(), Request{Mode: ModeStatus, File: file, Token: "t"})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Empty(t, fake.issues)
	assert.Equal(t, 1, res.Counts.Skipped)
	// Nothing was written.
	_, err = os.Stat(file + state.Suffix)
	assert.True(t, os.IsNotExist(err))
}

func TestUnlinkRemovesBindingAndBaselineEntry(t *testing.T) {
	fake := newFakeAdapter()
	eng := testEngine(fake)
	file := writeOutline(t, "#+GH_REPO: acme/widgets\n* TODO X\n")

	_, err := eng.Run(context.Background(), syncReq(file))
	require.NoError(t, err)

	res, err := eng.Run(context.Background(), Request{Mode: ModeUnlink, File: file, Target: "1"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	text := readFile(t, file)
	assert.NotContains(t, text, ":GH_ISSUE:")
	assert.NotContains(t, text, ":GH_URL:")
	assert.Contains(t, text, "* TODO X")

	b, err := state.Load(file + state.Suffix)
	require.NoError(t, err)
	assert.Empty(t, b.Items)
	// The remote issue is untouched.
	assert.NotNil(t, fake.issues[1])
}

func TestInitAddsDirectiveAndBaseline(t *testing.T) {
	fake := newFakeAdapter()
	eng := testEngine(fake)
	file := writeOutline(t, "* TODO X\n")

	res, err := eng.Run(context.Background(), Request{Mode: ModeInit, File: file, Repo: "acme/widgets", Token: "t"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, fake.calls, "check-access")
	assert.Contains(t, readFile(t, file), "#+GH_REPO: acme/widgets")

	b, err := state.Load(file + state.Suffix)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "acme/widgets", b.Repo)
	assert.Empty(t, b.Items)
}

func TestMissingRepoDirectiveIsConfigError(t *testing.T) {
	eng := testEngine(newFakeAdapter())
	file := writeOutline(t, "* TODO X\n")
	_, err := eng.Run(context.Background(), syncReq(file))
	var cerr *types.ConfigError
	require.True(t, errors.As(err, &cerr), "err = %v", err)
}

func TestMissingTokenFailsBeforeNetwork(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")
	fake := newFakeAdapter()
	eng := testEngine(fake)
	file := writeOutline(t, "#+GH_REPO: acme/widgets\n* TODO X\n")

	req := syncReq(file)
	req.Token = ""
	_, err := eng.Run(context.Background(), req)
	var cerr *types.ConfigError
	require.True(t, errors.As(err, &cerr), "err = %v", err)
	assert.Empty(t, fake.calls)
}

func TestStateConflictIsReportedNotApplied(t *testing.T) {
	fake := newFakeAdapter()
	eng := testEngine(fake)
	file := writeOutline(t, "#+GH_REPO: acme/widgets\n* TODO X\n")

	_, err := eng.Run(context.Background(), syncReq(file))
	require.NoError(t, err)

	// Outline closes; remote moves to an in-progress sub-state.
	text := strings.Replace(readFile(t, file), "* TODO X", "* DONE X", 1)
	require.NoError(t, os.WriteFile(file, []byte(text), 0o644))
	fake.issues[1].Labels = []string{"in-progress"}
	fake.issues[1].UpdatedAt = testNow.Add(time.Hour)

	res, err := eng.Run(context.Background(), syncReq(file))
	require.NoError(t, err)
	assert.True(t, res.HasConflicts())
	assert.Equal(t, types.StateOpen, fake.issues[1].State)
	assert.Contains(t, readFile(t, file), "* DONE X")
}
