package orgfile

import (
	"errors"
	"strings"
	"testing"

	"github.com/tftio/org-gh/internal/types"
)

const sampleDoc = `#+TITLE: Project log
#+GH_REPO: acme/widgets
#+GH_DEFAULT_LABELS: from-org

Some preamble prose that sync must never touch.

* TODO Write docs :docs:urgent:
:PROPERTIES:
:GH_ISSUE: 12
:GH_URL: https://github.com/acme/widgets/issues/12
:OWNER_NOTE: keep me verbatim
:END:
:LOGBOOK:
- comment by @mallory [2024-03-01T10:00:00Z]: looks wrong
:END:
Document the flux capacitor.

More prose.
** Subtask detail
This belongs to the body of the parent.
* Ideas without a keyword
Not syncable, preserved as-is.
* DONE Ship v2
:PROPERTIES:
:LABELS: release, infra
:ASSIGNEE: alice, bob
:END:
* WAIT Blocked on vendor
`

func mustParse(t *testing.T, src string) *Document {
	t.Helper()
	doc, err := Parse(src, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func TestParseDirectives(t *testing.T) {
	doc := mustParse(t, sampleDoc)
	if got := doc.Directives[DirectiveRepo]; got != "acme/widgets" {
		t.Errorf("GH_REPO = %q, want acme/widgets", got)
	}
	if got := doc.Directives["TITLE"]; got != "Project log" {
		t.Errorf("TITLE = %q", got)
	}
	if got := doc.Directives[DirectiveDefaultLabels]; got != "from-org" {
		t.Errorf("GH_DEFAULT_LABELS = %q", got)
	}
}

func TestParseHeadings(t *testing.T) {
	doc := mustParse(t, sampleDoc)
	if len(doc.Headings) != 3 {
		t.Fatalf("got %d syncable headings, want 3", len(doc.Headings))
	}

	h := doc.Headings[0]
	if h.Keyword != "TODO" {
		t.Errorf("keyword = %q", h.Keyword)
	}
	if h.Title != "Write docs" {
		t.Errorf("title = %q", h.Title)
	}
	if h.Tags != ":docs:urgent:" {
		t.Errorf("tags = %q", h.Tags)
	}
	if v, ok := h.Prop("gh_issue"); !ok || v != "12" {
		t.Errorf("GH_ISSUE lookup = %q, %v", v, ok)
	}
	if _, ok := h.Prop("OWNER_NOTE"); !ok {
		t.Error("user property OWNER_NOTE lost")
	}

	rec, err := doc.Record(h)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.Issue != 12 {
		t.Errorf("issue = %d", rec.Issue)
	}
	wantBody := "Document the flux capacitor.\n\nMore prose.\n** Subtask detail\nThis belongs to the body of the parent."
	if rec.Body != wantBody {
		t.Errorf("body = %q\nwant %q", rec.Body, wantBody)
	}

	done := doc.Headings[1]
	if done.Keyword != "DONE" || done.Title != "Ship v2" {
		t.Errorf("second heading = %q %q", done.Keyword, done.Title)
	}
	rec2, err := doc.Record(done)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got := strings.Join(rec2.Labels, "|"); got != "release|infra" {
		t.Errorf("labels = %q", got)
	}
	if got := strings.Join(rec2.Assignees, "|"); got != "alice|bob" {
		t.Errorf("assignees = %q", got)
	}
	if rec2.Body != "" {
		t.Errorf("empty heading body = %q", rec2.Body)
	}
}

func TestParseRoundTripIsByteIdentical(t *testing.T) {
	cases := []string{
		sampleDoc,
		"",
		"no headings at all\njust prose\n",
		"* TODO One liner",
		"* TODO Trailing whitespace  \n  indented body\n",
		"#+GH_REPO: a/b\n* DONE X\n:PROPERTIES:\n:GH_ISSUE: 1\n:GH_URL: u\n:END:\nbody\n",
	}
	for _, src := range cases {
		doc := mustParse(t, src)
		if got := doc.Text(); got != src {
			t.Errorf("round trip changed bytes:\n in: %q\nout: %q", src, got)
		}
		// Applying zero edits must also be the identity.
		out, err := doc.Apply(nil)
		if err != nil {
			t.Fatalf("Apply(nil): %v", err)
		}
		if out != src {
			t.Errorf("Apply(nil) changed bytes:\n in: %q\nout: %q", src, out)
		}
	}
}

func TestParseSerializeParseYieldsEqualRecords(t *testing.T) {
	doc := mustParse(t, sampleDoc)
	again := mustParse(t, doc.Text())
	r1, err := doc.Records()
	if err != nil {
		t.Fatal(err)
	}
	r2, err := again.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(r1) != len(r2) {
		t.Fatalf("record count changed: %d vs %d", len(r1), len(r2))
	}
	for i := range r1 {
		if r1[i].Title != r2[i].Title || r1[i].Body != r2[i].Body || r1[i].Keyword != r2[i].Keyword || r1[i].Issue != r2[i].Issue {
			t.Errorf("record %d diverged: %+v vs %+v", i, r1[i], r2[i])
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantLine int
	}{
		{"directive without value", "#+GH_REPO:\n* TODO x\n", 1},
		{"unterminated properties", "* TODO x\n:PROPERTIES:\n:GH_ISSUE: 1\n", 2},
		{"malformed property line", "* TODO x\n:PROPERTIES:\nnot a property\n:END:\n", 3},
		{"duplicate property", "* TODO x\n:PROPERTIES:\n:LABELS: a\n:labels: b\n:END:\n", 4},
		{"invalid issue number", "* TODO x\n:PROPERTIES:\n:GH_ISSUE: twelve\n:END:\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(tt.src, DefaultOptions())
			if err == nil {
				_, err = doc.Records()
			}
			var perr *types.ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("got %v, want ParseError", err)
			}
			if perr.Line != tt.wantLine {
				t.Errorf("line = %d, want %d", perr.Line, tt.wantLine)
			}
		})
	}
}

func TestHeadingsWithoutKeywordAreNotSyncable(t *testing.T) {
	doc := mustParse(t, "* Just a note\n* TODOX not a keyword\n* TODO Real\n")
	if len(doc.Headings) != 1 || doc.Headings[0].Title != "Real" {
		t.Fatalf("headings = %+v", doc.Headings)
	}
}

func TestSyncDepth(t *testing.T) {
	opts := DefaultOptions()
	opts.SyncDepth = 2
	doc, err := Parse("* TODO Top\n** TODO Nested\n", opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Headings) != 1 || doc.Headings[0].Title != "Nested" {
		t.Fatalf("headings = %+v", doc.Headings)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" a, b ,a,, c ")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("SplitList = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SplitList = %v, want %v", got, want)
		}
	}
}

func TestEnsureDirective(t *testing.T) {
	doc := mustParse(t, "#+TITLE: x\n\n* TODO a\n")
	if !doc.EnsureDirective("GH_REPO", "acme/widgets") {
		t.Fatal("EnsureDirective reported no change")
	}
	if doc.EnsureDirective("GH_REPO", "other/repo") {
		t.Fatal("EnsureDirective overwrote an existing directive")
	}
	want := "#+TITLE: x\n#+GH_REPO: acme/widgets\n\n* TODO a\n"
	if doc.Text() != want {
		t.Errorf("text = %q, want %q", doc.Text(), want)
	}
	// Anchors must still point at the heading after the insertion.
	doc.Headings[0].Identity = "a"
	out, err := doc.Apply([]types.Edit{{Identity: "a", Kind: types.EditSetKeyword, Value: "DONE"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "* DONE a") {
		t.Errorf("keyword edit after directive insertion broke anchors:\n%s", out)
	}
}
