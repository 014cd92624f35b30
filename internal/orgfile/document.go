// Package orgfile reads and writes the outline document. The parser
// yields syncable headings with line-range anchors; the writer applies
// targeted edits back to the original text and leaves every byte
// outside the edited anchors untouched.
package orgfile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tftio/org-gh/internal/types"
)

// Directive keys consumed from the file prologue.
const (
	DirectiveRepo          = "GH_REPO"
	DirectiveLabelPrefix   = "GH_LABEL_PREFIX"
	DirectiveDefaultLabels = "GH_DEFAULT_LABELS"
)

// Options controls parsing. Keywords must list every recognized
// workflow keyword; a heading is syncable when it sits at SyncDepth and
// opens with one of them.
type Options struct {
	Keywords  []string
	LogDrawer string // drawer name holding sync-managed log entries
	SyncDepth int    // heading level that participates in sync
}

// DefaultOptions matches the stock workflow configuration.
func DefaultOptions() Options {
	return Options{
		Keywords:  []string{"TODO", "NEXT", "WAIT", "DONE", "CANCELLED"},
		LogDrawer: "LOGBOOK",
		SyncDepth: 1,
	}
}

// Property is one drawer entry. raw holds the original line for user
// properties so an untouched key round-trips byte-for-byte even when
// its block is rewritten.
type Property struct {
	Key   string
	Value string
	raw   string
}

// Heading is one syncable heading with enough source anchors for the
// writer. Line anchors are indices into the document's line slice;
// keyword and title anchors are byte offsets within the heading line.
type Heading struct {
	Identity string // assigned by the caller after identity resolution
	Level    int
	Keyword  string
	Title    string
	Tags     string // raw trailing tag string including colons, "" if none

	Properties []Property

	headingLine            int
	kwStart, kwEnd         int // byte offsets of the keyword in the heading line
	titleStart, titleEnd   int // byte offsets of the title in the heading line
	propStart, propEnd int // inclusive drawer bounds, -1 when absent
	logStart, logEnd   int // inclusive drawer bounds, -1 when absent
	bodyStart, bodyEnd int // [start,end) body lines
	sectionEnd         int
}

// Prop looks up a property value case-insensitively.
func (h *Heading) Prop(key string) (string, bool) {
	upper := strings.ToUpper(key)
	for _, p := range h.Properties {
		if strings.ToUpper(p.Key) == upper {
			return p.Value, true
		}
	}
	return "", false
}

// Document is a parsed outline: the original lines, the prologue
// directives, and the syncable headings. Text not owned by a syncable
// heading is never represented and therefore never rewritten.
type Document struct {
	lines      []string
	opts       Options
	Directives map[string]string
	Headings   []*Heading

	lastDirectiveLine int // -1 when the prologue has no directives
}

// Text reassembles the document.
func (d *Document) Text() string {
	return strings.Join(d.lines, "\n")
}

// Heading returns the syncable heading with the given identity.
func (d *Document) Heading(identity string) (*Heading, bool) {
	for _, h := range d.Headings {
		if h.Identity == identity {
			return h, true
		}
	}
	return nil, false
}

// EnsureDirective adds "#+KEY: value" to the prologue when the key is
// absent, returning whether the document changed.
func (d *Document) EnsureDirective(key, value string) bool {
	if _, ok := d.Directives[strings.ToUpper(key)]; ok {
		return false
	}
	line := "#+" + strings.ToUpper(key) + ": " + value
	at := d.lastDirectiveLine + 1
	d.lines = append(d.lines[:at], append([]string{line}, d.lines[at:]...)...)
	d.lastDirectiveLine = at
	d.Directives[strings.ToUpper(key)] = value
	d.shiftAnchors(at, 1)
	return true
}

// shiftAnchors moves every anchor at or past line "at" by delta lines.
func (d *Document) shiftAnchors(at, delta int) {
	adj := func(n int) int {
		if n >= at {
			return n + delta
		}
		return n
	}
	for _, h := range d.Headings {
		h.headingLine = adj(h.headingLine)
		if h.propStart >= 0 {
			h.propStart, h.propEnd = adj(h.propStart), adj(h.propEnd)
		}
		if h.logStart >= 0 {
			h.logStart, h.logEnd = adj(h.logStart), adj(h.logEnd)
		}
		h.bodyStart, h.bodyEnd = adj(h.bodyStart), adj(h.bodyEnd)
		h.sectionEnd = adj(h.sectionEnd)
	}
}

// body returns the heading's body with leading and trailing blank lines
// trimmed. The log drawer is excluded by construction.
func (h *Heading) body(lines []string) string {
	seg := lines[h.bodyStart:h.bodyEnd]
	start, end := 0, len(seg)
	for start < end && strings.TrimSpace(seg[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(seg[end-1]) == "" {
		end--
	}
	if start == end {
		return ""
	}
	return strings.Join(seg[start:end], "\n")
}

// Record converts the heading to its normalized view.
func (d *Document) Record(h *Heading) (*types.OrgHeading, error) {
	rec := &types.OrgHeading{
		Title:   h.Title,
		Keyword: h.Keyword,
		Body:    h.body(d.lines),
	}
	if v, ok := h.Prop(types.PropIssue); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return nil, &types.ParseError{
				Line: h.headingLine + 1,
				Msg:  fmt.Sprintf("heading %q has invalid %s value %q", h.Title, types.PropIssue, v),
			}
		}
		rec.Issue = n
	}
	if v, ok := h.Prop(types.PropURL); ok {
		rec.URL = v
	}
	if v, ok := h.Prop(types.PropCustomID); ok {
		rec.CustomID = v
	}
	if v, ok := h.Prop(types.PropAssignee); ok {
		rec.Assignees = SplitList(v)
	}
	if v, ok := h.Prop(types.PropLabels); ok {
		rec.Labels = SplitList(v)
	}
	return rec, nil
}

// Records normalizes every syncable heading.
func (d *Document) Records() ([]*types.OrgHeading, error) {
	out := make([]*types.OrgHeading, 0, len(d.Headings))
	for _, h := range d.Headings {
		rec, err := d.Record(h)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// SplitList parses a comma-separated property value into a de-duplicated
// list, preserving first-seen order.
func SplitList(v string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}

// JoinList renders a list as a comma-separated property value.
func JoinList(vs []string) string {
	return strings.Join(vs, ", ")
}
