package orgfile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tftio/org-gh/internal/types"
)

// splice replaces lines [start,end) with replacement lines. An
// insertion has start == end.
type splice struct {
	start, end int
	lines      []string
}

// headingEdits accumulates the per-heading changes before they are
// rendered into splices.
type headingEdits struct {
	props      []Property
	propsDirty bool
	newBody    *string
	newKeyword string
	newTitle   *string
	logEntries []string
}

// Apply renders the edit sequence into a new document text. The input
// document is not modified, and bytes outside the touched headings'
// heading line, properties block, body, and log drawer are identical to
// the original. Splices are applied in reverse source order so earlier
// anchors stay valid.
func (d *Document) Apply(edits []types.Edit) (string, error) {
	if len(edits) == 0 {
		return d.Text(), nil
	}

	perHeading := make(map[string]*headingEdits)
	order := make([]string, 0, len(edits))
	for _, e := range edits {
		h, ok := d.Heading(e.Identity)
		if !ok {
			return "", fmt.Errorf("edit targets unknown heading %q", e.Identity)
		}
		he, ok := perHeading[e.Identity]
		if !ok {
			he = &headingEdits{props: append([]Property(nil), h.Properties...)}
			perHeading[e.Identity] = he
			order = append(order, e.Identity)
		}
		switch e.Kind {
		case types.EditSetProperty:
			he.props = setProperty(he.props, e.Key, e.Value)
			he.propsDirty = true
		case types.EditUnsetProperty:
			he.props = unsetProperty(he.props, e.Key)
			he.propsDirty = true
		case types.EditSetBody:
			v := e.Value
			he.newBody = &v
		case types.EditSetKeyword:
			he.newKeyword = e.Value
		case types.EditSetTitle:
			v := e.Value
			he.newTitle = &v
		case types.EditAppendLog:
			he.logEntries = append(he.logEntries, e.Value)
		default:
			return "", fmt.Errorf("unknown edit kind %q", e.Kind)
		}
	}

	var splices []splice
	for _, identity := range order {
		h, _ := d.Heading(identity)
		splices = append(splices, d.headingSplices(h, perHeading[identity])...)
	}

	// Reverse source order; when an insertion shares its start with a
	// replacement, the replacement goes first so the insertion lands
	// ahead of the replaced region rather than inside it.
	sort.Slice(splices, func(i, j int) bool {
		if splices[i].start != splices[j].start {
			return splices[i].start > splices[j].start
		}
		return splices[i].end > splices[j].end
	})

	lines := append([]string(nil), d.lines...)
	for _, s := range splices {
		lines = append(lines[:s.start], append(s.lines, lines[s.end:]...)...)
	}
	return strings.Join(lines, "\n"), nil
}

// headingSplices renders one heading's accumulated edits. The heading
// line, properties block, log drawer, and body are disjoint ranges, so
// the produced splices never overlap.
func (d *Document) headingSplices(h *Heading, he *headingEdits) []splice {
	var out []splice

	// The keyword and title are disjoint spans of the heading line;
	// rewrite the title first so the keyword offsets stay valid.
	if (he.newKeyword != "" && he.newKeyword != h.Keyword) || he.newTitle != nil {
		raw := d.lines[h.headingLine]
		if he.newTitle != nil {
			sep := ""
			if h.titleStart == h.kwEnd {
				sep = " "
			}
			raw = raw[:h.titleStart] + sep + *he.newTitle + raw[h.titleEnd:]
		}
		if he.newKeyword != "" && he.newKeyword != h.Keyword {
			raw = raw[:h.kwStart] + he.newKeyword + raw[h.kwEnd:]
		}
		out = append(out, splice{
			start: h.headingLine,
			end:   h.headingLine + 1,
			lines: []string{raw},
		})
	}

	var propLines, logLines []string
	if he.propsDirty {
		propLines = renderProperties(he.props, d.propIndent(h))
	}
	if len(he.logEntries) > 0 && h.logStart < 0 {
		logLines = renderLogDrawer(he.logEntries, d.opts.LogDrawer)
	}

	switch {
	case h.propStart < 0 && (propLines != nil || logLines != nil):
		// No properties block yet: new blocks go right after the heading
		// line, properties first.
		out = append(out, splice{
			start: h.headingLine + 1,
			end:   h.headingLine + 1,
			lines: append(propLines, logLines...),
		})
	default:
		if propLines != nil {
			if len(he.props) == 0 {
				propLines = nil // drop an emptied block entirely
			}
			out = append(out, splice{start: h.propStart, end: h.propEnd + 1, lines: propLines})
		}
		if logLines != nil {
			out = append(out, splice{start: h.propEnd + 1, end: h.propEnd + 1, lines: logLines})
		}
	}

	if len(he.logEntries) > 0 && h.logStart >= 0 {
		indent := leadingWhitespace(d.lines[h.logStart])
		entries := make([]string, 0, len(he.logEntries))
		for _, e := range he.logEntries {
			entries = append(entries, indent+"- "+e)
		}
		// Append before :END:, keeping existing entries in place.
		out = append(out, splice{start: h.logEnd, end: h.logEnd, lines: entries})
	}

	if he.newBody != nil {
		out = append(out, splice{
			start: h.bodyStart,
			end:   h.bodyEnd,
			lines: renderBody(d.lines[h.bodyStart:h.bodyEnd], *he.newBody),
		})
	}
	return out
}

// propIndent picks the indentation for a rewritten properties block:
// the original block's, or none for a fresh block.
func (d *Document) propIndent(h *Heading) string {
	if h.propStart >= 0 {
		return leadingWhitespace(d.lines[h.propStart])
	}
	return ""
}

func leadingWhitespace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

// setProperty updates or appends a property. Recognized keys are
// written in canonical upper case.
func setProperty(props []Property, key, value string) []Property {
	upper := strings.ToUpper(key)
	for i, p := range props {
		if strings.ToUpper(p.Key) == upper {
			props[i].Value = value
			props[i].raw = ""
			if types.IsRecognizedProperty(key) {
				props[i].Key = upper
			}
			return props
		}
	}
	k := key
	if types.IsRecognizedProperty(key) {
		k = upper
	}
	return append(props, Property{Key: k, Value: value})
}

func unsetProperty(props []Property, key string) []Property {
	upper := strings.ToUpper(key)
	out := props[:0]
	for _, p := range props {
		if strings.ToUpper(p.Key) != upper {
			out = append(out, p)
		}
	}
	return out
}

// renderProperties writes the block in canonical order: recognized keys
// first, then user keys in their original order. Untouched user
// properties keep their original raw lines.
func renderProperties(props []Property, indent string) []string {
	if len(props) == 0 {
		return []string{}
	}
	lines := []string{indent + ":PROPERTIES:"}
	for _, want := range types.RecognizedProperties {
		for _, p := range props {
			if strings.ToUpper(p.Key) == want {
				lines = append(lines, renderProperty(p, indent))
			}
		}
	}
	for _, p := range props {
		if !types.IsRecognizedProperty(p.Key) {
			lines = append(lines, renderProperty(p, indent))
		}
	}
	return append(lines, indent+":END:")
}

func renderProperty(p Property, indent string) string {
	if p.raw != "" {
		return p.raw
	}
	if p.Value == "" {
		return indent + ":" + p.Key + ":"
	}
	return indent + ":" + p.Key + ": " + p.Value
}

// renderLogDrawer builds a fresh log drawer holding the given entries.
func renderLogDrawer(entries []string, drawer string) []string {
	lines := []string{":" + drawer + ":"}
	for _, e := range entries {
		lines = append(lines, "- "+e)
	}
	return append(lines, ":END:")
}

// renderBody replaces a body region, keeping the original's leading and
// trailing blank lines so spacing around the heading survives.
func renderBody(orig []string, value string) []string {
	lead, trail := 0, 0
	for lead < len(orig) && strings.TrimSpace(orig[lead]) == "" {
		lead++
	}
	if lead < len(orig) {
		for trail < len(orig)-lead && strings.TrimSpace(orig[len(orig)-1-trail]) == "" {
			trail++
		}
	} else {
		// Whole region was blank; keep it as the trailing separation.
		lead, trail = 0, len(orig)
	}
	out := make([]string, 0, lead+trail+strings.Count(value, "\n")+1)
	for i := 0; i < lead; i++ {
		out = append(out, "")
	}
	if value != "" {
		out = append(out, strings.Split(strings.TrimRight(value, "\n"), "\n")...)
	}
	for i := 0; i < trail; i++ {
		out = append(out, "")
	}
	return out
}
