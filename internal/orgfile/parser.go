package orgfile

import (
	"regexp"
	"strings"

	"github.com/tftio/org-gh/internal/types"
)

var (
	headingPattern   = regexp.MustCompile(`^(\*+)[ \t]+(.*)$`)
	directivePattern = regexp.MustCompile(`^#\+([A-Za-z_][A-Za-z0-9_]*):(.*)$`)
	tagsPattern      = regexp.MustCompile(`[ \t]+(:[A-Za-z0-9_@#%]+(?::[A-Za-z0-9_@#%]+)*:)[ \t]*$`)
	propLinePattern  = regexp.MustCompile(`^[ \t]*:([^:\s]+):[ \t]*(.*)$`)
)

// Parse reads an outline document. Parsing never mutates the input:
// Text() on the result reproduces it byte-for-byte.
func Parse(src string, opts Options) (*Document, error) {
	if opts.LogDrawer == "" {
		opts.LogDrawer = "LOGBOOK"
	}
	if opts.SyncDepth == 0 {
		opts.SyncDepth = 1
	}
	d := &Document{
		lines:             strings.Split(src, "\n"),
		opts:              opts,
		Directives:        make(map[string]string),
		lastDirectiveLine: -1,
	}

	// Prologue: directives live before the first heading.
	firstHeading := len(d.lines)
	for i, line := range d.lines {
		if headingPattern.MatchString(line) {
			firstHeading = i
			break
		}
	}
	for i := 0; i < firstHeading; i++ {
		m := directivePattern.FindStringSubmatch(d.lines[i])
		if m == nil {
			continue
		}
		key := strings.ToUpper(m[1])
		value := strings.TrimSpace(m[2])
		if value == "" {
			return nil, &types.ParseError{Line: i + 1, Msg: "directive #+" + key + ": has no value"}
		}
		d.Directives[key] = value
		d.lastDirectiveLine = i
	}

	// Headings.
	for i := firstHeading; i < len(d.lines); i++ {
		m := headingPattern.FindStringSubmatch(d.lines[i])
		if m == nil {
			continue
		}
		level := len(m[1])
		end := d.sectionEnd(i+1, level)
		if level < opts.SyncDepth {
			continue // descend: syncable headings sit deeper
		}
		if level > opts.SyncDepth {
			i = end - 1
			continue
		}
		h, err := d.parseHeading(i, level, m[2], end)
		if err != nil {
			return nil, err
		}
		if h != nil {
			d.Headings = append(d.Headings, h)
		}
		i = end - 1
	}
	return d, nil
}

// sectionEnd returns the exclusive end of the section starting after a
// heading of the given level: the next heading line at the same or a
// shallower level, or end of file.
func (d *Document) sectionEnd(from, level int) int {
	for i := from; i < len(d.lines); i++ {
		if m := headingPattern.FindStringSubmatch(d.lines[i]); m != nil && len(m[1]) <= level {
			return i
		}
	}
	return len(d.lines)
}

// parseHeading builds a Heading record, or nil when the heading carries
// no recognized workflow keyword and is therefore not syncable.
func (d *Document) parseHeading(line, level int, rest string, sectionEnd int) (*Heading, error) {
	h := &Heading{
		Level:       level,
		headingLine: line,
		propStart:   -1,
		propEnd:     -1,
		logStart:    -1,
		logEnd:      -1,
		sectionEnd:  sectionEnd,
	}

	// Trailing tags are preserved, never synced.
	title := rest
	if m := tagsPattern.FindStringSubmatchIndex(rest); m != nil {
		h.Tags = rest[m[2]:m[3]]
		title = rest[:m[0]]
	}

	// The workflow keyword is the first word of the heading text, when
	// recognized. Headings without one are left alone entirely.
	kw, after := splitKeyword(title, d.opts.Keywords)
	if kw == "" {
		return nil, nil
	}
	h.Keyword = kw
	h.Title = strings.TrimSpace(after)

	raw := d.lines[line]
	h.kwStart = strings.Index(raw, kw)
	h.kwEnd = h.kwStart + len(kw)
	h.titleStart = h.kwEnd
	for h.titleStart < len(raw) && (raw[h.titleStart] == ' ' || raw[h.titleStart] == '\t') {
		h.titleStart++
	}
	h.titleEnd = h.titleStart + len(h.Title)

	cursor := line + 1
	var err error
	if cursor < sectionEnd && isDrawerStart(d.lines[cursor], "PROPERTIES") {
		h.propStart = cursor
		h.propEnd, err = d.parseDrawer(cursor, sectionEnd, &h.Properties)
		if err != nil {
			return nil, err
		}
		cursor = h.propEnd + 1
	}
	if cursor < sectionEnd && isDrawerStart(d.lines[cursor], d.opts.LogDrawer) {
		h.logStart = cursor
		h.logEnd, err = d.parseDrawer(cursor, sectionEnd, nil)
		if err != nil {
			return nil, err
		}
		cursor = h.logEnd + 1
	}
	h.bodyStart, h.bodyEnd = cursor, sectionEnd
	return h, nil
}

// splitKeyword returns the recognized keyword opening the heading text
// and the remainder, or "" when the first word is not a keyword.
func splitKeyword(text string, keywords []string) (string, string) {
	word := text
	rest := ""
	if idx := strings.IndexAny(text, " \t"); idx >= 0 {
		word, rest = text[:idx], text[idx:]
	}
	for _, kw := range keywords {
		if word == kw {
			return kw, rest
		}
	}
	return "", text
}

func isDrawerStart(line, name string) bool {
	return strings.EqualFold(strings.TrimSpace(line), ":"+name+":")
}

func isDrawerEnd(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), ":END:")
}

// parseDrawer scans a drawer from its opening line to :END:, returning
// the index of the closing line. When props is non-nil the contents are
// parsed as key/value properties; otherwise they are opaque (log
// drawers).
func (d *Document) parseDrawer(start, sectionEnd int, props *[]Property) (int, error) {
	name := strings.Trim(strings.TrimSpace(d.lines[start]), ":")
	end := -1
	for i := start + 1; i < sectionEnd; i++ {
		if isDrawerEnd(d.lines[i]) {
			end = i
			break
		}
	}
	if end < 0 {
		return 0, &types.ParseError{Line: start + 1, Msg: "unterminated " + name + " drawer"}
	}
	if props == nil {
		return end, nil
	}
	seen := make(map[string]bool)
	for i := start + 1; i < end; i++ {
		line := d.lines[i]
		m := propLinePattern.FindStringSubmatch(line)
		if m == nil {
			return 0, &types.ParseError{Line: i + 1, Msg: "malformed line in " + name + " drawer"}
		}
		key := strings.ToUpper(m[1])
		if seen[key] {
			return 0, &types.ParseError{Line: i + 1, Msg: "duplicate property " + key}
		}
		seen[key] = true
		*props = append(*props, Property{
			Key:   m[1],
			Value: strings.TrimSpace(m[2]),
			raw:   line,
		})
	}
	return end, nil
}
