// Package identity derives and resolves the stable, rename-invariant
// keys that tie outline headings to baseline records.
package identity

import (
	"fmt"
	"strings"

	"github.com/tftio/org-gh/internal/types"
)

// Slug derives an identity from a heading title: lowercased, runs of
// non-alphanumerics collapsed to single hyphens, leading and trailing
// hyphens stripped.
func Slug(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	pendingHyphen := false
	for _, r := range strings.ToLower(title) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		} else {
			pendingHyphen = true
		}
	}
	return b.String()
}

// Resolve assigns an identity to each heading and enforces uniqueness
// within the outline. Bound headings take the baseline's identity for
// their issue number so that title edits never move them; unbound
// headings use CUSTOM_ID when present, else a slug of the current title.
func Resolve(headings []*types.OrgHeading, baseline *types.Baseline) error {
	seen := make(map[string]string) // identity → title that claimed it
	for _, h := range headings {
		id := ""
		if h.Issue != 0 {
			if rec, ok := baseline.Record(h.Issue); ok {
				id = rec.Identity
			}
		}
		if id == "" {
			if h.CustomID != "" {
				id = h.CustomID
			} else {
				id = Slug(h.Title)
			}
		}
		if id == "" {
			return &types.ParseError{Msg: fmt.Sprintf("heading %q yields an empty identity; set CUSTOM_ID", h.Title)}
		}
		if prev, dup := seen[id]; dup {
			return &types.ParseError{Msg: fmt.Sprintf("headings %q and %q share identity %q; set CUSTOM_ID on one", prev, h.Title, id)}
		}
		seen[id] = h.Title
		h.Identity = id
	}
	return nil
}
