// Package output emits the structured result on stdout, as JSON or as
// a plist-style s-expression for editor ingestion.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tftio/org-gh/internal/types"
)

// Format selects the machine encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatSexp Format = "sexp"
)

// Write encodes the result in the requested format.
func Write(w io.Writer, format Format, res *types.Result) error {
	switch format {
	case FormatSexp:
		_, err := io.WriteString(w, EncodeSexp(res)+"\n")
		return err
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
}

// EncodeSexp renders the result as a property list readable by the
// elisp reader.
func EncodeSexp(res *types.Result) string {
	var b strings.Builder
	b.WriteString("(:mode ")
	b.WriteString(sexpString(res.Mode))
	b.WriteString(" :repo ")
	b.WriteString(sexpString(res.Repo))
	b.WriteString(" :file ")
	b.WriteString(sexpString(res.File))
	b.WriteString(" :dry-run ")
	b.WriteString(sexpBool(res.DryRun))
	b.WriteString(" :success ")
	b.WriteString(sexpBool(res.Success))
	if res.Error != "" {
		b.WriteString(" :error ")
		b.WriteString(sexpString(res.Error))
	}

	b.WriteString(" :actions (")
	for i, a := range res.Actions {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("(:kind ")
		b.WriteString(sexpString(a.Kind))
		if a.Identity != "" {
			b.WriteString(" :identity ")
			b.WriteString(sexpString(a.Identity))
		}
		if a.Number != 0 {
			b.WriteString(" :number ")
			b.WriteString(strconv.Itoa(a.Number))
		}
		b.WriteString(" :status ")
		b.WriteString(sexpString(string(a.Status)))
		if a.Detail != "" {
			b.WriteString(" :detail ")
			b.WriteString(sexpString(a.Detail))
		}
		b.WriteByte(')')
	}
	b.WriteByte(')')

	b.WriteString(" :conflicts (")
	for i, c := range res.Conflicts {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "(:field %s :identity %s :number %d :org %s :gh %s :base %s :resolution %s)",
			sexpString(c.Field), sexpString(c.Identity), c.Number,
			sexpString(c.Org), sexpString(c.Remote), sexpString(c.Base),
			sexpString(string(c.Resolution)))
	}
	b.WriteByte(')')

	b.WriteString(" :warnings (")
	for i, w := range res.Warnings {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(sexpString(w))
	}
	b.WriteByte(')')

	fmt.Fprintf(&b,
		" :counts (:created %d :updated %d :closed %d :reopened %d :pulled %d :logged %d :skipped %d :conflicts %d :errors %d)",
		res.Counts.Created, res.Counts.Updated, res.Counts.Closed, res.Counts.Reopened,
		res.Counts.Pulled, res.Counts.Logged, res.Counts.Skipped, res.Counts.Conflicts, res.Counts.Errors)

	b.WriteByte(')')
	return b.String()
}

// sexpString escapes per elisp reader rules: backslash and double
// quote, and newline as \n.
func sexpString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(s[i])
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(s[i])
		}
	}
	b.WriteByte('"')
	return b.String()
}

func sexpBool(v bool) string {
	if v {
		return "t"
	}
	return "nil"
}
