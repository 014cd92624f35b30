package reconcile

import (
	"strings"

	"github.com/tftio/org-gh/internal/types"
)

// labelView translates label sets between the outline's namespace and
// the tracker's. With a prefix configured, only prefixed remote labels
// are managed by sync; everything else on the remote is left alone.
// Sub-state labels are never part of either view — they follow the
// reconciled workflow state.
type labelView struct {
	prefix   string
	workflow *types.WorkflowMap
}

// fromRemote extracts the outline-namespace view of a remote label set.
func (v labelView) fromRemote(labels []string) []string {
	var out []string
	for _, l := range labels {
		if v.workflow.IsSubstateLabel(l) {
			continue
		}
		if v.prefix != "" {
			if !strings.HasPrefix(l, v.prefix) {
				continue
			}
			l = strings.TrimPrefix(l, v.prefix)
		}
		out = append(out, l)
	}
	return out
}

// toRemote builds the full remote label set for an issue: the managed
// labels (prefixed when configured), the unmanaged remote labels
// preserved as-is, and the sub-state label for the reconciled keyword.
// With preserveSubstate set — the state decision did not flow toward
// the remote — the remote's current sub-state labels are kept instead
// of being re-derived.
func (v labelView) toRemote(managed []string, currentRemote []string, keyword string, preserveSubstate bool) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(l string) {
		if l != "" && !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	for _, l := range managed {
		if v.prefix != "" {
			l = v.prefix + l
		}
		add(l)
	}
	if v.prefix != "" {
		for _, l := range currentRemote {
			if v.workflow.IsSubstateLabel(l) || strings.HasPrefix(l, v.prefix) {
				continue
			}
			add(l)
		}
	}
	if preserveSubstate {
		for _, l := range currentRemote {
			if v.workflow.IsSubstateLabel(l) {
				add(l)
			}
		}
	} else if sub, ok := v.workflow.SubstateLabel(keyword); ok {
		add(sub)
	}
	return out
}

// unionMerge applies the label merge rule. A label survives when both
// sides carry it, or when the side carrying it added it since the
// baseline; a label one side removed is dropped even though the other
// side still carries its inherited copy.
//
// Order is deterministic: the outline's order first, then remote-only
// labels in remote order.
func unionMerge(org, remote, base []string) []string {
	inOrg := toSet(org)
	inRemote := toSet(remote)
	inBase := toSet(base)

	keep := func(l string) bool {
		switch {
		case inOrg[l] && inRemote[l]:
			return true
		case inOrg[l] && !inBase[l]: // added on the outline side
			return true
		case inRemote[l] && !inBase[l]: // added on the remote side
			return true
		}
		return false
	}

	var out []string
	seen := make(map[string]bool)
	for _, l := range append(append([]string{}, org...), remote...) {
		if !seen[l] && keep(l) {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
