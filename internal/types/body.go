package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CanonicalBody normalizes a body for comparison: trailing whitespace is
// stripped from each line and the text carries exactly one final newline
// (none when empty). Both sides of every body comparison pass through
// this, so editors that trim whitespace differently do not fabricate
// diffs.
func CanonicalBody(s string) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	out := strings.Join(lines, "\n")
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return ""
	}
	return out + "\n"
}

// BodyDigest returns the hex sha256 of the canonical body. Baselines
// store the digest rather than the text.
func BodyDigest(s string) string {
	sum := sha256.Sum256([]byte(CanonicalBody(s)))
	return hex.EncodeToString(sum[:])
}

// SameBody compares two bodies in canonical form.
func SameBody(a, b string) bool {
	return CanonicalBody(a) == CanonicalBody(b)
}

// SameStringSet compares two string slices as sets.
func SameStringSet(a, b []string) bool {
	as, bs := toSet(a), toSet(b)
	if len(as) != len(bs) {
		return false
	}
	for s := range as {
		if !bs[s] {
			return false
		}
	}
	return true
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
