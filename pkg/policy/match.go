package policy

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var foldCaser = cases.Fold()

// Normalize prepares an identifier or vendor label for list comparison:
// NFKC normalization, Unicode case folding, surrounding space trimmed.
// Full-width vendor names from email bodies compare equal to their ASCII
// forms this way.
func Normalize(s string) string {
	return strings.TrimSpace(foldCaser.String(norm.NFKC.String(s)))
}

// matches reports whether entry matches candidate under the given mode,
// both already normalized.
func matches(mode MatchMode, entry, candidate string) bool {
	if entry == "" || candidate == "" {
		return false
	}
	if mode == MatchExact {
		return entry == candidate
	}
	return strings.Contains(candidate, entry)
}

// listContains reports whether any list entry matches the recipient or
// vendor, plus the entry that matched (for violation detail).
func (p *Policy) listContains(list []string, recipient, vendor string) (bool, string) {
	r := Normalize(recipient)
	v := Normalize(vendor)
	for _, raw := range list {
		entry := Normalize(raw)
		if matches(p.ListMatch, entry, r) || matches(p.ListMatch, entry, v) {
			return true, raw
		}
	}
	return false, ""
}

// Blocked reports whether the recipient or vendor hits the block list.
// Block membership is terminal: it wins over any allow-list entry.
func (p *Policy) Blocked(recipient, vendor string) (bool, string) {
	return p.listContains(p.BlockList, recipient, vendor)
}

// Allowed reports whether the allow list admits the recipient or vendor.
// An empty allow list admits everyone.
func (p *Policy) Allowed(recipient, vendor string) bool {
	if len(p.AllowList) == 0 {
		return true
	}
	ok, _ := p.listContains(p.AllowList, recipient, vendor)
	return ok
}
