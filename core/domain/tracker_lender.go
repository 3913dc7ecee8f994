package domain

import (
	"sort"
	"strings"
)

// LenderDirectory maps a lender identity to the sender addresses accepted
// for it. Keys and addresses compare case-insensitively.
type LenderDirectory struct {
	contacts map[string]map[string]struct{}
}

func NewLenderDirectory(entries map[string][]string) *LenderDirectory {
	d := &LenderDirectory{contacts: make(map[string]map[string]struct{})}
	for lender, emails := range entries {
		d.Add(lender, emails...)
	}
	return d
}

// Add merges addresses into lender's entry. Blank values are ignored.
func (d *LenderDirectory) Add(lender string, emails ...string) {
	key := normalizeKey(lender)
	if key == "" {
		return
	}
	set, ok := d.contacts[key]
	if !ok {
		set = make(map[string]struct{})
		d.contacts[key] = set
	}
	for _, e := range emails {
		if e = NormalizeAddress(e); e != "" {
			set[e] = struct{}{}
		}
	}
}

// Emails returns the sorted addresses for lender.
func (d *LenderDirectory) Emails(lender string) []string {
	if d == nil {
		return nil
	}
	set := d.contacts[normalizeKey(lender)]
	out := make([]string, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Accepts reports whether address is on lender's list.
func (d *LenderDirectory) Accepts(lender, address string) bool {
	if d == nil {
		return false
	}
	_, ok := d.contacts[normalizeKey(lender)][NormalizeAddress(address)]
	return ok
}

// Len returns the number of lenders with at least one entry.
func (d *LenderDirectory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.contacts)
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeAddress lower-cases and trims an address.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
