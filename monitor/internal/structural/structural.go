// Package structural detects changes in high-value fields (price, version,
// date, email) extracted from raw markup by regex. It complements the text
// diff: a price change can be textually tiny yet business-critical, so this
// detector runs regardless of the diff engine's sensitivity gate.
package structural

import (
	"regexp"
	"sort"
)

// Field is one named extraction pattern in the registry. Extend detection by
// adding registry entries, not by special-casing code.
type Field struct {
	Name     string
	Pattern  *regexp.Regexp
	Category string // "pricing" for price, "content" for everything else
}

// FieldChange reports the set difference of a field's matches between two
// versions of the markup.
type FieldChange struct {
	Field    string   `json:"field"`
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Category string   `json:"category"`
}

// Registry is the fixed set of monitored fields.
var Registry = []Field{
	{
		Name:     "version",
		Pattern:  regexp.MustCompile(`(?i)(?:v|version)[:\s]*([0-9]+\.[0-9]+(?:\.[0-9]+)?)`),
		Category: "content",
	},
	{
		Name:     "price",
		Pattern:  regexp.MustCompile(`\$([0-9]+(?:\.[0-9]{2})?)`),
		Category: "pricing",
	},
	{
		Name:     "email",
		Pattern:  regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		Category: "content",
	},
	{
		Name:     "date",
		Pattern:  regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
		Category: "content",
	},
}

// Detect extracts each registry field's match set from both markups and
// returns one FieldChange per field whose sets differ. Output ordering
// follows the registry; added/removed values are sorted for determinism.
func Detect(oldMarkup, newMarkup string) []FieldChange {
	var changes []FieldChange
	for _, f := range Registry {
		oldVals := matchSet(f.Pattern, oldMarkup)
		newVals := matchSet(f.Pattern, newMarkup)

		added := diffSet(newVals, oldVals)
		removed := diffSet(oldVals, newVals)
		if len(added) == 0 && len(removed) == 0 {
			continue
		}
		changes = append(changes, FieldChange{
			Field:    f.Name,
			Added:    added,
			Removed:  removed,
			Category: f.Category,
		})
	}
	return changes
}

// matchSet returns the distinct matches of p in markup. When the pattern has
// a capture group, the group value is used; otherwise the whole match.
func matchSet(p *regexp.Regexp, markup string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, m := range p.FindAllStringSubmatch(markup, -1) {
		val := m[0]
		if len(m) > 1 && m[1] != "" {
			val = m[1]
		}
		set[val] = struct{}{}
	}
	return set
}

// diffSet returns the sorted elements of a that are absent from b.
func diffSet(a, b map[string]struct{}) []string {
	var out []string
	for v := range a {
		if _, ok := b[v]; !ok {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
