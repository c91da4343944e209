// Package render substitutes [NAME] placeholders in fragment content.
package render

import (
	"regexp"
	"sort"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\[([^\[\]]+)\]`)

// Render replaces every literal occurrence of "[key]" in content with the
// bound value. Keys are matched as plain text. Placeholders without a bound
// value are left as they are.
//
// Replacement is a single left-to-right pass: a value that itself contains a
// placeholder is not expanded again. Where two tokens could match at the same
// position the longer key wins, so the result never depends on map order.
func Render(content string, values map[string]string) string {
	if content == "" || len(values) == 0 {
		return content
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "["+k+"]", values[k])
	}
	return strings.NewReplacer(pairs...).Replace(content)
}

// Placeholders returns the distinct placeholder names in content, in order of
// first appearance.
func Placeholders(content string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(content, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Unbound returns the placeholders of content that have no value in values.
func Unbound(content string, values map[string]string) []string {
	var missing []string
	for _, name := range Placeholders(content) {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
