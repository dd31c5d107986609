// Package aspect normalizes the free-text coverage facets that link
// controls to requirements. Aspects and keywords arrive as operator
// input, so comparison anywhere in the engine goes through Normalize to
// keep "MFA", " mfa " and "mfa" from counting as three facets.
package aspect

import "strings"

// Normalize trims, lowercases, dedupes, and drops empty values while
// preserving first-seen order.
func Normalize(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		n := Canonical(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			result = append(result, n)
		}
	}

	return result
}

// Canonical returns the comparison form of a single aspect or keyword.
func Canonical(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// Set builds a membership set of canonical aspects.
func Set(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		n := Canonical(v)
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

// ContainsAny reports whether text contains any of the canonical needles
// as a substring. This is the documented keyword-containment heuristic
// used by gap analysis, not semantic matching.
func ContainsAny(text string, needles map[string]struct{}) bool {
	t := Canonical(text)
	for n := range needles {
		if strings.Contains(t, n) {
			return true
		}
	}
	return false
}
