package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization. Uniqueness is
// enforced on the normalized form.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeDisplayName trims and collapses inner whitespace runs.
func NormalizeDisplayName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
