package vocab

import "strings"

// Normalize folds a raw value or term name into its comparison form:
// surrounding whitespace trimmed, then lowercased. The fold is
// locale-invariant. Every uniqueness check and resolver lookup in the
// engine goes through this one function.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ScopeKey builds the storage key under which a term name is unique within
// its (project, attribute) scope. Stores place a unique constraint on it so
// concurrent creates race to exactly one winner.
func ScopeKey(projectID, attributeSlug, name string) string {
	return projectID + "|" + attributeSlug + "|" + Normalize(name)
}

// RawScopeKey is the mapping-side equivalent: the key under which a raw
// value is mapped to at most one term within its scope.
func RawScopeKey(projectID, attributeSlug, rawValue string) string {
	return projectID + "|" + attributeSlug + "|" + Normalize(rawValue)
}
