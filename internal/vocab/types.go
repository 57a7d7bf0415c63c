// Package vocab defines the domain model of the canonical vocabulary engine:
// terms, mappings, the Store contract, and the normalization rule every
// lookup and uniqueness invariant is built on.
package vocab

import "time"

// Term is one canonical entry in an attribute's controlled vocabulary.
// Within a (project, attribute) scope its name is unique under normalization.
type Term struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	AttributeSlug string    `json:"attribute_slug"`
	Name          string    `json:"name"`
	Category      string    `json:"category,omitempty"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Mapping links one raw value to the canonical term that owns it. A raw
// value maps to at most one term per scope, under normalization.
type Mapping struct {
	ID        string    `json:"id"`
	TermID    string    `json:"term_id"`
	RawValue  string    `json:"raw_value"`
	CreatedAt time.Time `json:"created_at"`
}

// TermDetail is a term together with all of its mappings.
type TermDetail struct {
	Term
	Mappings []Mapping `json:"mappings"`
}

// TermUpdate carries the optional fields of an update; nil means unchanged.
type TermUpdate struct {
	Name        *string `json:"name"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
}

// TermFilter narrows ListTerms output. Search matches against normalized
// term names; empty fields match everything.
type TermFilter struct {
	Category string
	Search   string
}

// MergeResult reports how many mappings a merge relocated to the target.
// Collision drops are not counted.
type MergeResult struct {
	MappingsMoved int `json:"mappings_moved"`
}

// Suggestion is one classifier proposal for an unmapped raw value. IsNew
// asks for a fresh term; otherwise CanonicalName must resolve to an
// existing term by normalized name.
type Suggestion struct {
	RawValue      string `json:"raw_value"`
	CanonicalName string `json:"canonical_name"`
	Category      string `json:"category,omitempty"`
	IsNew         bool   `json:"is_new"`
}

// ClassifyRequest is the context handed to the external classifier: the raw
// values to place plus the current vocabulary of the scope.
type ClassifyRequest struct {
	ProjectID     string
	AttributeSlug string
	RawValues     []string
	Vocabulary    []Term
}

// Stats are the on-demand counters for one attribute scope. Coverage is the
// fraction of distinct observed raw values that currently resolve, zero when
// nothing has been observed.
type Stats struct {
	TermCount     int     `json:"term_count"`
	MappingCount  int     `json:"mapping_count"`
	UnmappedCount int     `json:"unmapped_count"`
	Coverage      float64 `json:"coverage"`
}
