package vocab

import (
	"context"

	apperrors "canonvocab/pkg/errors"
)

// Store is the single owner of vocabulary truth. Implementations must
// enforce the scope uniqueness invariants at the storage level (constraint
// at commit, not check-then-insert) and must run every mutating operation
// in a single transaction. MergeTerms in particular either consumes all
// sources or none.
type Store interface {
	// CreateTerm adds a canonical term. Fails with ErrDuplicateTerm when the
	// normalized name collides within the scope.
	CreateTerm(ctx context.Context, projectID, attributeSlug, name, category string) (*Term, error)

	// UpdateTerm applies the non-nil fields of upd. A rename revalidates the
	// uniqueness invariant.
	UpdateTerm(ctx context.Context, termID string, upd TermUpdate) (*Term, error)

	// DeleteTerm removes a term and cascades deletion of its mappings.
	DeleteTerm(ctx context.Context, termID string) error

	// GetTerm returns a term with all of its mappings.
	GetTerm(ctx context.Context, termID string) (*TermDetail, error)

	// ListTerms returns the scope's terms, filtered, ordered by normalized name.
	ListTerms(ctx context.Context, projectID, attributeSlug string, filter TermFilter) ([]Term, error)

	// ListCategories returns the distinct non-empty categories in the scope.
	ListCategories(ctx context.Context, projectID, attributeSlug string) ([]string, error)

	// AddMapping maps a raw value to a term. Mapping the same normalized raw
	// value to the same term again is a no-op returning the existing row;
	// mapping it while a different term holds it fails with
	// ErrDuplicateMapping.
	AddMapping(ctx context.Context, termID, rawValue string) (*Mapping, error)

	// RemoveMapping deletes a single mapping.
	RemoveMapping(ctx context.Context, mappingID string) error

	// MergeTerms consolidates the source terms into the target inside one
	// transaction: mappings relocate unless the target already holds the
	// normalized raw value (then the source's copy is dropped, uncounted),
	// and each emptied source is deleted.
	MergeTerms(ctx context.Context, targetID string, sourceIDs []string) (*MergeResult, error)

	// ResolveRaw looks a raw value up by normalized form. (nil, nil) when
	// unmapped.
	ResolveRaw(ctx context.Context, projectID, attributeSlug, rawValue string) (*Term, error)

	// ResolveName looks a canonical name up by normalized form. (nil, nil)
	// when no term carries it.
	ResolveName(ctx context.Context, projectID, attributeSlug, name string) (*Term, error)

	// MappedNormValues returns the set of normalized raw values currently
	// mapped in the scope.
	MappedNormValues(ctx context.Context, projectID, attributeSlug string) (map[string]struct{}, error)

	// Counts returns the scope's term and mapping totals.
	Counts(ctx context.Context, projectID, attributeSlug string) (terms int, mappings int, err error)
}

// ValidateMergeRequest rejects merge shapes that can never succeed, before
// any storage work happens. Scope membership of the ids is checked inside
// the store transaction, not here.
func ValidateMergeRequest(targetID string, sourceIDs []string) error {
	if targetID == "" {
		return apperrors.NewInvalidMergeRequest("target term id is empty")
	}
	if len(sourceIDs) == 0 {
		return apperrors.NewInvalidMergeRequest("no source terms given")
	}
	seen := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		if id == targetID {
			return apperrors.NewInvalidMergeRequest("target term is among the sources")
		}
		if _, dup := seen[id]; dup {
			return apperrors.NewInvalidMergeRequest("duplicate source term id: " + id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
