// Package scanner computes the set of observed raw values that have no
// mapping yet: the work queue the suggestion flow and the curation UI both
// feed from.
package scanner

import (
	"context"

	"go.uber.org/zap"

	"canonvocab/internal/vocab"
	"canonvocab/pkg/logger"
)

// ObservationSource supplies the raw tag strings currently present in
// entity attribute data for one scope. Owned by the entity store; the
// engine only reads it.
type ObservationSource interface {
	RawValues(ctx context.Context, projectID, attributeSlug string) ([]string, error)
}

// MappingIndex is the read side of the vocabulary store the scanner needs.
type MappingIndex interface {
	MappedNormValues(ctx context.Context, projectID, attributeSlug string) (map[string]struct{}, error)
}

// Scanner derives the unmapped set for a scope on demand.
type Scanner struct {
	source ObservationSource
	index  MappingIndex
	logger *zap.Logger
}

// New creates a scanner over the given observation source and mapping index.
func New(source ObservationSource, index MappingIndex) *Scanner {
	return &Scanner{
		source: source,
		index:  index,
		logger: logger.Named("scanner"),
	}
}

// Result is one scan over a scope's corpus. Observed counts distinct
// normalized values; Unmapped holds those without a mapping, in first-seen
// order with first-seen casing.
type Result struct {
	Observed int
	Unmapped []string
}

// Scan enumerates the corpus once against the mapped-value set. Values that
// normalize identically collapse to their first-seen spelling; values that
// normalize to the empty string are skipped.
func (s *Scanner) Scan(ctx context.Context, projectID, attributeSlug string) (*Result, error) {
	mapped, err := s.index.MappedNormValues(ctx, projectID, attributeSlug)
	if err != nil {
		return nil, err
	}
	raws, err := s.source.RawValues(ctx, projectID, attributeSlug)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(raws))
	result := &Result{Unmapped: []string{}}
	for _, raw := range raws {
		norm := vocab.Normalize(raw)
		if norm == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		result.Observed++
		if _, ok := mapped[norm]; !ok {
			result.Unmapped = append(result.Unmapped, raw)
		}
	}

	s.logger.Debug("Corpus scanned",
		zap.String("project_id", projectID),
		zap.String("attribute_slug", attributeSlug),
		zap.Int("observed", result.Observed),
		zap.Int("unmapped", len(result.Unmapped)),
	)
	return result, nil
}

// ComputeUnmapped returns just the unmapped raw values.
func (s *Scanner) ComputeUnmapped(ctx context.Context, projectID, attributeSlug string) ([]string, error) {
	result, err := s.Scan(ctx, projectID, attributeSlug)
	if err != nil {
		return nil, err
	}
	return result.Unmapped, nil
}
