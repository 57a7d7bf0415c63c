// Package reconcile turns classifier output into vocabulary writes. Unlike
// merge, apply is deliberately best-effort per item: suggestions are
// independent low-stakes writes, so one failure never blocks the rest.
package reconcile

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"canonvocab/internal/vocab"
	"canonvocab/pkg/config"
	apperrors "canonvocab/pkg/errors"
	"canonvocab/pkg/logger"
)

// Classifier is the external suggestion provider. It is slow and untrusted;
// the reconciler never calls it while a store transaction is open.
type Classifier interface {
	Classify(ctx context.Context, req vocab.ClassifyRequest) ([]vocab.Suggestion, error)
}

// Outcome records what happened to one suggestion during apply.
type Outcome struct {
	Suggestion vocab.Suggestion `json:"suggestion"`
	Applied    bool             `json:"applied"`
	TermID     string           `json:"term_id,omitempty"`
	MappingID  string           `json:"mapping_id,omitempty"`
	Error      string           `json:"error,omitempty"`
	ErrorKind  string           `json:"error_kind,omitempty"`
}

// Outcome error kinds surfaced to callers.
const (
	KindDuplicateTerm    = "duplicate_term"
	KindDuplicateMapping = "duplicate_mapping"
	KindUnresolved       = "unresolved"
	KindCanceled         = "canceled"
	KindInternal         = "internal"
)

// Reconciler coordinates suggest and apply for one store.
type Reconciler struct {
	store      vocab.Store
	classifier Classifier
	batchLimit int
	logger     *zap.Logger
}

// New creates a reconciler. batchLimit is clamped to [1, config.MaxSuggestBatch];
// zero means the maximum.
func New(store vocab.Store, c Classifier, batchLimit int) *Reconciler {
	if batchLimit <= 0 || batchLimit > config.MaxSuggestBatch {
		batchLimit = config.MaxSuggestBatch
	}
	return &Reconciler{
		store:      store,
		classifier: c,
		batchLimit: batchLimit,
		logger:     logger.Named("reconcile"),
	}
}

// Suggest hands one bounded batch of raw values plus the scope's current
// vocabulary to the classifier. The vocabulary read completes before the
// classifier call, so no store transaction spans the long-latency request.
func (r *Reconciler) Suggest(ctx context.Context, projectID, attributeSlug string, rawValues []string) ([]vocab.Suggestion, error) {
	if len(rawValues) == 0 {
		return []vocab.Suggestion{}, nil
	}
	if len(rawValues) > r.batchLimit {
		return nil, apperrors.NewBatchTooLarge(len(rawValues), r.batchLimit)
	}

	terms, err := r.store.ListTerms(ctx, projectID, attributeSlug, vocab.TermFilter{})
	if err != nil {
		return nil, err
	}

	return r.classifier.Classify(ctx, vocab.ClassifyRequest{
		ProjectID:     projectID,
		AttributeSlug: attributeSlug,
		RawValues:     rawValues,
		Vocabulary:    terms,
	})
}

// ApplySuggestion applies one suggestion in its own short transaction(s).
// is_new creates the term and maps the raw value; otherwise the canonical
// name must resolve to an existing term through the normalized-name lookup,
// and a miss is reported as unresolved rather than fabricating a term.
func (r *Reconciler) ApplySuggestion(ctx context.Context, projectID, attributeSlug string, s vocab.Suggestion) (*vocab.Mapping, error) {
	if s.IsNew {
		term, err := r.store.CreateTerm(ctx, projectID, attributeSlug, s.CanonicalName, s.Category)
		if err != nil {
			return nil, err
		}
		return r.store.AddMapping(ctx, term.ID, s.RawValue)
	}

	term, err := r.store.ResolveName(ctx, projectID, attributeSlug, s.CanonicalName)
	if err != nil {
		return nil, err
	}
	if term == nil {
		return nil, apperrors.NewSuggestionUnresolved(s.CanonicalName)
	}
	return r.store.AddMapping(ctx, term.ID, s.RawValue)
}

// ApplyAll applies suggestions sequentially, best-effort: each item's
// outcome is recorded independently and a failure on one never prevents the
// next from being attempted. Cancellation is cooperative; items applied
// before the context fired stay applied.
func (r *Reconciler) ApplyAll(ctx context.Context, projectID, attributeSlug string, suggestions []vocab.Suggestion) []Outcome {
	outcomes := make([]Outcome, 0, len(suggestions))
	for _, s := range suggestions {
		if err := ctx.Err(); err != nil {
			outcomes = append(outcomes, Outcome{
				Suggestion: s,
				Error:      err.Error(),
				ErrorKind:  KindCanceled,
			})
			break
		}

		mapping, err := r.ApplySuggestion(ctx, projectID, attributeSlug, s)
		if err != nil {
			outcomes = append(outcomes, Outcome{
				Suggestion: s,
				Error:      err.Error(),
				ErrorKind:  errorKind(err),
			})
			r.logger.Warn("Suggestion apply failed",
				zap.String("raw_value", s.RawValue),
				zap.String("canonical_name", s.CanonicalName),
				zap.Error(err),
			)
			continue
		}

		outcomes = append(outcomes, Outcome{
			Suggestion: s,
			Applied:    true,
			TermID:     mapping.TermID,
			MappingID:  mapping.ID,
		})
	}

	applied := 0
	for _, o := range outcomes {
		if o.Applied {
			applied++
		}
	}
	r.logger.Info("Suggestion batch applied",
		zap.String("project_id", projectID),
		zap.String("attribute_slug", attributeSlug),
		zap.Int("applied", applied),
		zap.Int("failed", len(outcomes)-applied),
	)
	return outcomes
}

func errorKind(err error) string {
	var dupTerm *apperrors.ErrDuplicateTerm
	if errors.As(err, &dupTerm) {
		return KindDuplicateTerm
	}
	var dupMapping *apperrors.ErrDuplicateMapping
	if errors.As(err, &dupMapping) {
		return KindDuplicateMapping
	}
	var unresolved *apperrors.ErrSuggestionUnresolved
	if errors.As(err, &unresolved) {
		return KindUnresolved
	}
	if strings.Contains(err.Error(), context.Canceled.Error()) {
		return KindCanceled
	}
	return KindInternal
}
