package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"canonvocab/internal/memstore"
	"canonvocab/internal/vocab"
	apperrors "canonvocab/pkg/errors"
)

const (
	testProject = "proj-1"
	testSlug    = "industry"
)

// fakeClassifier returns canned suggestions or a canned error.
type fakeClassifier struct {
	suggestions []vocab.Suggestion
	err         error
	lastReq     vocab.ClassifyRequest
}

func (f *fakeClassifier) Classify(ctx context.Context, req vocab.ClassifyRequest) ([]vocab.Suggestion, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.suggestions, nil
}

func TestSuggest_PassesVocabularyContext(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	fake := &fakeClassifier{suggestions: []vocab.Suggestion{}}
	r := New(store, fake, 0)

	if _, err := store.CreateTerm(ctx, testProject, testSlug, "B2B SaaS", "segment"); err != nil {
		t.Fatalf("CreateTerm failed: %v", err)
	}

	if _, err := r.Suggest(ctx, testProject, testSlug, []string{"b2b"}); err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(fake.lastReq.Vocabulary) != 1 || fake.lastReq.Vocabulary[0].Name != "B2B SaaS" {
		t.Errorf("expected current vocabulary in request, got %+v", fake.lastReq.Vocabulary)
	}
	if len(fake.lastReq.RawValues) != 1 || fake.lastReq.RawValues[0] != "b2b" {
		t.Errorf("expected raw values in request, got %v", fake.lastReq.RawValues)
	}
}

func TestSuggest_BatchCap(t *testing.T) {
	r := New(memstore.New(), &fakeClassifier{}, 3)

	raws := []string{"a", "b", "c", "d"}
	_, err := r.Suggest(context.Background(), testProject, testSlug, raws)
	var tooLarge *apperrors.ErrBatchTooLarge
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
	if tooLarge.Size != 4 || tooLarge.Limit != 3 {
		t.Errorf("unexpected error fields: %+v", tooLarge)
	}
}

func TestSuggest_ClassifierFailureAborts(t *testing.T) {
	fake := &fakeClassifier{err: apperrors.NewSuggestionServiceUnavailable(fmt.Errorf("connection refused"))}
	r := New(memstore.New(), fake, 0)

	_, err := r.Suggest(context.Background(), testProject, testSlug, []string{"b2b"})
	var unavailable *apperrors.ErrSuggestionServiceUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrSuggestionServiceUnavailable, got %v", err)
	}
}

func TestApplyAll_NewAndExistingTerms(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	r := New(store, &fakeClassifier{}, 0)

	existing, err := store.CreateTerm(ctx, testProject, testSlug, "B2B SaaS", "segment")
	if err != nil {
		t.Fatalf("CreateTerm failed: %v", err)
	}

	outcomes := r.ApplyAll(ctx, testProject, testSlug, []vocab.Suggestion{
		{RawValue: "b2b2c", CanonicalName: "B2B2C", Category: "segment", IsNew: true},
		{RawValue: "b2b", CanonicalName: "B2B SaaS", IsNew: false},
	})

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for i, o := range outcomes {
		if !o.Applied {
			t.Errorf("outcome %d not applied: %+v", i, o)
		}
	}

	terms, mappings, err := store.Counts(ctx, testProject, testSlug)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if terms != 2 {
		t.Errorf("expected exactly 1 new term (2 total), got %d", terms)
	}
	if mappings != 2 {
		t.Errorf("expected 2 mappings, got %d", mappings)
	}

	resolved, _ := store.ResolveRaw(ctx, testProject, testSlug, "b2b")
	if resolved == nil || resolved.ID != existing.ID {
		t.Errorf("expected b2b mapped to existing term, got %+v", resolved)
	}
}

func TestApplySuggestion_UnresolvedCreatesNothing(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	r := New(store, &fakeClassifier{}, 0)

	_, err := r.ApplySuggestion(ctx, testProject, testSlug, vocab.Suggestion{
		RawValue:      "b2b",
		CanonicalName: "Nonexistent Term",
		IsNew:         false,
	})
	var unresolved *apperrors.ErrSuggestionUnresolved
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected ErrSuggestionUnresolved, got %v", err)
	}

	terms, mappings, _ := store.Counts(ctx, testProject, testSlug)
	if terms != 0 || mappings != 0 {
		t.Errorf("unresolved suggestion must create nothing, got %d terms / %d mappings", terms, mappings)
	}
}

func TestApplySuggestion_ResolvesNameByNormalization(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	r := New(store, &fakeClassifier{}, 0)

	term, _ := store.CreateTerm(ctx, testProject, testSlug, "B2B SaaS", "")

	// Classifier output drifted in case and whitespace; the normalized
	// lookup still matches.
	mapping, err := r.ApplySuggestion(ctx, testProject, testSlug, vocab.Suggestion{
		RawValue:      "b2b",
		CanonicalName: "  b2b saas ",
		IsNew:         false,
	})
	if err != nil {
		t.Fatalf("ApplySuggestion failed: %v", err)
	}
	if mapping.TermID != term.ID {
		t.Errorf("expected mapping on %s, got %s", term.ID, mapping.TermID)
	}
}

func TestApplyAll_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	r := New(store, &fakeClassifier{}, 0)

	// A term created concurrently since the suggestions were generated.
	if _, err := store.CreateTerm(ctx, testProject, testSlug, "B2B2C", ""); err != nil {
		t.Fatalf("CreateTerm failed: %v", err)
	}

	outcomes := r.ApplyAll(ctx, testProject, testSlug, []vocab.Suggestion{
		{RawValue: "b2b2c", CanonicalName: "b2b2c", IsNew: true},      // duplicate term
		{RawValue: "x", CanonicalName: "Missing", IsNew: false},       // unresolved
		{RawValue: "fresh", CanonicalName: "Fresh Term", IsNew: true}, // fine
	})

	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Applied || outcomes[0].ErrorKind != KindDuplicateTerm {
		t.Errorf("unexpected outcome 0: %+v", outcomes[0])
	}
	if outcomes[1].Applied || outcomes[1].ErrorKind != KindUnresolved {
		t.Errorf("unexpected outcome 1: %+v", outcomes[1])
	}
	if !outcomes[2].Applied {
		t.Errorf("failure on earlier items must not block item 2: %+v", outcomes[2])
	}
}

func TestApplyAll_CooperativeCancellation(t *testing.T) {
	store := memstore.New()
	r := New(store, &fakeClassifier{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := r.ApplyAll(ctx, testProject, testSlug, []vocab.Suggestion{
		{RawValue: "a", CanonicalName: "A", IsNew: true},
		{RawValue: "b", CanonicalName: "B", IsNew: true},
	})

	if len(outcomes) != 1 || outcomes[0].ErrorKind != KindCanceled {
		t.Errorf("expected a single canceled outcome, got %+v", outcomes)
	}
	terms, _, _ := store.Counts(context.Background(), testProject, testSlug)
	if terms != 0 {
		t.Errorf("canceled batch must not write, got %d terms", terms)
	}
}
