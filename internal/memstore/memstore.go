// Package memstore provides an in-memory vocab.Store with the same
// uniqueness and merge semantics as the Neo4j backend. It backs local
// development (STORE_BACKEND=memory) and the component tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"canonvocab/internal/vocab"
	apperrors "canonvocab/pkg/errors"
)

type mappingRow struct {
	mapping vocab.Mapping
	norm    string
	scope   string // raw scope key
}

// Store holds all vocabulary state under one mutex; every operation
// validates and mutates atomically, which gives the same commit-time
// uniqueness behavior the database constraints give the Neo4j backend.
type Store struct {
	mu        sync.Mutex
	terms     map[string]*vocab.Term // by term id
	termScope map[string]string      // ScopeKey -> term id
	mappings  map[string]*mappingRow // by mapping id
	rawScope  map[string]string      // RawScopeKey -> mapping id
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		terms:     make(map[string]*vocab.Term),
		termScope: make(map[string]string),
		mappings:  make(map[string]*mappingRow),
		rawScope:  make(map[string]string),
	}
}

// CreateTerm implements vocab.Store.
func (s *Store) CreateTerm(ctx context.Context, projectID, attributeSlug, name, category string) (*vocab.Term, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := vocab.ScopeKey(projectID, attributeSlug, name)
	if _, exists := s.termScope[key]; exists {
		return nil, apperrors.NewDuplicateTerm(projectID, attributeSlug, name)
	}

	now := time.Now().UTC()
	term := &vocab.Term{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		AttributeSlug: attributeSlug,
		Name:          strings.TrimSpace(name),
		Category:      category,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.terms[term.ID] = term
	s.termScope[key] = term.ID

	out := *term
	return &out, nil
}

// UpdateTerm implements vocab.Store.
func (s *Store) UpdateTerm(ctx context.Context, termID string, upd vocab.TermUpdate) (*vocab.Term, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	term, ok := s.terms[termID]
	if !ok {
		return nil, apperrors.NewTermNotFound(termID)
	}

	if upd.Name != nil {
		newKey := vocab.ScopeKey(term.ProjectID, term.AttributeSlug, *upd.Name)
		oldKey := vocab.ScopeKey(term.ProjectID, term.AttributeSlug, term.Name)
		if newKey != oldKey {
			if _, taken := s.termScope[newKey]; taken {
				return nil, apperrors.NewDuplicateTerm(term.ProjectID, term.AttributeSlug, *upd.Name)
			}
			delete(s.termScope, oldKey)
			s.termScope[newKey] = term.ID
		}
		term.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Category != nil {
		term.Category = *upd.Category
	}
	if upd.Description != nil {
		term.Description = *upd.Description
	}
	term.UpdatedAt = time.Now().UTC()

	out := *term
	return &out, nil
}

// DeleteTerm implements vocab.Store; mapping deletion cascades.
func (s *Store) DeleteTerm(ctx context.Context, termID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	term, ok := s.terms[termID]
	if !ok {
		return apperrors.NewTermNotFound(termID)
	}

	for id, row := range s.mappings {
		if row.mapping.TermID == termID {
			delete(s.rawScope, row.scope)
			delete(s.mappings, id)
		}
	}
	delete(s.termScope, vocab.ScopeKey(term.ProjectID, term.AttributeSlug, term.Name))
	delete(s.terms, termID)
	return nil
}

// GetTerm implements vocab.Store.
func (s *Store) GetTerm(ctx context.Context, termID string) (*vocab.TermDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	term, ok := s.terms[termID]
	if !ok {
		return nil, apperrors.NewTermNotFound(termID)
	}

	detail := &vocab.TermDetail{Term: *term, Mappings: []vocab.Mapping{}}
	for _, row := range s.mappings {
		if row.mapping.TermID == termID {
			detail.Mappings = append(detail.Mappings, row.mapping)
		}
	}
	sort.Slice(detail.Mappings, func(i, j int) bool {
		return detail.Mappings[i].RawValue < detail.Mappings[j].RawValue
	})
	return detail, nil
}

// ListTerms implements vocab.Store.
func (s *Store) ListTerms(ctx context.Context, projectID, attributeSlug string, filter vocab.TermFilter) ([]vocab.Term, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	search := vocab.Normalize(filter.Search)
	out := []vocab.Term{}
	for _, term := range s.terms {
		if term.ProjectID != projectID || term.AttributeSlug != attributeSlug {
			continue
		}
		if filter.Category != "" && term.Category != filter.Category {
			continue
		}
		if search != "" && !strings.Contains(vocab.Normalize(term.Name), search) {
			continue
		}
		out = append(out, *term)
	}
	sort.Slice(out, func(i, j int) bool {
		return vocab.Normalize(out[i].Name) < vocab.Normalize(out[j].Name)
	})
	return out, nil
}

// ListCategories implements vocab.Store.
func (s *Store) ListCategories(ctx context.Context, projectID, attributeSlug string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]struct{}{}
	out := []string{}
	for _, term := range s.terms {
		if term.ProjectID != projectID || term.AttributeSlug != attributeSlug || term.Category == "" {
			continue
		}
		if _, dup := seen[term.Category]; dup {
			continue
		}
		seen[term.Category] = struct{}{}
		out = append(out, term.Category)
	}
	sort.Strings(out)
	return out, nil
}

// AddMapping implements vocab.Store. Re-adding the same normalized raw value
// to the same term returns the existing mapping so suggestion-apply retries
// stay safe.
func (s *Store) AddMapping(ctx context.Context, termID, rawValue string) (*vocab.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	term, ok := s.terms[termID]
	if !ok {
		return nil, apperrors.NewTermNotFound(termID)
	}

	key := vocab.RawScopeKey(term.ProjectID, term.AttributeSlug, rawValue)
	if existingID, exists := s.rawScope[key]; exists {
		row := s.mappings[existingID]
		if row.mapping.TermID == termID {
			out := row.mapping
			return &out, nil
		}
		return nil, apperrors.NewDuplicateMapping(rawValue, row.mapping.TermID)
	}

	row := &mappingRow{
		mapping: vocab.Mapping{
			ID:        uuid.NewString(),
			TermID:    termID,
			RawValue:  strings.TrimSpace(rawValue),
			CreatedAt: time.Now().UTC(),
		},
		norm:  vocab.Normalize(rawValue),
		scope: key,
	}
	s.mappings[row.mapping.ID] = row
	s.rawScope[key] = row.mapping.ID

	out := row.mapping
	return &out, nil
}

// RemoveMapping implements vocab.Store.
func (s *Store) RemoveMapping(ctx context.Context, mappingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.mappings[mappingID]
	if !ok {
		return apperrors.NewMappingNotFound(mappingID)
	}
	delete(s.rawScope, row.scope)
	delete(s.mappings, mappingID)
	return nil
}

// MergeTerms implements vocab.Store. All precondition checks run before the
// first mutation, so a rejected merge leaves the store untouched.
func (s *Store) MergeTerms(ctx context.Context, targetID string, sourceIDs []string) (*vocab.MergeResult, error) {
	if err := vocab.ValidateMergeRequest(targetID, sourceIDs); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.terms[targetID]
	if !ok {
		return nil, apperrors.NewTermNotFound(targetID)
	}
	for _, id := range sourceIDs {
		src, ok := s.terms[id]
		if !ok {
			return nil, apperrors.NewTermNotFound(id)
		}
		if src.ProjectID != target.ProjectID || src.AttributeSlug != target.AttributeSlug {
			return nil, apperrors.NewInvalidMergeRequest("terms span more than one attribute scope")
		}
	}

	targetNorms := map[string]struct{}{}
	for _, row := range s.mappings {
		if row.mapping.TermID == targetID {
			targetNorms[row.norm] = struct{}{}
		}
	}

	moved := 0
	for _, sourceID := range sourceIDs {
		for id, row := range s.mappings {
			if row.mapping.TermID != sourceID {
				continue
			}
			if _, collides := targetNorms[row.norm]; collides {
				// Target already holds this raw value; the source's copy is
				// dropped and not counted.
				delete(s.rawScope, row.scope)
				delete(s.mappings, id)
				continue
			}
			row.mapping.TermID = targetID
			targetNorms[row.norm] = struct{}{}
			moved++
		}
		src := s.terms[sourceID]
		delete(s.termScope, vocab.ScopeKey(src.ProjectID, src.AttributeSlug, src.Name))
		delete(s.terms, sourceID)
	}

	return &vocab.MergeResult{MappingsMoved: moved}, nil
}

// ResolveRaw implements vocab.Store.
func (s *Store) ResolveRaw(ctx context.Context, projectID, attributeSlug, rawValue string) (*vocab.Term, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := vocab.RawScopeKey(projectID, attributeSlug, rawValue)
	mappingID, ok := s.rawScope[key]
	if !ok {
		return nil, nil
	}
	term := s.terms[s.mappings[mappingID].mapping.TermID]
	out := *term
	return &out, nil
}

// ResolveName implements vocab.Store.
func (s *Store) ResolveName(ctx context.Context, projectID, attributeSlug, name string) (*vocab.Term, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	termID, ok := s.termScope[vocab.ScopeKey(projectID, attributeSlug, name)]
	if !ok {
		return nil, nil
	}
	out := *s.terms[termID]
	return &out, nil
}

// MappedNormValues implements vocab.Store.
func (s *Store) MappedNormValues(ctx context.Context, projectID, attributeSlug string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]struct{}{}
	for _, row := range s.mappings {
		term := s.terms[row.mapping.TermID]
		if term.ProjectID == projectID && term.AttributeSlug == attributeSlug {
			out[row.norm] = struct{}{}
		}
	}
	return out, nil
}

// Counts implements vocab.Store.
func (s *Store) Counts(ctx context.Context, projectID, attributeSlug string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	terms, mappings := 0, 0
	for _, term := range s.terms {
		if term.ProjectID == projectID && term.AttributeSlug == attributeSlug {
			terms++
		}
	}
	for _, row := range s.mappings {
		term := s.terms[row.mapping.TermID]
		if term.ProjectID == projectID && term.AttributeSlug == attributeSlug {
			mappings++
		}
	}
	return terms, mappings, nil
}
