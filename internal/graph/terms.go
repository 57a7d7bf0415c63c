package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"go.uber.org/zap"

	"canonvocab/internal/vocab"
	apperrors "canonvocab/pkg/errors"
)

// CreateTerm implements vocab.Store. The scope_key constraint turns a
// concurrent create of the same normalized name into ErrDuplicateTerm for
// exactly one of the callers.
func (s *Store) CreateTerm(ctx context.Context, projectID, attributeSlug, name, category string) (*vocab.Term, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	params := map[string]any{
		"id":       uuid.NewString(),
		"project":  projectID,
		"slug":     attributeSlug,
		"name":     strings.TrimSpace(name),
		"norm":     vocab.Normalize(name),
		"scopeKey": vocab.ScopeKey(projectID, attributeSlug, name),
		"category": category,
		"now":      time.Now().UTC(),
	}

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			CREATE (t:Term {
				id: $id, project_id: $project, attribute_slug: $slug,
				name: $name, norm_name: $norm, scope_key: $scopeKey,
				category: $category, description: "",
				created_at: $now, updated_at: $now
			})
			RETURN t
		`, params)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		node, ok := recordNode(record, "t")
		if !ok {
			return nil, fmt.Errorf("term node missing from create result")
		}
		term := termFromNode(node)
		return &term, nil
	})
	if err != nil {
		if isConstraintViolation(err) {
			return nil, apperrors.NewDuplicateTerm(projectID, attributeSlug, name)
		}
		return nil, fmt.Errorf("failed to create term: %w", err)
	}

	term := result.(*vocab.Term)
	s.logger.Info("Term created",
		zap.String("term_id", term.ID),
		zap.String("project_id", projectID),
		zap.String("attribute_slug", attributeSlug),
		zap.String("name", term.Name),
	)
	return term, nil
}

// UpdateTerm implements vocab.Store. A rename recomputes the scope key, so
// the uniqueness constraint revalidates the invariant at commit.
func (s *Store) UpdateTerm(ctx context.Context, termID string, upd vocab.TermUpdate) (*vocab.Term, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	var scopeProject, scopeSlug string

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (t:Term {id: $id}) RETURN t`, map[string]any{"id": termID})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return nil, apperrors.NewTermNotFound(termID)
		}
		node, _ := recordNode(res.Record(), "t")
		current := termFromNode(node)
		scopeProject, scopeSlug = current.ProjectID, current.AttributeSlug

		params := map[string]any{
			"id":             termID,
			"setName":        upd.Name != nil,
			"name":           "",
			"norm":           "",
			"scopeKey":       "",
			"setCategory":    upd.Category != nil,
			"category":       "",
			"setDescription": upd.Description != nil,
			"description":    "",
			"now":            time.Now().UTC(),
		}
		if upd.Name != nil {
			params["name"] = strings.TrimSpace(*upd.Name)
			params["norm"] = vocab.Normalize(*upd.Name)
			params["scopeKey"] = vocab.ScopeKey(current.ProjectID, current.AttributeSlug, *upd.Name)
		}
		if upd.Category != nil {
			params["category"] = *upd.Category
		}
		if upd.Description != nil {
			params["description"] = *upd.Description
		}

		res, err = tx.Run(ctx, `
			MATCH (t:Term {id: $id})
			SET t.name        = CASE WHEN $setName THEN $name ELSE t.name END,
			    t.norm_name   = CASE WHEN $setName THEN $norm ELSE t.norm_name END,
			    t.scope_key   = CASE WHEN $setName THEN $scopeKey ELSE t.scope_key END,
			    t.category    = CASE WHEN $setCategory THEN $category ELSE t.category END,
			    t.description = CASE WHEN $setDescription THEN $description ELSE t.description END,
			    t.updated_at  = $now
			RETURN t
		`, params)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		node, _ = recordNode(record, "t")
		term := termFromNode(node)
		return &term, nil
	})
	if err != nil {
		if isConstraintViolation(err) && upd.Name != nil {
			return nil, apperrors.NewDuplicateTerm(scopeProject, scopeSlug, *upd.Name)
		}
		var notFound *apperrors.ErrTermNotFound
		if errors.As(err, &notFound) {
			return nil, notFound
		}
		return nil, fmt.Errorf("failed to update term: %w", err)
	}

	term := result.(*vocab.Term)
	s.logger.Info("Term updated", zap.String("term_id", term.ID))
	return term, nil
}

// DeleteTerm implements vocab.Store. Mapping deletion cascades inside the
// same transaction.
func (s *Store) DeleteTerm(ctx context.Context, termID string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (t:Term {id: $id}) RETURN t.id`, map[string]any{"id": termID})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return nil, apperrors.NewTermNotFound(termID)
		}

		_, err = tx.Run(ctx, `
			MATCH (t:Term {id: $id})
			OPTIONAL MATCH (m:Mapping)-[:OF_TERM]->(t)
			DETACH DELETE m, t
		`, map[string]any{"id": termID})
		return nil, err
	})
	if err != nil {
		var notFound *apperrors.ErrTermNotFound
		if errors.As(err, &notFound) {
			return notFound
		}
		return fmt.Errorf("failed to delete term: %w", err)
	}

	s.logger.Info("Term deleted", zap.String("term_id", termID))
	return nil
}

// GetTerm implements vocab.Store.
func (s *Store) GetTerm(ctx context.Context, termID string) (*vocab.TermDetail, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (t:Term {id: $id})
			OPTIONAL MATCH (m:Mapping)-[:OF_TERM]->(t)
			RETURN t, collect(m) AS mappings
		`, map[string]any{"id": termID})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return nil, apperrors.NewTermNotFound(termID)
		}
		record := res.Record()
		node, _ := recordNode(record, "t")
		detail := &vocab.TermDetail{Term: termFromNode(node), Mappings: []vocab.Mapping{}}

		raw, _ := record.Get("mappings")
		if list, ok := raw.([]any); ok {
			for _, item := range list {
				if mNode, ok := item.(dbtype.Node); ok {
					detail.Mappings = append(detail.Mappings, mappingFromNode(mNode, termID))
				}
			}
		}
		return detail, nil
	})
	if err != nil {
		var notFound *apperrors.ErrTermNotFound
		if errors.As(err, &notFound) {
			return nil, notFound
		}
		return nil, fmt.Errorf("failed to get term: %w", err)
	}

	return result.(*vocab.TermDetail), nil
}

// ListTerms implements vocab.Store.
func (s *Store) ListTerms(ctx context.Context, projectID, attributeSlug string, filter vocab.TermFilter) ([]vocab.Term, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (t:Term {project_id: $project, attribute_slug: $slug})
			WHERE ($category = "" OR t.category = $category)
			  AND ($search = "" OR t.norm_name CONTAINS $search)
			RETURN t
			ORDER BY t.norm_name
		`, map[string]any{
			"project":  projectID,
			"slug":     attributeSlug,
			"category": filter.Category,
			"search":   vocab.Normalize(filter.Search),
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		terms := make([]vocab.Term, 0, len(records))
		for _, record := range records {
			if node, ok := recordNode(record, "t"); ok {
				terms = append(terms, termFromNode(node))
			}
		}
		return terms, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list terms: %w", err)
	}

	return result.([]vocab.Term), nil
}

// ListCategories implements vocab.Store.
func (s *Store) ListCategories(ctx context.Context, projectID, attributeSlug string) ([]string, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (t:Term {project_id: $project, attribute_slug: $slug})
			WHERE t.category <> ""
			RETURN DISTINCT t.category AS category
			ORDER BY category
		`, map[string]any{"project": projectID, "slug": attributeSlug})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		categories := make([]string, 0, len(records))
		for _, record := range records {
			if category := recordString(record, "category"); category != "" {
				categories = append(categories, category)
			}
		}
		return categories, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	return result.([]string), nil
}
