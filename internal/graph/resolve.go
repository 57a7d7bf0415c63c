package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"canonvocab/internal/vocab"
)

// ResolveRaw implements vocab.Store. The lookup hits the mapping scope_key
// constraint index, so it is a point read regardless of vocabulary size.
func (s *Store) ResolveRaw(ctx context.Context, projectID, attributeSlug, rawValue string) (*vocab.Term, error) {
	return s.resolve(ctx, `
		MATCH (m:Mapping {scope_key: $key})-[:OF_TERM]->(t:Term)
		RETURN t
	`, vocab.RawScopeKey(projectID, attributeSlug, rawValue))
}

// ResolveName implements vocab.Store: the normalized-name lookup used for
// is_new:false suggestions instead of literal string equality.
func (s *Store) ResolveName(ctx context.Context, projectID, attributeSlug, name string) (*vocab.Term, error) {
	return s.resolve(ctx, `
		MATCH (t:Term {scope_key: $key})
		RETURN t
	`, vocab.ScopeKey(projectID, attributeSlug, name))
}

func (s *Store) resolve(ctx context.Context, query, key string) (*vocab.Term, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"key": key})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return (*vocab.Term)(nil), nil
		}
		node, _ := recordNode(res.Record(), "t")
		term := termFromNode(node)
		return &term, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve: %w", err)
	}

	return result.(*vocab.Term), nil
}

// MappedNormValues implements vocab.Store.
func (s *Store) MappedNormValues(ctx context.Context, projectID, attributeSlug string) (map[string]struct{}, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (m:Mapping)-[:OF_TERM]->(:Term {project_id: $project, attribute_slug: $slug})
			RETURN m.norm_value AS norm
		`, map[string]any{"project": projectID, "slug": attributeSlug})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		norms := make(map[string]struct{}, len(records))
		for _, record := range records {
			if norm := recordString(record, "norm"); norm != "" {
				norms[norm] = struct{}{}
			}
		}
		return norms, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load mapped values: %w", err)
	}

	return result.(map[string]struct{}), nil
}

// Counts implements vocab.Store.
func (s *Store) Counts(ctx context.Context, projectID, attributeSlug string) (int, int, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	type counts struct{ terms, mappings int }
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (t:Term {project_id: $project, attribute_slug: $slug})
			OPTIONAL MATCH (m:Mapping)-[:OF_TERM]->(t)
			RETURN count(DISTINCT t) AS terms, count(m) AS mappings
		`, map[string]any{"project": projectID, "slug": attributeSlug})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return counts{terms: recordInt(record, "terms"), mappings: recordInt(record, "mappings")}, nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count vocabulary: %w", err)
	}

	c := result.(counts)
	return c.terms, c.mappings, nil
}
