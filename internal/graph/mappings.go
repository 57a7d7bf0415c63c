package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"canonvocab/internal/vocab"
	apperrors "canonvocab/pkg/errors"
)

// AddMapping implements vocab.Store. The same normalized raw value added to
// the same term again returns the existing mapping; held by another term it
// fails with ErrDuplicateMapping. A lost creation race surfaces through the
// scope_key constraint and is translated the same way.
func (s *Store) AddMapping(ctx context.Context, termID, rawValue string) (*vocab.Mapping, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (t:Term {id: $termID})
			RETURN t.project_id AS project, t.attribute_slug AS slug
		`, map[string]any{"termID": termID})
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
		projectID := recordString(record, "project")
		attributeSlug := recordString(record, "slug")
		rawKey := vocab.RawScopeKey(projectID, attributeSlug, rawValue)

		res, err = tx.Run(ctx, `
			MATCH (m:Mapping {scope_key: $rawKey})-[:OF_TERM]->(owner:Term)
			RETURN m, owner.id AS owner
		`, map[string]any{"rawKey": rawKey})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			record := res.Record()
			owner := recordString(record, "owner")
			node, _ := recordNode(record, "m")
			if owner == termID {
				existing := mappingFromNode(node, termID)
				return &existing, nil
			}
			return nil, apperrors.NewDuplicateMapping(rawValue, owner)
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		res, err = tx.Run(ctx, `
			MATCH (t:Term {id: $termID})
			CREATE (m:Mapping {
				id: $id, raw_value: $raw, norm_value: $norm,
				scope_key: $rawKey, created_at: $now
			})-[:OF_TERM]->(t)
			RETURN m
		`, map[string]any{
			"termID": termID,
			"id":     uuid.NewString(),
			"raw":    strings.TrimSpace(rawValue),
			"norm":   vocab.Normalize(rawValue),
			"rawKey": rawKey,
			"now":    time.Now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		record, err = res.Single(ctx)
		if err != nil {
			return nil, err
		}
		node, _ := recordNode(record, "m")
		mapping := mappingFromNode(node, termID)
		return &mapping, nil
	})
	if err != nil {
		if isConstraintViolation(err) {
			return nil, apperrors.NewDuplicateMapping(rawValue, "")
		}
		var notFound *apperrors.ErrTermNotFound
		if errors.As(err, &notFound) {
			return nil, notFound
		}
		var dup *apperrors.ErrDuplicateMapping
		if errors.As(err, &dup) {
			return nil, dup
		}
		return nil, fmt.Errorf("failed to add mapping: %w", err)
	}

	mapping := result.(*vocab.Mapping)
	s.logger.Info("Mapping added",
		zap.String("mapping_id", mapping.ID),
		zap.String("term_id", termID),
		zap.String("raw_value", mapping.RawValue),
	)
	return mapping, nil
}

// RemoveMapping implements vocab.Store.
func (s *Store) RemoveMapping(ctx context.Context, mappingID string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (m:Mapping {id: $id}) RETURN m.id`, map[string]any{"id": mappingID})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return nil, apperrors.NewMappingNotFound(mappingID)
		}

		_, err = tx.Run(ctx, `MATCH (m:Mapping {id: $id}) DETACH DELETE m`, map[string]any{"id": mappingID})
		return nil, err
	})
	if err != nil {
		var notFound *apperrors.ErrMappingNotFound
		if errors.As(err, &notFound) {
			return notFound
		}
		return fmt.Errorf("failed to remove mapping: %w", err)
	}

	s.logger.Info("Mapping removed", zap.String("mapping_id", mappingID))
	return nil
}
