package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"canonvocab/internal/vocab"
	apperrors "canonvocab/pkg/errors"
)

// MergeTerms implements vocab.Store. The whole multi-source merge runs in
// one write transaction: scope checks, collision drops, relocations, source
// deletions. Any error inside the transaction function rolls everything
// back, so no partially merged state is ever visible.
func (s *Store) MergeTerms(ctx context.Context, targetID string, sourceIDs []string) (*vocab.MergeResult, error) {
	if err := vocab.ValidateMergeRequest(targetID, sourceIDs); err != nil {
		return nil, err
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		project, slug, err := termScope(ctx, tx, targetID)
		if err != nil {
			return nil, err
		}
		for _, sourceID := range sourceIDs {
			srcProject, srcSlug, err := termScope(ctx, tx, sourceID)
			if err != nil {
				return nil, err
			}
			if srcProject != project || srcSlug != slug {
				return nil, apperrors.NewInvalidMergeRequest("terms span more than one attribute scope")
			}
		}

		moved := 0
		for _, sourceID := range sourceIDs {
			params := map[string]any{"source": sourceID, "target": targetID}

			// Target already holds these raw values; the source's copies are
			// dropped, uncounted.
			_, err := tx.Run(ctx, `
				MATCH (m:Mapping)-[:OF_TERM]->(:Term {id: $source})
				WHERE EXISTS {
					MATCH (tm:Mapping)-[:OF_TERM]->(:Term {id: $target})
					WHERE tm.norm_value = m.norm_value
				}
				DETACH DELETE m
			`, params)
			if err != nil {
				return nil, err
			}

			res, err := tx.Run(ctx, `
				MATCH (m:Mapping)-[r:OF_TERM]->(:Term {id: $source})
				MATCH (t:Term {id: $target})
				DELETE r
				CREATE (m)-[:OF_TERM]->(t)
				RETURN count(m) AS moved
			`, params)
			if err != nil {
				return nil, err
			}
			record, err := res.Single(ctx)
			if err != nil {
				return nil, err
			}
			moved += recordInt(record, "moved")

			if _, err := tx.Run(ctx, `MATCH (src:Term {id: $source}) DETACH DELETE src`, params); err != nil {
				return nil, err
			}
		}

		return &vocab.MergeResult{MappingsMoved: moved}, nil
	})
	if err != nil {
		var notFound *apperrors.ErrTermNotFound
		if errors.As(err, &notFound) {
			return nil, notFound
		}
		var invalid *apperrors.ErrInvalidMergeRequest
		if errors.As(err, &invalid) {
			return nil, invalid
		}
		return nil, fmt.Errorf("failed to merge terms: %w", err)
	}

	merge := result.(*vocab.MergeResult)
	s.logger.Info("Terms merged",
		zap.String("target_id", targetID),
		zap.Int("sources", len(sourceIDs)),
		zap.Int("mappings_moved", merge.MappingsMoved),
	)
	return merge, nil
}

// termScope fetches a term's (project, attribute) scope inside the merge
// transaction, failing with ErrTermNotFound for already-consumed ids.
func termScope(ctx context.Context, tx neo4j.ManagedTransaction, termID string) (string, string, error) {
	res, err := tx.Run(ctx, `
		MATCH (t:Term {id: $id})
		RETURN t.project_id AS project, t.attribute_slug AS slug
	`, map[string]any{"id": termID})
	if err != nil {
		return "", "", err
	}
	if !res.Next(ctx) {
		if err := res.Err(); err != nil {
			return "", "", err
		}
		return "", "", apperrors.NewTermNotFound(termID)
	}
	record := res.Record()
	return recordString(record, "project"), recordString(record, "slug"), nil
}
