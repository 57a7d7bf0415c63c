package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"canonvocab/pkg/logger"

	"go.uber.org/zap"
)

// ObservationReader is the read-only view into the entity/attribute store:
// the raw tag strings currently attached to entities. The vocabulary engine
// never writes through it.
type ObservationReader struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewObservationReader creates a reader over the entity graph.
func NewObservationReader(driver neo4j.DriverWithContext) *ObservationReader {
	return &ObservationReader{
		driver: driver,
		logger: logger.Named("observations"),
	}
}

// RawValues returns every raw tag value present in entity data for the
// attribute, duplicates included; the scanner handles dedup and set
// difference.
func (r *ObservationReader) RawValues(ctx context.Context, projectID, attributeSlug string) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (:Entity {project_id: $project})-[:HAS_TAG]->(v:TagValue {attribute_slug: $slug})
			RETURN v.value AS value
		`, map[string]any{"project": projectID, "slug": attributeSlug})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		values := make([]string, 0, len(records))
		for _, record := range records {
			values = append(values, recordString(record, "value"))
		}
		return values, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read observations: %w", err)
	}

	return result.([]string), nil
}
