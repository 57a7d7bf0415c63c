// Package graph implements vocab.Store on Neo4j. Terms and mappings are
// nodes; uniqueness within a (project, attribute) scope is enforced by
// unique constraints on computed scope keys, so concurrent writers racing
// on the same name or raw value resolve to one winner at commit.
package graph

import (
	"context"
	"errors"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"go.uber.org/zap"

	"canonvocab/internal/vocab"
	"canonvocab/pkg/logger"
)

const constraintViolationCode = "Neo.ClientError.Schema.ConstraintValidationFailed"

// Store handles all Neo4j vocabulary operations
type Store struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewStore creates a Neo4j-backed vocabulary store
func NewStore(driver neo4j.DriverWithContext) *Store {
	return &Store{
		driver: driver,
		logger: logger.Named("graph"),
	}
}

// Close closes the Neo4j driver connection
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// EnsureSchema creates the uniqueness constraints the invariants depend on.
// Run once at startup; a fresh database enforces them before the first write.
func (s *Store) EnsureSchema(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	statements := []string{
		"CREATE CONSTRAINT term_id IF NOT EXISTS FOR (t:Term) REQUIRE t.id IS UNIQUE",
		"CREATE CONSTRAINT term_scope_key IF NOT EXISTS FOR (t:Term) REQUIRE t.scope_key IS UNIQUE",
		"CREATE CONSTRAINT mapping_id IF NOT EXISTS FOR (m:Mapping) REQUIRE m.id IS UNIQUE",
		"CREATE CONSTRAINT mapping_scope_key IF NOT EXISTS FOR (m:Mapping) REQUIRE m.scope_key IS UNIQUE",
	}
	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return err
		}
	}

	s.logger.Info("Vocabulary schema ensured")
	return nil
}

// isConstraintViolation reports whether err is a uniqueness constraint
// failure, the storage-level signal behind DuplicateTerm/DuplicateMapping.
func isConstraintViolation(err error) bool {
	var neoErr *neo4j.Neo4jError
	return errors.As(err, &neoErr) && neoErr.Code == constraintViolationCode
}

// termFromNode builds a domain term from a Term node's properties.
func termFromNode(node dbtype.Node) vocab.Term {
	return vocab.Term{
		ID:            nodeString(node, "id"),
		ProjectID:     nodeString(node, "project_id"),
		AttributeSlug: nodeString(node, "attribute_slug"),
		Name:          nodeString(node, "name"),
		Category:      nodeString(node, "category"),
		Description:   nodeString(node, "description"),
		CreatedAt:     nodeTime(node, "created_at"),
		UpdatedAt:     nodeTime(node, "updated_at"),
	}
}

// mappingFromNode builds a domain mapping; the owning term id travels
// separately because the relationship is not a node property.
func mappingFromNode(node dbtype.Node, termID string) vocab.Mapping {
	return vocab.Mapping{
		ID:        nodeString(node, "id"),
		TermID:    termID,
		RawValue:  nodeString(node, "raw_value"),
		CreatedAt: nodeTime(node, "created_at"),
	}
}

func nodeString(node dbtype.Node, key string) string {
	if val, ok := node.Props[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func nodeTime(node dbtype.Node, key string) time.Time {
	if val, ok := node.Props[key]; ok {
		if t, ok := val.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

func recordNode(record *neo4j.Record, key string) (dbtype.Node, bool) {
	val, ok := record.Get(key)
	if !ok {
		return dbtype.Node{}, false
	}
	node, ok := val.(dbtype.Node)
	return node, ok
}

func recordString(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func recordInt(record *neo4j.Record, key string) int {
	val, ok := record.Get(key)
	if !ok {
		return 0
	}
	if n, ok := val.(int64); ok {
		return int(n)
	}
	return 0
}
