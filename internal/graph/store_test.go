package graph

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"canonvocab/internal/vocab"
	apperrors "canonvocab/pkg/errors"
)

// These tests require a running Neo4j instance.
// Set NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD environment variables.

func createTestDriver() (neo4j.DriverWithContext, error) {
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		uri = "bolt://localhost:7687"
	}
	user := os.Getenv("NEO4J_USER")
	if user == "" {
		user = "neo4j"
	}
	password := os.Getenv("NEO4J_PASSWORD")
	if password == "" {
		password = "password"
	}
	return neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
}

func setupTestStore(t *testing.T) (*Store, string, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}

	store := NewStore(driver)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	// Each test run gets its own project so scopes never collide.
	project := "test-project-" + time.Now().Format("20060102150405.000")

	cleanup := func() {
		session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)
		_, _ = session.Run(ctx, `
			MATCH (t:Term {project_id: $project})
			OPTIONAL MATCH (m:Mapping)-[:OF_TERM]->(t)
			DETACH DELETE m, t
		`, map[string]any{"project": project})
		_ = driver.Close(ctx)
	}
	return store, project, cleanup
}

func TestStore_CreateTerm_Duplicate(t *testing.T) {
	store, project, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	term, err := store.CreateTerm(ctx, project, "industry", "B2B", "segment")
	if err != nil {
		t.Fatalf("CreateTerm failed: %v", err)
	}
	if term.Name != "B2B" || term.Category != "segment" {
		t.Errorf("unexpected term: %+v", term)
	}

	_, err = store.CreateTerm(ctx, project, "industry", " b2b ", "")
	var dup *apperrors.ErrDuplicateTerm
	if !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicateTerm, got %v", err)
	}
}

func TestStore_MappingLifecycle(t *testing.T) {
	store, project, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	term, err := store.CreateTerm(ctx, project, "industry", "B2B", "")
	if err != nil {
		t.Fatalf("CreateTerm failed: %v", err)
	}

	first, err := store.AddMapping(ctx, term.ID, "Business-to-Business")
	if err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}
	second, err := store.AddMapping(ctx, term.ID, " business-to-business ")
	if err != nil {
		t.Fatalf("idempotent re-add failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected existing mapping back, got %s and %s", first.ID, second.ID)
	}

	resolved, err := store.ResolveRaw(ctx, project, "industry", "BUSINESS-TO-BUSINESS")
	if err != nil {
		t.Fatalf("ResolveRaw failed: %v", err)
	}
	if resolved == nil || resolved.ID != term.ID {
		t.Fatalf("expected term %s, got %+v", term.ID, resolved)
	}

	other, err := store.CreateTerm(ctx, project, "industry", "Enterprise", "")
	if err != nil {
		t.Fatalf("CreateTerm failed: %v", err)
	}
	_, err = store.AddMapping(ctx, other.ID, "business-to-business")
	var dup *apperrors.ErrDuplicateMapping
	if !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicateMapping, got %v", err)
	}

	if err := store.RemoveMapping(ctx, first.ID); err != nil {
		t.Fatalf("RemoveMapping failed: %v", err)
	}
	resolved, err = store.ResolveRaw(ctx, project, "industry", "business-to-business")
	if err != nil {
		t.Fatalf("ResolveRaw failed: %v", err)
	}
	if resolved != nil {
		t.Errorf("expected nil after unmap, got %+v", resolved)
	}
}

func TestStore_MergeTerms(t *testing.T) {
	store, project, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	target, err := store.CreateTerm(ctx, project, "industry", "AI", "")
	if err != nil {
		t.Fatalf("CreateTerm failed: %v", err)
	}
	s1, _ := store.CreateTerm(ctx, project, "industry", "Artificial Intelligence", "")
	s2, _ := store.CreateTerm(ctx, project, "industry", "Robots", "")

	mustMap := func(termID, raw string) {
		t.Helper()
		if _, err := store.AddMapping(ctx, termID, raw); err != nil {
			t.Fatalf("AddMapping(%s, %q) failed: %v", termID, raw, err)
		}
	}
	mustMap(target.ID, "ai")
	mustMap(s1.ID, "AI ")
	mustMap(s1.ID, "ml")
	mustMap(s2.ID, "robotics")

	result, err := store.MergeTerms(ctx, target.ID, []string{s1.ID, s2.ID})
	if err != nil {
		t.Fatalf("MergeTerms failed: %v", err)
	}
	if result.MappingsMoved != 2 {
		t.Errorf("expected 2 mappings moved, got %d", result.MappingsMoved)
	}

	detail, err := store.GetTerm(ctx, target.ID)
	if err != nil {
		t.Fatalf("GetTerm failed: %v", err)
	}
	if len(detail.Mappings) != 3 {
		t.Errorf("expected 3 mappings on target, got %d", len(detail.Mappings))
	}

	var notFound *apperrors.ErrTermNotFound
	if _, err := store.GetTerm(ctx, s1.ID); !errors.As(err, &notFound) {
		t.Errorf("expected source deleted, got %v", err)
	}
	if _, err := store.MergeTerms(ctx, target.ID, []string{s2.ID}); !errors.As(err, &notFound) {
		t.Errorf("expected ErrTermNotFound on re-merge, got %v", err)
	}
}

func TestStore_DeleteTerm_Cascades(t *testing.T) {
	store, project, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	term, err := store.CreateTerm(ctx, project, "industry", "B2B", "")
	if err != nil {
		t.Fatalf("CreateTerm failed: %v", err)
	}
	if _, err := store.AddMapping(ctx, term.ID, "b2b"); err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}

	if err := store.DeleteTerm(ctx, term.ID); err != nil {
		t.Fatalf("DeleteTerm failed: %v", err)
	}

	resolved, err := store.ResolveRaw(ctx, project, "industry", "b2b")
	if err != nil {
		t.Fatalf("ResolveRaw failed: %v", err)
	}
	if resolved != nil {
		t.Errorf("expected former raw value unresolved, got %+v", resolved)
	}

	terms, mappings, err := store.Counts(ctx, project, "industry")
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if terms != 0 || mappings != 0 {
		t.Errorf("expected empty scope, got %d terms / %d mappings", terms, mappings)
	}

	// Filtered listing still works against the live store.
	if _, err := store.ListTerms(ctx, project, "industry", vocab.TermFilter{Search: "b2"}); err != nil {
		t.Fatalf("ListTerms failed: %v", err)
	}
}
