package classifier

import (
	"context"
	"testing"

	"canonvocab/internal/vocab"
)

func TestParseSuggestions(t *testing.T) {
	content := `[
		{"raw_value": "b2b2c", "canonical_name": "B2B2C", "category": "segment", "is_new": true},
		{"raw_value": "b2b", "canonical_name": "B2B SaaS", "is_new": false}
	]`

	suggestions, err := parseSuggestions(content)
	if err != nil {
		t.Fatalf("parseSuggestions failed: %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(suggestions))
	}
	if !suggestions[0].IsNew || suggestions[0].CanonicalName != "B2B2C" {
		t.Errorf("unexpected first suggestion: %+v", suggestions[0])
	}
	if suggestions[1].IsNew || suggestions[1].CanonicalName != "B2B SaaS" {
		t.Errorf("unexpected second suggestion: %+v", suggestions[1])
	}
}

func TestParseSuggestions_CodeFence(t *testing.T) {
	content := "```json\n[{\"raw_value\": \"ml\", \"canonical_name\": \"Machine Learning\", \"is_new\": true}]\n```"

	suggestions, err := parseSuggestions(content)
	if err != nil {
		t.Fatalf("parseSuggestions failed: %v", err)
	}
	if len(suggestions) != 1 || suggestions[0].CanonicalName != "Machine Learning" {
		t.Errorf("unexpected suggestions: %+v", suggestions)
	}
}

func TestParseSuggestions_SkipsIncompleteEntries(t *testing.T) {
	content := `[
		{"raw_value": "", "canonical_name": "Orphan", "is_new": true},
		{"raw_value": "valid", "canonical_name": "", "is_new": true},
		{"raw_value": "ok", "canonical_name": "Kept", "is_new": true}
	]`

	suggestions, err := parseSuggestions(content)
	if err != nil {
		t.Fatalf("parseSuggestions failed: %v", err)
	}
	if len(suggestions) != 1 || suggestions[0].CanonicalName != "Kept" {
		t.Errorf("expected only the complete entry, got %+v", suggestions)
	}
}

func TestParseSuggestions_Garbage(t *testing.T) {
	if _, err := parseSuggestions("the model rambled instead of emitting JSON"); err == nil {
		t.Error("expected error for non-JSON output")
	}
}

// TestClient_Classify requires a running LiteLLM instance
// This is a basic integration test
func TestClient_Classify(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	client := NewClient("http://localhost:4000", "", "openrouter/anthropic/claude-3.5-sonnet")

	suggestions, err := client.Classify(context.Background(), vocab.ClassifyRequest{
		ProjectID:     "test",
		AttributeSlug: "industry",
		RawValues:     []string{"b2b", "Business-to-Business"},
		Vocabulary: []vocab.Term{
			{Name: "B2B", Category: "segment"},
		},
	})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if len(suggestions) == 0 {
		t.Error("expected at least one suggestion")
	}
}
