// Package classifier talks to the external AI suggestion provider through
// an OpenAI-compatible endpoint (LiteLLM). Its output is untrusted: it is
// parsed defensively here and every write derived from it goes through the
// same uniqueness-enforcing store operations as manual edits.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"canonvocab/internal/vocab"
	apperrors "canonvocab/pkg/errors"
	"canonvocab/pkg/logger"
)

const systemPrompt = `You map raw, inconsistently spelled tag values onto a controlled vocabulary of canonical terms.
You receive the existing vocabulary (names and categories) and a list of raw values.
For each raw value, either match it to an existing canonical term or propose a new one.
Respond with a JSON array only, no prose. Each element:
{"raw_value": "...", "canonical_name": "...", "category": "...", "is_new": true|false}
Set is_new to false only when canonical_name names an existing term from the vocabulary.`

// Client asks an OpenAI-compatible model to place raw tag values in a
// project's canonical vocabulary.
type Client struct {
	client *openai.Client
	model  string
	mu     sync.RWMutex // Protects model field for concurrent access
	logger *zap.Logger
}

// NewClient creates a classifier client against a LiteLLM-compatible base URL.
func NewClient(baseURL, apiKey, modelID string) *Client {
	// LiteLLM proxies accept a dummy API key
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  modelID,
		logger: logger.Named("classifier"),
	}
}

// SetModel updates the model used by this client
func (c *Client) SetModel(model string) {
	if model != "" {
		c.mu.Lock()
		c.model = model
		c.mu.Unlock()
		c.logger.Debug("Classifier model updated", zap.String("model", model))
	}
}

// Model returns the current model
func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

type promptTerm struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

type promptPayload struct {
	AttributeSlug string       `json:"attribute_slug"`
	Vocabulary    []promptTerm `json:"vocabulary"`
	RawValues     []string     `json:"raw_values"`
}

// Classify sends one bounded batch of raw values plus the current
// vocabulary and returns the model's suggestions. Any classifier-side
// failure (transport, empty response, unparseable output) surfaces as
// ErrSuggestionServiceUnavailable; the caller has nothing to reconcile.
func (c *Client) Classify(ctx context.Context, req vocab.ClassifyRequest) ([]vocab.Suggestion, error) {
	terms := make([]promptTerm, 0, len(req.Vocabulary))
	for _, term := range req.Vocabulary {
		terms = append(terms, promptTerm{Name: term.Name, Category: term.Category})
	}
	payload, err := json.Marshal(promptPayload{
		AttributeSlug: req.AttributeSlug,
		Vocabulary:    terms,
		RawValues:     req.RawValues,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode classifier payload: %w", err)
	}

	c.mu.RLock()
	currentModel := c.model
	c.mu.RUnlock()

	request := openai.ChatCompletionRequest{
		Model: currentModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
		Temperature: 0.2,
	}

	// Retry logic with backoff
	var resp openai.ChatCompletionResponse
	maxRetries := 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			c.logger.Warn("Retrying classifier request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, apperrors.NewSuggestionServiceUnavailable(ctx.Err())
			case <-time.After(backoff):
			}
		}

		resp, err = c.client.CreateChatCompletion(ctx, request)
		if err == nil {
			break
		}

		c.logger.Error("Classifier request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", currentModel),
		)
		if ctx.Err() != nil {
			return nil, apperrors.NewSuggestionServiceUnavailable(ctx.Err())
		}
	}
	if err != nil {
		return nil, apperrors.NewSuggestionServiceUnavailable(err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.NewSuggestionServiceUnavailable(fmt.Errorf("no choices in classifier response"))
	}

	suggestions, err := parseSuggestions(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, apperrors.NewSuggestionServiceUnavailable(err)
	}

	c.logger.Info("Classifier batch completed",
		zap.Int("raw_values", len(req.RawValues)),
		zap.Int("suggestions", len(suggestions)),
	)
	return suggestions, nil
}

// parseSuggestions decodes the model's JSON array, tolerating markdown code
// fences and skipping entries missing the required fields.
func parseSuggestions(content string) ([]vocab.Suggestion, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	var raw []vocab.Suggestion
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse classifier output: %w", err)
	}

	suggestions := make([]vocab.Suggestion, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s.RawValue) == "" || strings.TrimSpace(s.CanonicalName) == "" {
			continue
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, nil
}
