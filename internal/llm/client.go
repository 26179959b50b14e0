package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Role identifies the author of a message in a structured request.
type Role string

// Message roles
const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one ordered entry of a conversation sent to the model.
type Message struct {
	Role    Role
	Content string
}

// StructuredRequest asks for a single JSON value constrained by Schema.
type StructuredRequest struct {
	Messages []Message
	Schema   *Schema
	Tier     ModelTier
}

// Client is an abstraction over LLM providers
type Client interface {
	// GenerateStructured returns the model's JSON output for an ordered message list
	GenerateStructured(ctx context.Context, req *StructuredRequest) (string, error)
	// GetModel returns the underlying provider model for a tier
	GetModel(tier ModelTier) string
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, config, apiKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", config.Provider)
	}
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// GenerateStructured sends system messages as the system instruction and
// user messages as the turn content, in order.
func (c *GeminiClient) GenerateStructured(ctx context.Context, req *StructuredRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is required")
	}

	modelName := c.config.GetModel(req.Tier)
	if modelName == "" {
		return "", fmt.Errorf("no model configured for tier %s", req.Tier)
	}

	system, user := splitMessages(req.Messages)
	if len(user) == 0 {
		return "", fmt.Errorf("at least one user message is required")
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(c.config.Temperature)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = req.Schema.toGenai()
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{Parts: system}
	}

	resp, err := model.GenerateContent(ctx, user...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", err
	}

	return CleanJSONBlock(text), nil
}

// GetModel returns the model name for a tier
func (c *GeminiClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func splitMessages(messages []Message) (system, user []genai.Part) {
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Role == RoleSystem {
			system = append(system, genai.Text(m.Content))
		} else {
			user = append(user, genai.Text(m.Content))
		}
	}
	return system, user
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response (finish reason %s)", candidate.FinishReason)
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
