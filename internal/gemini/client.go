package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultModel is the Gemini model used for answer generation
const DefaultModel = "gemini-2.0-flash-lite"

var (
	// ErrEmptyPrompt is returned when the prompt is empty
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
	// ErrNoCandidates is returned when the model produced no usable text
	ErrNoCandidates = errors.New("model returned no candidates")
	// ErrNoAPIKey is returned when the Google API key is not set
	ErrNoAPIKey = errors.New("GOOGLE_API_KEY environment variable not set")
)

// GenerativeAPI defines the interface for content generation
type GenerativeAPI interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Client wraps the Gemini API for answer generation
type Client struct {
	api GenerativeAPI
}

type GeminiAdapter struct {
	client *genai.Client
	model  string
}

func NewGeminiAdapter(ctx context.Context, apiKey, model string) (*GeminiAdapter, error) {
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiAdapter{client: client, model: model}, nil
}

// GenerateText calls the Gemini API and concatenates the text parts of
// every candidate
func (a *GeminiAdapter) GenerateText(ctx context.Context, prompt string) (string, error) {
	model := a.client.GenerativeModel(a.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String(), nil
}

func (a *GeminiAdapter) Close() error {
	return a.client.Close()
}

type Config struct {
	APIKey string
	Model  string
}

// NewClient creates a new Gemini client using defaults.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	return NewClientWithConfig(ctx, Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new Gemini client with explicit configuration.
func NewClientWithConfig(ctx context.Context, cfg Config) (*Client, error) {
	adapter, err := NewGeminiAdapter(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, err
	}
	return &Client{api: adapter}, nil
}

// NewClientFromEnv creates a new Gemini client using GOOGLE_API_KEY environment variable
func NewClientFromEnv(ctx context.Context) (*Client, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(ctx, apiKey)
}

// Generate produces a completion for the given prompt
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	text, err := c.api.GenerateText(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoCandidates
	}
	return text, nil
}
