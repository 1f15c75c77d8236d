package sop

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Generator produces freeform text for a prompt. The sop service treats the
// returned text as untrusted and extracts a JSON document from it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorConfig configures the Anthropic-backed generator.
type GeneratorConfig struct {
	// APIKey for the Anthropic API. Empty disables the generator.
	APIKey string

	// Model name (default: claude-sonnet-4-5).
	Model string

	// MaxTokens caps the response length (default: 2048).
	MaxTokens int64

	// Temperature for generation (default: 0.7).
	Temperature float64
}

// AnthropicGenerator implements Generator over the Anthropic Messages API.
type AnthropicGenerator struct {
	client anthropic.Client
	cfg    GeneratorConfig
}

// NewAnthropicGenerator creates a generator from cfg.
func NewAnthropicGenerator(cfg GeneratorConfig) *AnthropicGenerator {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	return &AnthropicGenerator{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:    cfg,
	}
}

// Generate implements Generator.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.cfg.Model),
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: anthropic.Float(g.cfg.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("message request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("model returned no text content")
	}
	return sb.String(), nil
}
