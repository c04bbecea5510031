package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"

	"rick-api/models"
)

const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	anthropicMaxTokens    = 4096
)

// AnthropicService handles communication with the Anthropic messages API
type AnthropicService struct {
	llm     llms.Model
	timeout time.Duration
}

// NewAnthropicService creates a new Anthropic service. baseURL is optional.
func NewAnthropicService(apiKey, baseURL, model string, timeout time.Duration) (*AnthropicService, error) {
	if model == "" {
		model = DefaultAnthropicModel
	}

	opts := []anthropic.Option{
		anthropic.WithToken(apiKey),
		anthropic.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}

	llm, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init anthropic client: %w", err)
	}
	return &AnthropicService{llm: llm, timeout: timeout}, nil
}

// Complete sends the conversation to Claude and returns the first choice's text.
// System messages are lifted into Anthropic's system prompt by langchaingo.
func (s *AnthropicService) Complete(ctx context.Context, messages []models.ChatMessage, temperature float64) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		content = append(content, llms.TextParts(anthropicRole(msg.Role), msg.Content))
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.llm.GenerateContent(ctx, content,
		llms.WithTemperature(temperature),
		llms.WithMaxTokens(anthropicMaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("anthropic generate content: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return resp.Choices[0].Content, nil
}

func anthropicRole(role models.Role) llms.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
