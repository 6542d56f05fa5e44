// Package ai holds the language-model and embedding clients.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docintell/internal/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrEmptyInput     = errors.New("embedding input is empty")
	ErrVectorCount    = errors.New("embedding count does not match input count")
	ErrEmptyEmbedding = errors.New("empty embedding in response")
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// Generator produces one assistant reply for an ordered message list. A
// leading system message, if present, carries the instructions.
type Generator interface {
	Generate(ctx context.Context, messages []ChatMessage, opts GenerateOptions) (string, error)
}

// Embedder turns texts into vectors, one per input and in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NewGenerator builds the generator named by cfg.Provider.
func NewGenerator(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case "openai":
		client := NewOpenAICompatibleClient(cfg.BaseURL, cfg.APIKey, time.Duration(cfg.TimeoutSeconds)*time.Second)
		return NewOpenAIChat(client, cfg.Model), nil
	case "gemini":
		client, err := NewGeminiClient(ctx, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return client.Chat(cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewEmbedder builds the embedder named by cfg.Provider.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "openai":
		client := NewOpenAICompatibleClient(cfg.BaseURL, cfg.APIKey, 60*time.Second)
		return NewOpenAIEmbedding(client, cfg.Model, cfg.Dimension), nil
	case "gemini":
		client, err := NewGeminiClient(ctx, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return client.Embedding(cfg.Model), nil
	case "local":
		return NewLocalEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func checkInputs(texts []string) error {
	if len(texts) == 0 {
		return ErrEmptyInput
	}
	for i, t := range texts {
		if isBlank(t) {
			return fmt.Errorf("%w: input %d", ErrEmptyInput, i)
		}
	}
	return nil
}
