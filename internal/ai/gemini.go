package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultGeminiChatModel      = "gemini-1.5-flash-latest"
	defaultGeminiEmbeddingModel = "text-embedding-004"
)

// GeminiClient wraps one genai client shared by chat and embedding models.
type GeminiClient struct {
	client *genai.Client
}

func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client failed: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func (c *GeminiClient) Chat(model string) *GeminiChat {
	if model == "" {
		model = defaultGeminiChatModel
	}
	return &GeminiChat{client: c, model: model}
}

func (c *GeminiClient) Embedding(model string) *GeminiEmbedding {
	if model == "" {
		model = defaultGeminiEmbeddingModel
	}
	return &GeminiEmbedding{client: c, model: model}
}

type GeminiChat struct {
	client *GeminiClient
	model  string
}

func (g *GeminiChat) Close() error {
	return g.client.Close()
}

func (g *GeminiChat) Generate(ctx context.Context, messages []ChatMessage, opts GenerateOptions) (string, error) {
	system, history := toGeminiContents(messages)
	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return "", errors.New("gemini chat needs a trailing user message")
	}

	model := g.client.client.GenerativeModel(g.model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	model.SetTemperature(float32(opts.Temperature))
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}

	session := model.StartChat()
	last := history[len(history)-1]
	session.History = history[:len(history)-1]

	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		}
	}
	return out.String(), nil
}

// toGeminiContents splits off system text and maps the rest to genai roles.
// Leading model turns are dropped and consecutive turns of one role are
// merged, since the API expects a user-first alternating history.
func toGeminiContents(messages []ChatMessage) (string, []*genai.Content) {
	var (
		system  []string
		history []*genai.Content
	)
	for _, m := range messages {
		role := "user"
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
			continue
		case RoleAssistant:
			role = "model"
		}
		if len(history) == 0 && role == "model" {
			continue
		}
		if n := len(history); n > 0 && history[n-1].Role == role {
			history[n-1].Parts = append(history[n-1].Parts, genai.Text(m.Content))
			continue
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return strings.Join(system, "\n\n"), history
}

type GeminiEmbedding struct {
	client *GeminiClient
	model  string
}

func (g *GeminiEmbedding) Close() error {
	return g.client.Close()
}

func (g *GeminiEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkInputs(texts); err != nil {
		return nil, err
	}
	em := g.client.client.EmbeddingModel(g.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d want %d", ErrVectorCount, len(res.Embeddings), len(texts))
	}
	out := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, ErrEmptyEmbedding
		}
		out[i] = e.Values
	}
	return out, nil
}
