package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// OpenAIEmbedding is an Embedder backed by /embeddings.
type OpenAIEmbedding struct {
	client    *OpenAICompatibleClient
	model     string
	dimension int
}

// NewOpenAIEmbedding asks for vectors of the given dimension when the model
// supports shortening (text-embedding-3 family). Zero keeps the model default.
func NewOpenAIEmbedding(client *OpenAICompatibleClient, model string, dimension int) *OpenAIEmbedding {
	return &OpenAIEmbedding{client: client, model: model, dimension: dimension}
}

func (e *OpenAIEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkInputs(texts); err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"model": e.model,
		"input": texts,
	}
	if e.dimension > 0 && strings.HasPrefix(e.model, "text-embedding-3") {
		reqBody["dimensions"] = e.dimension
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := e.client.post(ctx, "/embeddings", reqBody, &parsed); err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d want %d", ErrVectorCount, len(parsed.Data), len(texts))
	}
	sort.SliceStable(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	result := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		if len(parsed.Data[i].Embedding) == 0 {
			return nil, ErrEmptyEmbedding
		}
		result[i] = parsed.Data[i].Embedding
	}
	return result, nil
}
